// Package config implements the persistent key/value store backing the
// calibration record. Values are kept as a flat JSON document on disk;
// typed getters report absent or malformed keys so callers can fall back
// to re-collection instead of aborting.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Keys written and read by the calibration session.
const (
	KeySrcFn     = "src_fn"
	KeyVFOV      = "vfov"
	KeyRoiCirc   = "roi_circ"
	KeyRoiIgnr   = "roi_ignr"
	KeyC2ACnrsXY = "c2a_cnrs_xy"
	KeyC2ACnrsYZ = "c2a_cnrs_yz"
	KeyC2ACnrsXZ = "c2a_cnrs_xz"
	KeyC2ASrc    = "c2a_src"
	KeyC2AR      = "c2a_r"
	KeyC2AT      = "c2a_t"
)

// C2ASrcExternal is the method tag stored when the camera-to-subject
// transform is maintained by hand rather than solved from corner clicks.
const C2ASrcExternal = "ext"

// ErrStaleKey reports a key that is absent or does not decode to the
// requested type. Callers treat it as "re-collect this stage".
var ErrStaleKey = errors.New("config: key absent or malformed")

// ErrWrite reports a failed flush to disk. A session continues after this
// error but is marked failed.
var ErrWrite = errors.New("config: write failed")

// Store is a keyed persistent store over a single JSON file. The zero
// value is not usable; construct with Open. A Store is not safe for
// concurrent use; the calibration loop is its only writer.
type Store struct {
	path string
	doc  map[string]json.RawMessage
}

// Open loads the store at path. A missing file yields an empty store so a
// fresh calibration can populate it; any other read or decode error is
// returned.
func Open(path string) (*Store, error) {
	s := &Store{path: path, doc: map[string]json.RawMessage{}}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if len(raw) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(raw, &s.doc); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Save writes the whole document to disk, creating the file if needed.
func (s *Store) Save() error {
	raw, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}

// Has reports whether key is present, without decoding it.
func (s *Store) Has(key string) bool {
	_, ok := s.doc[key]
	return ok
}

func (s *Store) set(key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		// All stored types are plain strings/numbers/slices.
		return
	}
	s.doc[key] = raw
}

func (s *Store) get(key string, out any) error {
	raw, ok := s.doc[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrStaleKey, key)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrStaleKey, key, err)
	}
	return nil
}

// SetString stores a string value under key.
func (s *Store) SetString(key, v string) { s.set(key, v) }

// SetInts stores a flat integer sequence under key.
func (s *Store) SetInts(key string, v []int) { s.set(key, v) }

// SetPolys stores a sequence of flat integer sequences under key, one per
// polygon, preserving order.
func (s *Store) SetPolys(key string, v [][]int) { s.set(key, v) }

// SetFloats stores a float sequence under key.
func (s *Store) SetFloats(key string, v []float64) { s.set(key, v) }

// String returns the string stored under key.
func (s *Store) String(key string) (string, error) {
	var v string
	err := s.get(key, &v)
	return v, err
}

// Float returns the float stored under key.
func (s *Store) Float(key string) (float64, error) {
	var v float64
	err := s.get(key, &v)
	return v, err
}

// Ints returns the flat integer sequence stored under key.
func (s *Store) Ints(key string) ([]int, error) {
	var v []int
	err := s.get(key, &v)
	return v, err
}

// Polys returns the polygon sequences stored under key.
func (s *Store) Polys(key string) ([][]int, error) {
	var v [][]int
	err := s.get(key, &v)
	return v, err
}

// Floats returns the float sequence stored under key.
func (s *Store) Floats(key string) ([]float64, error) {
	var v []float64
	err := s.get(key, &v)
	return v, err
}
