package source

import "strconv"

// Kind classifies the backend an input token resolved to.
type Kind int

const (
	KindNone Kind = iota
	KindCamera
	KindVideo
	KindImage
)

func (k Kind) String() string {
	switch k {
	case KindCamera:
		return "camera"
	case KindVideo:
		return "video"
	case KindImage:
		return "image"
	default:
		return "none"
	}
}

// Live reports whether the kind's timing is governed by real capture
// rather than caller-controlled playback.
func (k Kind) Live() bool { return k == KindCamera }

// cameraToken interprets input as a camera id. Only short tokens qualify,
// so filenames such as "7.avi" or bare long digit strings are never
// probed as devices.
func cameraToken(input string) (int, bool) {
	if len(input) == 0 || len(input) > 2 {
		return 0, false
	}
	id, err := strconv.Atoi(input)
	if err != nil {
		return 0, false
	}
	return id, true
}

// probe attempts one backend for the input token; it reports the kind it
// claims and whether the claim succeeded. Probe failures are silent by
// contract; only exhaustion of the whole list is surfaced.
type probe struct {
	kind Kind
	try  func(input string) bool
}

// resolve evaluates probes in order and returns the first successful
// kind, short-circuiting the remaining trials.
func resolve(input string, probes []probe) Kind {
	for _, p := range probes {
		if p.try(input) {
			return p.kind
		}
	}
	return KindNone
}
