package source

import "time"

// pacer throttles file playback toward a configured frame rate. It keeps
// an exponentially smoothed estimate of the achieved rate and a smoothed
// sleep correction so a single slow or fast frame does not whipsaw the
// playback speed. State is per-instance; a Source owns exactly one.
type pacer struct {
	fps         float64
	initialized bool
	prevTS      float64 // ms
	avgFPS      float64
	sleepMS     float64
}

func (p *pacer) reset(fps float64) {
	p.fps = fps
	p.initialized = false
}

// next accepts the wall-clock timestamp (ms) of the frame just read and
// returns how long the caller should sleep before delivering it.
func (p *pacer) next(nowMS float64) time.Duration {
	if p.fps <= 0 {
		return 0
	}
	if !p.initialized {
		p.prevTS = nowMS - 1000/p.fps
		p.avgFPS = p.fps
		p.sleepMS = 1000 / p.fps
		p.initialized = true
	}
	dt := nowMS - p.prevTS
	if dt > 0 {
		p.avgFPS = 0.15*p.avgFPS + 0.85*(1000/dt)
	}
	p.sleepMS *= 0.25*(p.avgFPS/p.fps) + 0.75
	p.prevTS = nowMS
	if p.sleepMS <= 0 {
		return 0
	}
	return time.Duration(p.sleepMS * float64(time.Millisecond))
}
