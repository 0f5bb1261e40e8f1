package effects

import "math"

// Limiter is a stereo-linked peak compressor with a high ratio. It keeps a
// stack of overlapping hits from driving the output past its ceiling.
type Limiter struct {
	threshold float32
	ratio     float32
	attack    float32 // coefficient
	release   float32 // coefficient
	makeup    float32
	env       float32
	minGain   float32 // deepest reduction since the last Reset
}

// NewLimiter creates a limiter.
// thresholdDB: level where reduction starts (e.g., -3)
// ratio: reduction ratio above threshold (e.g., 20 for 20:1)
// attackMs, releaseMs: envelope follower times
// makeupDB: gain applied after reduction
func NewLimiter(sampleRate int, thresholdDB, ratio, attackMs, releaseMs, makeupDB float32) *Limiter {
	if ratio < 1 {
		ratio = 1
	}
	return &Limiter{
		threshold: dbToLinear(thresholdDB),
		ratio:     ratio,
		attack:    timeCoefficient(sampleRate, attackMs),
		release:   timeCoefficient(sampleRate, releaseMs),
		makeup:    dbToLinear(makeupDB),
		minGain:   1,
	}
}

// NewMasterLimiter is the default master-bus setting: -1 dBFS, 20:1, fast
// attack, 80 ms release.
func NewMasterLimiter(sampleRate int) *Limiter {
	return NewLimiter(sampleRate, -1, 20, 0.5, 80, 0)
}

func (c *Limiter) Process(l, r float32) (float32, float32) {
	peak := float32(math.Max(math.Abs(float64(l)), math.Abs(float64(r))))
	if peak > c.env {
		c.env += c.attack * (peak - c.env)
	} else {
		c.env += c.release * (peak - c.env)
	}
	g := c.gain(c.env)
	if g < c.minGain {
		c.minGain = g
	}
	g *= c.makeup
	return l * g, r * g
}

func (c *Limiter) gain(env float32) float32 {
	if env <= c.threshold || c.threshold <= 0 {
		return 1
	}
	over := env / c.threshold
	return float32(math.Pow(float64(over), float64(1/c.ratio-1)))
}

// GainReductionDB reports the deepest reduction applied since Reset, as a
// non-negative number of decibels.
func (c *Limiter) GainReductionDB() float64 {
	return -20 * math.Log10(float64(c.minGain))
}

func (c *Limiter) Reset() {
	c.env = 0
	c.minGain = 1
}

func dbToLinear(db float32) float32 {
	return float32(math.Pow(10, float64(db)/20))
}

func timeCoefficient(sampleRate int, ms float32) float32 {
	if ms <= 0 || sampleRate <= 0 {
		return 1
	}
	return float32(1 - math.Exp(-1/(float64(ms)*float64(sampleRate)/1000)))
}
