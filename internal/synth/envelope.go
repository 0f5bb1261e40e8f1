package synth

import "math"

// Floor is the fraction of peak gain an exponential ramp ends on. Exponential
// approach to zero never arrives, so ramps target this instead and the unit is
// discarded when it gets there.
const Floor = 0.001

type Shape int

const (
	// Percussive starts at peak and decays exponentially to Floor*Peak.
	// Attack is ignored.
	Percussive Shape = iota
	// Sustained ramps linearly up over Attack and linearly down over Decay.
	Sustained
	// Pluck ramps linearly up over Attack then decays exponentially over Decay.
	Pluck
)

func (s Shape) String() string {
	switch s {
	case Percussive:
		return "percussive"
	case Sustained:
		return "sustained"
	case Pluck:
		return "pluck"
	default:
		return "unknown"
	}
}

// EnvelopeSpec describes the gain contour of one audio unit. Times are seconds.
type EnvelopeSpec struct {
	Shape  Shape
	Attack float64
	Decay  float64
	Peak   float64
}

// Duration is the time from start until the unit is silent and can be dropped.
func (e EnvelopeSpec) Duration() float64 {
	if e.Shape == Percussive {
		return e.Decay
	}
	return e.Attack + e.Decay
}

func (e EnvelopeSpec) Validate() error {
	for _, v := range []float64{e.Attack, e.Decay, e.Peak} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrInvalidEnvelope
		}
	}
	if e.Shape < Percussive || e.Shape > Pluck {
		return ErrInvalidEnvelope
	}
	if e.Duration() <= 0 {
		return ErrInvalidEnvelope
	}
	return nil
}

// Gain returns the envelope gain t seconds after the unit starts.
func (e EnvelopeSpec) Gain(t float64) float64 {
	if t < 0 || t >= e.Duration() {
		return 0
	}
	switch e.Shape {
	case Percussive:
		return expRamp(e.Peak, t, e.Decay)
	case Sustained:
		if t < e.Attack {
			return e.Peak * t / e.Attack
		}
		return e.Peak * (1 - (t-e.Attack)/e.Decay)
	case Pluck:
		if t < e.Attack {
			return e.Peak * t / e.Attack
		}
		return expRamp(e.Peak, t-e.Attack, e.Decay)
	}
	return 0
}

// expRamp follows peak * Floor^(t/span), reaching Floor*peak at t == span.
func expRamp(peak, t, span float64) float64 {
	if span <= 0 {
		return 0
	}
	return peak * math.Pow(Floor, t/span)
}
