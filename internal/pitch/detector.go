package pitch

import "math"

// Default detector parameters. The edge threshold assumes input normalised to
// [-1, 1].
const (
	DefaultSilenceThreshold = 0.01
	DefaultEdgeThreshold    = 0.2
	DefaultMinWindow        = 64
)

// SampleBuffer is one captured block of mono time-domain audio.
type SampleBuffer struct {
	Samples    []float32
	SampleRate int
}

// Status explains why an Estimate does or does not carry a frequency.
type Status int

const (
	Detected Status = iota
	InsufficientSignal
	DegenerateBuffer
	InvalidBuffer
)

func (s Status) String() string {
	switch s {
	case Detected:
		return "detected"
	case InsufficientSignal:
		return "insufficient signal"
	case DegenerateBuffer:
		return "degenerate buffer"
	case InvalidBuffer:
		return "invalid buffer"
	default:
		return "unknown"
	}
}

// Estimate is the result of one detection. Frequency is zero unless Status is Detected.
type Estimate struct {
	Frequency float64
	Status    Status
	RMS       float64
}

func (e Estimate) Detected() bool {
	return e.Status == Detected
}

// Params tunes a Detector. Zero fields fall back to the defaults.
type Params struct {
	SilenceThreshold float64 // RMS below this is treated as silence
	EdgeThreshold    float64 // |x| below this marks a trim point
	MinWindow        int     // shortest trimmed window worth correlating
}

// DefaultParams returns the parameters NewDetector falls back to.
func DefaultParams() Params {
	return Params{
		SilenceThreshold: DefaultSilenceThreshold,
		EdgeThreshold:    DefaultEdgeThreshold,
		MinWindow:        DefaultMinWindow,
	}
}

// Detector estimates the fundamental frequency of a SampleBuffer by
// autocorrelation. It keeps scratch space between calls but no results, so
// consecutive calls are independent. A Detector is not safe for concurrent use.
type Detector struct {
	params Params
	work   []float64
	corr   []float64
}

// NewDetector returns a Detector using params, replacing any unset or
// out-of-range field with its default.
func NewDetector(params Params) *Detector {
	if params.SilenceThreshold <= 0 {
		params.SilenceThreshold = DefaultSilenceThreshold
	}
	if params.EdgeThreshold <= 0 {
		params.EdgeThreshold = DefaultEdgeThreshold
	}
	if params.MinWindow < 3 {
		params.MinWindow = DefaultMinWindow
	}
	return &Detector{params: params}
}

func (d *Detector) Params() Params {
	return d.params
}

// Detect returns the fundamental frequency of buf, or a Status saying why it
// has none.
//
// Accuracy depends on the buffer holding many periods of the note. At 44.1 kHz
// a 4096-sample frame stays within 1% from 80 Hz up. A 2048-sample frame holds
// 1% from 110 Hz up but can miss it on quiet low notes: 83.3 Hz may read as
// 84.6 Hz.
func (d *Detector) Detect(buf SampleBuffer) Estimate {
	n := len(buf.Samples)
	if n == 0 || buf.SampleRate <= 0 {
		return Estimate{Status: InvalidBuffer}
	}

	rms := RMS(buf.Samples)
	if rms < d.params.SilenceThreshold || math.IsNaN(rms) {
		return Estimate{Status: InsufficientSignal, RMS: rms}
	}

	r1, r2, ok := trimEdges(buf.Samples, d.params.EdgeThreshold)
	if !ok || r2-r1 < d.params.MinWindow {
		return Estimate{Status: DegenerateBuffer, RMS: rms}
	}

	size := r2 - r1
	if cap(d.work) < size {
		d.work = make([]float64, size)
		d.corr = make([]float64, size)
	}
	work := d.work[:size]
	corr := d.corr[:size]
	for i := range work {
		work[i] = float64(buf.Samples[r1+i])
	}
	autocorrelate(work, corr)

	// Lag 0 is always the global maximum; walk down its slope first.
	start := 0
	for start < size-1 && corr[start] > corr[start+1] {
		start++
	}
	if start >= size-1 {
		return Estimate{Status: DegenerateBuffer, RMS: rms}
	}

	maxVal := math.Inf(-1)
	maxPos := -1
	for i := start; i < size; i++ {
		if corr[i] > maxVal {
			maxVal = corr[i]
			maxPos = i
		}
	}
	if maxPos <= 0 {
		return Estimate{Status: DegenerateBuffer, RMS: rms}
	}

	period := ParabolicPeak(corr, maxPos)
	if period <= 0 || math.IsNaN(period) || math.IsInf(period, 0) {
		return Estimate{Status: DegenerateBuffer, RMS: rms}
	}
	return Estimate{
		Frequency: float64(buf.SampleRate) / period,
		Status:    Detected,
		RMS:       rms,
	}
}

// RMS returns the root-mean-square amplitude of samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// trimEdges finds the first quiet sample in the first half of samples and the
// last quiet sample in the second half. ok is false when either search fails
// or the resulting window [r1, r2) is empty.
func trimEdges(samples []float32, threshold float64) (r1, r2 int, ok bool) {
	n := len(samples)
	half := n / 2

	r1 = -1
	for i := 0; i < half; i++ {
		if math.Abs(float64(samples[i])) < threshold {
			r1 = i
			break
		}
	}
	r2 = -1
	for i := 1; i < half; i++ {
		if math.Abs(float64(samples[n-i])) < threshold {
			r2 = n - i
			break
		}
	}
	if r1 < 0 || r2 < 0 || r1 >= r2 {
		return 0, 0, false
	}
	return r1, r2, true
}

// autocorrelate writes the unnormalised autocorrelation of x into out.
func autocorrelate(x, out []float64) {
	n := len(x)
	for lag := 0; lag < n; lag++ {
		var sum float64
		for j := 0; j < n-lag; j++ {
			sum += x[j] * x[j+lag]
		}
		out[lag] = sum
	}
}

// ParabolicPeak refines the integer peak index i of c to the vertex of the
// parabola through c[i-1], c[i], c[i+1]. It returns i unchanged at the array
// boundaries or when the three points are collinear.
func ParabolicPeak(c []float64, i int) float64 {
	if i <= 0 || i >= len(c)-1 {
		return float64(i)
	}
	x1, x2, x3 := c[i-1], c[i], c[i+1]
	a := (x1 + x3 - 2*x2) / 2
	b := (x3 - x1) / 2
	if a == 0 {
		return float64(i)
	}
	return float64(i) - b/(2*a)
}
