package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

const BytesPerFrame = 4 // s16le stereo

// WriterOutput renders in real time and writes signed 16-bit little-endian
// stereo to an io.Writer. With io.Discard it is a silent clock for machines
// without an audio device; with stdout it feeds a pipe such as aplay.
type WriterOutput struct {
	source SampleSource
	rate   int
	out    io.Writer
	period time.Duration

	started atomic.Bool
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	errOnce sync.Once
	err     error
}

func NewWriterOutput(sampleRate int, source SampleSource, w io.Writer, period time.Duration) (*WriterOutput, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSampleRate, sampleRate)
	}
	if period <= 0 {
		period = 10 * time.Millisecond
	}
	return &WriterOutput{
		source: source,
		rate:   sampleRate,
		out:    w,
		period: period,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

func (o *WriterOutput) Start() error {
	if o.started.CompareAndSwap(false, true) {
		go o.loop()
	}
	return nil
}

// Err returns the write error that ended the loop, if any.
func (o *WriterOutput) Err() error {
	select {
	case <-o.done:
		return o.err
	default:
		return nil
	}
}

func (o *WriterOutput) Close() error {
	o.once.Do(func() { close(o.stop) })
	if !o.started.Load() {
		return nil
	}
	<-o.done
	return o.err
}

func (o *WriterOutput) loop() {
	defer close(o.done)
	ticker := time.NewTicker(o.period)
	defer ticker.Stop()

	begin := time.Now()
	var rendered int64
	var floats []float32
	var bytes []byte
	for {
		select {
		case <-o.stop:
			return
		case <-ticker.C:
		}
		// Render whatever wall time says is due so the clock does not drift
		// when ticks arrive late.
		due := int64(time.Since(begin).Seconds()*float64(o.rate)) - rendered
		if due <= 0 {
			continue
		}
		if cap(floats) < int(due)*2 {
			floats = make([]float32, due*2)
			bytes = make([]byte, due*BytesPerFrame)
		}
		floats = floats[:due*2]
		bytes = bytes[:due*BytesPerFrame]
		o.source.Process(floats)
		EncodeS16LE(floats, bytes)
		if _, err := o.out.Write(bytes); err != nil {
			o.errOnce.Do(func() { o.err = fmt.Errorf("audio: write: %w", err) })
			return
		}
		rendered += due
	}
}

// EncodeS16LE converts interleaved float32 samples to signed 16-bit
// little-endian PCM, clipping to [-1, 1]. out must hold 2 bytes per sample.
func EncodeS16LE(in []float32, out []byte) {
	for i, v := range in {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v*32767)))
	}
}
