package audio

import (
	"fmt"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
)

// SpeakerOutput plays a beep.Streamer through the beep speaker.
type SpeakerOutput struct {
	rate     beep.SampleRate
	buffer   int
	streamer beep.Streamer
}

func NewSpeakerOutput(sampleRate int, s beep.Streamer, bufferSize time.Duration) (*SpeakerOutput, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSampleRate, sampleRate)
	}
	if bufferSize <= 0 {
		bufferSize = 50 * time.Millisecond
	}
	rate := beep.SampleRate(sampleRate)
	return &SpeakerOutput{rate: rate, buffer: rate.N(bufferSize), streamer: s}, nil
}

func (o *SpeakerOutput) Start() error {
	if err := speaker.Init(o.rate, o.buffer); err != nil {
		return fmt.Errorf("audio: speaker init: %w", err)
	}
	speaker.Play(o.streamer)
	return nil
}

func (o *SpeakerOutput) Close() error {
	speaker.Clear()
	speaker.Close()
	return nil
}
