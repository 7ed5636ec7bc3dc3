package audio

import (
	"fmt"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/generators"
	"github.com/gopxl/beep/speaker"
)

// Format is the stereo format every sound payload is buffered in.
func Format(rate beep.SampleRate) beep.Format {
	return beep.Format{SampleRate: rate, NumChannels: 2, Precision: 2}
}

// Tone renders a sine tone of hz lasting d into a buffer.
func Tone(rate beep.SampleRate, hz float64, d time.Duration) (*beep.Buffer, error) {
	if d <= 0 {
		return nil, fmt.Errorf("tone duration must be positive, got %v", d)
	}
	sine, err := generators.SineTone(rate, hz)
	if err != nil {
		return nil, fmt.Errorf("sine tone %vHz: %w", hz, err)
	}
	buf := beep.NewBuffer(Format(rate))
	buf.Append(beep.Take(rate.N(d), sine))
	return buf, nil
}

// PlayOnSpeaker opens the system audio device and feeds it from m.
func PlayOnSpeaker(m *Mixer, latency time.Duration) error {
	if err := speaker.Init(m.rate, m.rate.N(latency)); err != nil {
		return fmt.Errorf("init speaker: %w", err)
	}
	speaker.Play(m)
	return nil
}

func CloseSpeaker() {
	speaker.Close()
}
