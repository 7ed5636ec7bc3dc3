package audio

import (
	"math"
	"sync"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"

	"github.com/zeusync/framesync/internal/core/command"
	"github.com/zeusync/framesync/internal/core/observability/log"
	"github.com/zeusync/framesync/internal/core/resource"
)

type voice struct {
	handle resource.Handle
	ctrl   *beep.Ctrl
	volume *effects.Volume
}

// Mixer plays sound slots in response to audio commands. Sound payloads are
// *beep.Buffer. The mix is pulled through Stream, by a speaker or a test.
type Mixer struct {
	mu     sync.Mutex
	table  *resource.Table
	rate   beep.SampleRate
	log    log.Log
	mixer  *beep.Mixer
	master *effects.Volume
	voices map[uint32]*voice
	missed uint64
}

func NewMixer(table *resource.Table, rate beep.SampleRate, logger log.Log) *Mixer {
	if logger == nil {
		logger = log.Nop()
	}
	mixer := &beep.Mixer{}
	return &Mixer{
		table:  table,
		rate:   rate,
		log:    logger.Named("audio"),
		mixer:  mixer,
		master: gain(mixer, 1),
		voices: make(map[uint32]*voice),
	}
}

// gain wraps s at linear volume v; zero and below are silent.
func gain(s beep.Streamer, v float64) *effects.Volume {
	vol := &effects.Volume{Streamer: s, Base: 2}
	setGain(vol, v)
	return vol
}

func setGain(vol *effects.Volume, v float64) {
	if v <= 0 {
		vol.Volume = 0
		vol.Silent = true
		return
	}
	vol.Volume = math.Log2(v)
	vol.Silent = false
}

func (m *Mixer) SampleRate() beep.SampleRate { return m.rate }

// ProcessCommand handles audio updates and stops voices whose sound is freed.
func (m *Mixer) ProcessCommand(kind command.Kind, cmd *command.Command) {
	switch kind {
	case command.KindAudioUpdate:
		m.apply(cmd.Audio)
	case command.KindResourceFree:
		if cmd.Free.Kind == resource.KindSound {
			m.stopHandle(cmd.Free.Handle)
		}
	}
}

func (m *Mixer) apply(a command.AudioUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch a.Op {
	case command.AudioPlay:
		m.play(a)
	case command.AudioStop:
		if v, ok := m.voices[a.Voice]; ok {
			m.stop(a.Voice, v)
		}
	case command.AudioVolume:
		if v, ok := m.voices[a.Voice]; ok {
			setGain(v.volume, a.Volume)
		}
	case command.AudioMaster:
		setGain(m.master, a.Volume)
	case command.AudioStopAll:
		for id, v := range m.voices {
			m.stop(id, v)
		}
		m.mixer.Clear()
	}
}

// play starts a voice. A sound that is not loaded is skipped.
func (m *Mixer) play(a command.AudioUpdate) {
	buf, ok := resource.Get[*beep.Buffer](m.table, a.Handle, resource.KindSound)
	if !ok {
		m.missed++
		m.log.Debug("sound not ready", log.Handle("handle", uint64(a.Handle)))
		return
	}
	if old, ok := m.voices[a.Voice]; ok {
		m.stop(a.Voice, old)
	}

	var s beep.Streamer = buf.Streamer(0, buf.Len())
	if a.Loop {
		s = beep.Loop(-1, buf.Streamer(0, buf.Len()))
	}
	volume := a.Volume
	if volume == 0 {
		volume = 1
	}
	v := &voice{handle: a.Handle, volume: gain(s, volume)}
	v.ctrl = &beep.Ctrl{Streamer: v.volume}
	m.voices[a.Voice] = v
	m.mixer.Add(v.ctrl)
}

// stop detaches the voice; a Ctrl with no streamer drains and leaves the mixer.
func (m *Mixer) stop(id uint32, v *voice) {
	v.ctrl.Streamer = nil
	delete(m.voices, id)
}

func (m *Mixer) stopHandle(h resource.Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, v := range m.voices {
		if v.handle == h {
			m.stop(id, v)
		}
	}
}

// Stream mixes the active voices into samples. It always fills the buffer.
func (m *Mixer) Stream(samples [][2]float64) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.master.Stream(samples)
}

func (m *Mixer) Err() error { return nil }

// Voices is the number of voices still registered.
func (m *Mixer) Voices() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}

// Missed counts play requests for sounds that were not loaded.
func (m *Mixer) Missed() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.missed
}
