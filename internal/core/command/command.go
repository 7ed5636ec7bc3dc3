package command

import (
	"github.com/zeusync/framesync/internal/core/draw"
	"github.com/zeusync/framesync/internal/core/resource"
)

// Kind is the category tag of a Command record. Consumers dispatch purely on it.
type Kind uint8

const (
	KindDraw Kind = iota
	KindWindowUpdate
	KindResourceLoad
	KindResourceFree
	KindAudioUpdate
	KindMeta
)

func (k Kind) String() string {
	switch k {
	case KindDraw:
		return "draw"
	case KindWindowUpdate:
		return "window_update"
	case KindResourceLoad:
		return "resource_load"
	case KindResourceFree:
		return "resource_free"
	case KindAudioUpdate:
		return "audio_update"
	case KindMeta:
		return "meta"
	default:
		return "unknown"
	}
}

// Meta marks logic frame boundaries inside the command stream.
type Meta uint8

const (
	MetaStartFrame Meta = iota
	MetaEndFrame
	MetaStartSingleFrame
	MetaEndSingleFrame
)

func (m Meta) String() string {
	switch m {
	case MetaStartFrame:
		return "start_frame"
	case MetaEndFrame:
		return "end_frame"
	case MetaStartSingleFrame:
		return "start_single_frame"
	case MetaEndSingleFrame:
		return "end_single_frame"
	default:
		return "unknown"
	}
}

// WindowUpdate changes presentation surface properties.
type WindowUpdate struct {
	Width      int
	Height     int
	Title      string
	Fullscreen bool
	// RenderHz retargets the presentation cadence; zero leaves it unchanged.
	RenderHz float64
}

// ResourceLoad asks the consumer side to load Path (or Data) into Handle.
type ResourceLoad struct {
	Handle resource.Handle
	Kind   resource.Kind
	Path   string
	Data   []byte
}

// ResourceFree releases Handle once the consumer has stopped using it.
type ResourceFree struct {
	Handle resource.Handle
	Kind   resource.Kind
}

type AudioOp uint8

const (
	AudioPlay AudioOp = iota
	AudioStop
	AudioVolume
	AudioMaster
	AudioStopAll
)

// AudioUpdate drives the audio collaborator. Voice identifies a playing
// instance chosen by the caller.
type AudioUpdate struct {
	Op     AudioOp
	Handle resource.Handle
	Voice  uint32
	Volume float64
	Loop   bool
}

// Command is the fixed-size record carried by the Bus. Exactly one variant
// field is meaningful, selected by Kind. Ext is reserved for collaborators.
type Command struct {
	Kind Kind

	Draw   draw.Command
	Window WindowUpdate
	Load   ResourceLoad
	Free   ResourceFree
	Audio  AudioUpdate
	Meta   Meta

	Ext any
}

func NewDraw(d draw.Command) Command {
	return Command{Kind: KindDraw, Draw: d}
}

func NewMeta(m Meta) Command {
	return Command{Kind: KindMeta, Meta: m}
}

func NewWindowUpdate(w WindowUpdate) Command {
	return Command{Kind: KindWindowUpdate, Window: w}
}

func NewResourceLoad(l ResourceLoad) Command {
	return Command{Kind: KindResourceLoad, Load: l}
}

func NewResourceFree(f ResourceFree) Command {
	return Command{Kind: KindResourceFree, Free: f}
}

func NewAudioUpdate(a AudioUpdate) Command {
	return Command{Kind: KindAudioUpdate, Audio: a}
}
