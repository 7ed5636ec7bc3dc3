package resource

import "fmt"

// Kind tags what a slot holds. A handle is only honoured for the kind it was reserved with.
type Kind uint32

const (
	KindNone Kind = iota
	KindTexture
	KindSound
	KindFont
	KindShader
	KindRenderTarget
)

func (k Kind) String() string {
	switch k {
	case KindTexture:
		return "texture"
	case KindSound:
		return "sound"
	case KindFont:
		return "font"
	case KindShader:
		return "shader"
	case KindRenderTarget:
		return "render_target"
	default:
		return "none"
	}
}

// Handle packs a slot index (low 32 bits) and the slot generation (high 32 bits).
type Handle uint64

// Nil is the sentinel for "no resource". Its index is never below any table capacity.
const Nil Handle = ^Handle(0)

func NewHandle(index, generation uint32) Handle {
	return Handle(uint64(generation)<<32 | uint64(index))
}

func (h Handle) Index() uint32 { return uint32(h) }

func (h Handle) Generation() uint32 { return uint32(h >> 32) }

func (h Handle) IsNil() bool { return h == Nil }

func (h Handle) String() string {
	if h.IsNil() {
		return "handle(nil)"
	}
	return fmt.Sprintf("handle(%d@%d)", h.Index(), h.Generation())
}

// Texture is the payload render backends store for loaded textures.
// Width and Height are the intrinsic size used for origin math.
type Texture struct {
	Width  int
	Height int
	Pixels []byte
}

// Font is the payload for loaded fonts.
type Font struct {
	Name       string
	CellWidth  int
	CellHeight int
}
