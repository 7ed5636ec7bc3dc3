package draw

import (
	"github.com/zeusync/framesync/internal/core/resource"
)

// Kind selects the draw variant. Consumers switch on it exhaustively.
type Kind uint8

const (
	KindClear Kind = iota
	KindRect
	KindCircle
	KindTexture
	KindSpriteFrame
	KindText
	KindCamera
	KindRenderTarget
)

func (k Kind) String() string {
	switch k {
	case KindClear:
		return "clear"
	case KindRect:
		return "rect"
	case KindCircle:
		return "circle"
	case KindTexture:
		return "texture"
	case KindSpriteFrame:
		return "sprite_frame"
	case KindText:
		return "text"
	case KindCamera:
		return "camera"
	case KindRenderTarget:
		return "render_target"
	default:
		return "unknown"
	}
}

// Mask selects which numeric fields may be blended between frames.
type Mask uint16

const (
	MaskPosition Mask = 1 << iota
	MaskRotation
	MaskScaleX
	MaskScaleY
	MaskWidth
	MaskHeight
	MaskRadius

	MaskNone Mask = 0
	MaskAll       = MaskPosition | MaskRotation | MaskScaleX | MaskScaleY | MaskWidth | MaskHeight | MaskRadius
)

func (m Mask) Has(bit Mask) bool { return m&bit != 0 }

// Color is a normalized RGBA modifier.
type Color struct {
	R, G, B, A float32
}

var White = Color{1, 1, 1, 1}

type Vec2 struct {
	X, Y float32
}

// SpriteFrame addresses one cell of a sprite sheet laid out in Columns columns.
type SpriteFrame struct {
	Index   int32
	Columns int32
	Rows    int32
}

// Command is one draw instruction. ID correlates the instance with its
// counterpart in the previous logic frame; it only has to be unique within
// the id space the caller manages.
type Command struct {
	Kind  Kind
	ID    uint64
	Mask  Mask
	Color Color

	Position Vec2
	Rotation float32
	ScaleX   float32
	ScaleY   float32
	Width    float32
	Height   float32
	Radius   float32

	// Origin is normalized to the texture's intrinsic size: (0.5, 0.5) is the center.
	Origin  Vec2
	Texture resource.Handle
	Frame   SpriteFrame

	Text string
	Font resource.Handle

	// Target is the render target to switch to; resource.Nil selects the screen.
	Target resource.Handle
}

// Lerp returns a + t*(b-a).
func Lerp(t, a, b float32) float32 {
	return a + t*(b-a)
}

// Interpolate blends the masked fields of curr towards its predecessor prev at
// fraction t. A nil prev leaves curr untouched, so a newly appeared object
// never animates in from a phantom state.
func Interpolate(prev *Command, curr *Command, t float32) Command {
	out := *curr
	if prev == nil || curr.Mask == MaskNone {
		return out
	}
	m := curr.Mask
	if m.Has(MaskPosition) {
		out.Position.X = Lerp(t, prev.Position.X, curr.Position.X)
		out.Position.Y = Lerp(t, prev.Position.Y, curr.Position.Y)
	}
	if m.Has(MaskRotation) {
		out.Rotation = Lerp(t, prev.Rotation, curr.Rotation)
	}
	if m.Has(MaskScaleX) {
		out.ScaleX = Lerp(t, prev.ScaleX, curr.ScaleX)
	}
	if m.Has(MaskScaleY) {
		out.ScaleY = Lerp(t, prev.ScaleY, curr.ScaleY)
	}
	if m.Has(MaskWidth) {
		out.Width = Lerp(t, prev.Width, curr.Width)
	}
	if m.Has(MaskHeight) {
		out.Height = Lerp(t, prev.Height, curr.Height)
	}
	if m.Has(MaskRadius) {
		out.Radius = Lerp(t, prev.Radius, curr.Radius)
	}
	return out
}

// PixelOrigin converts the normalized origin to pixels for a texture of the
// given intrinsic size, honouring scale.
func (c *Command) PixelOrigin(texWidth, texHeight int) Vec2 {
	sx, sy := c.ScaleX, c.ScaleY
	if sx == 0 {
		sx = 1
	}
	if sy == 0 {
		sy = 1
	}
	return Vec2{
		X: c.Origin.X * float32(texWidth) * sx,
		Y: c.Origin.Y * float32(texHeight) * sy,
	}
}

// SourceRect returns the sub-rectangle of a sprite sheet covered by c.Frame.
func (c *Command) SourceRect(texWidth, texHeight int) (x, y, w, h int) {
	cols, rows := int(c.Frame.Columns), int(c.Frame.Rows)
	if cols <= 0 {
		cols = 1
	}
	if rows <= 0 {
		rows = 1
	}
	w, h = texWidth/cols, texHeight/rows
	idx := int(c.Frame.Index) % (cols * rows)
	if idx < 0 {
		idx += cols * rows
	}
	return (idx % cols) * w, (idx / cols) * h, w, h
}
