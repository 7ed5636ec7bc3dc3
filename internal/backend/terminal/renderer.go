package terminal

import (
	"math"
	"strings"

	"github.com/gdamore/tcell/v2"

	"github.com/zeusync/framesync/internal/core/command"
	"github.com/zeusync/framesync/internal/core/draw"
	"github.com/zeusync/framesync/internal/core/observability/log"
	"github.com/zeusync/framesync/internal/core/resource"
)

const (
	blockRune   = '█'
	textureRune = '▓'
)

// Renderer paints presented draw commands onto a tcell screen. One cell
// covers cellSize world units on each axis. Rotation is ignored.
//
// All methods run on the render goroutine.
type Renderer struct {
	screen   tcell.Screen
	cellSize float32
	log      log.Log

	camera draw.Vec2
	target resource.Handle

	window    command.WindowUpdate
	frames    uint64
	offscreen uint64
}

func New(screen tcell.Screen, cellSize float64, logger log.Log) *Renderer {
	if cellSize <= 0 {
		cellSize = 1
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Renderer{
		screen:   screen,
		cellSize: float32(cellSize),
		log:      logger.Named("terminal"),
		target:   resource.Nil,
	}
}

func (r *Renderer) ProcessCommand(kind command.Kind, cmd *command.Command) {
	switch kind {
	case command.KindWindowUpdate:
		r.window = cmd.Window
		r.window.Title = strings.Clone(cmd.Window.Title)
		r.log.Debug("window updated",
			log.Int("width", cmd.Window.Width),
			log.Int("height", cmd.Window.Height),
			log.String("title", cmd.Window.Title),
		)
	case command.KindResourceFree:
		if cmd.Free.Handle == r.target {
			r.target = resource.Nil
		}
	}
}

// Draw paints one command. tex is the resolved slot for texture, sprite,
// font and render target commands.
func (r *Renderer) Draw(c *draw.Command, tex *resource.Slot) {
	switch c.Kind {
	case draw.KindCamera:
		r.camera = c.Position
		return
	case draw.KindRenderTarget:
		r.target = c.Target
		return
	}
	if !r.target.IsNil() {
		// a terminal has one surface; offscreen passes are dropped
		r.offscreen++
		return
	}

	color := rgb(orWhite(c.Color))
	switch c.Kind {
	case draw.KindClear:
		r.screen.Fill(' ', tcell.StyleDefault.Background(color))
	case draw.KindRect:
		style := tcell.StyleDefault.Foreground(color)
		w, h := c.Width*scale(c.ScaleX), c.Height*scale(c.ScaleY)
		r.fill(c.Position.X, c.Position.Y, w, h, blockRune, func(_, _ float32) (tcell.Style, bool) {
			return style, true
		})
	case draw.KindCircle:
		style := tcell.StyleDefault.Foreground(color)
		rad := c.Radius
		r.fill(c.Position.X-rad, c.Position.Y-rad, 2*rad, 2*rad, blockRune, func(wx, wy float32) (tcell.Style, bool) {
			dx, dy := wx-c.Position.X, wy-c.Position.Y
			return style, dx*dx+dy*dy <= rad*rad
		})
	case draw.KindText:
		r.text(c, tcell.StyleDefault.Foreground(color))
	case draw.KindTexture, draw.KindSpriteFrame:
		if tex == nil {
			return
		}
		if t, ok := tex.Payload().(resource.Texture); ok {
			r.texture(c, t)
		}
	}
}

// Flush shows the frame and resets per-frame state.
func (r *Renderer) Flush() error {
	r.screen.Show()
	r.camera = draw.Vec2{}
	r.target = resource.Nil
	r.frames++
	return nil
}

func (r *Renderer) Frames() uint64 { return r.frames }

// Offscreen counts draws dropped because a render target was bound.
func (r *Renderer) Offscreen() uint64 { return r.offscreen }

func (r *Renderer) Window() command.WindowUpdate { return r.window }

// cell maps a world position to the terminal cell containing it.
func (r *Renderer) cell(x, y float32) (int, int) {
	cx := math.Floor(float64((x - r.camera.X) / r.cellSize))
	cy := math.Floor(float64((y - r.camera.Y) / r.cellSize))
	return int(cx), int(cy)
}

// center is the world position of the middle of cell (cx, cy).
func (r *Renderer) center(cx, cy int) (float32, float32) {
	return r.camera.X + (float32(cx)+0.5)*r.cellSize, r.camera.Y + (float32(cy)+0.5)*r.cellSize
}

// fill paints every visible cell whose center lies inside the world rect
// and is accepted by paint.
func (r *Renderer) fill(x, y, w, h float32, ch rune, paint func(wx, wy float32) (tcell.Style, bool)) {
	if w <= 0 || h <= 0 {
		return
	}
	sw, sh := r.screen.Size()
	x0, y0 := r.cell(x, y)
	x1, y1 := r.cell(x+w, y+h)
	for cy := max(y0, 0); cy <= min(y1, sh-1); cy++ {
		for cx := max(x0, 0); cx <= min(x1, sw-1); cx++ {
			wx, wy := r.center(cx, cy)
			if wx < x || wx >= x+w || wy < y || wy >= y+h {
				continue
			}
			if style, ok := paint(wx, wy); ok {
				r.screen.SetContent(cx, cy, ch, nil, style)
			}
		}
	}
}

func (r *Renderer) text(c *draw.Command, style tcell.Style) {
	sw, sh := r.screen.Size()
	cx, cy := r.cell(c.Position.X, c.Position.Y)
	if cy < 0 || cy >= sh {
		return
	}
	for _, ch := range c.Text {
		if cx >= sw {
			return
		}
		if cx >= 0 {
			r.screen.SetContent(cx, cy, ch, nil, style)
		}
		cx++
	}
}

// texture paints the texture (or sprite frame) scaled from its intrinsic
// size, positioned so the normalized origin lands on Position. Pixels are
// sampled nearest-neighbour and tinted by Color.
func (r *Renderer) texture(c *draw.Command, t resource.Texture) {
	sx, sy, sw, sh := 0, 0, t.Width, t.Height
	if c.Kind == draw.KindSpriteFrame {
		sx, sy, sw, sh = c.SourceRect(t.Width, t.Height)
	}
	if sw <= 0 || sh <= 0 {
		return
	}
	kx, ky := scale(c.ScaleX), scale(c.ScaleY)
	origin := c.PixelOrigin(sw, sh)
	left, top := c.Position.X-origin.X, c.Position.Y-origin.Y
	w, h := float32(sw)*kx, float32(sh)*ky

	tint := orWhite(c.Color)
	r.fill(left, top, w, h, textureRune, func(wx, wy float32) (tcell.Style, bool) {
		u := clamp(int((wx-left)/kx), sw-1)
		v := clamp(int((wy-top)/ky), sh-1)
		px := pixel(t, sx+u, sy+v)
		if px.A*tint.A == 0 {
			return tcell.Style{}, false
		}
		return tcell.StyleDefault.Foreground(rgb(draw.Color{
			R: px.R * tint.R,
			G: px.G * tint.G,
			B: px.B * tint.B,
		})), true
	})
}

// pixel reads RGBA8 pixel (x, y); textures without pixel data are white.
func pixel(t resource.Texture, x, y int) draw.Color {
	i := (y*t.Width + x) * 4
	if i < 0 || i+4 > len(t.Pixels) {
		return draw.White
	}
	p := t.Pixels[i : i+4]
	return draw.Color{
		R: float32(p[0]) / 255,
		G: float32(p[1]) / 255,
		B: float32(p[2]) / 255,
		A: float32(p[3]) / 255,
	}
}

// orWhite treats the zero Color as unset.
func orWhite(c draw.Color) draw.Color {
	if c == (draw.Color{}) {
		return draw.White
	}
	return c
}

func rgb(c draw.Color) tcell.Color {
	return tcell.NewRGBColor(channel(c.R), channel(c.G), channel(c.B))
}

func channel(v float32) int32 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	}
	return int32(v*255 + 0.5)
}

func scale(s float32) float32 {
	if s == 0 {
		return 1
	}
	return s
}

func clamp(v, hi int) int {
	if v < 0 {
		return 0
	}
	if v > hi {
		return hi
	}
	return v
}
