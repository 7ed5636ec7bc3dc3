package main

import (
	"context"
	"strconv"
	"sync/atomic"

	"github.com/zeusync/framesync/internal/core/command"
	"github.com/zeusync/framesync/internal/core/draw"
	"github.com/zeusync/framesync/internal/core/engine"
	"github.com/zeusync/framesync/internal/core/observability/log"
	"github.com/zeusync/framesync/internal/core/resource"
)

const (
	idBox uint64 = iota + 1
	idSprite
	idLabel
)

const bounceVoice = 1

// bounce is a box that travels across the screen and beeps off the edges.
type bounce struct {
	log log.Log

	size atomic.Pointer[draw.Vec2]

	ready    bool
	pos, vel draw.Vec2
	sprite   resource.Handle
	beep     resource.Handle
	hits     int
	label    []byte
}

func newBounce(w, h float32, logger log.Log) *bounce {
	b := &bounce{
		log: logger.Named("bounce"),
		pos: draw.Vec2{X: 1, Y: 1},
		vel: draw.Vec2{X: 0.5, Y: 0.25},
	}
	b.resize(w, h)
	return b
}

// resize may be called from any goroutine.
func (b *bounce) resize(w, h float32) {
	b.size.Store(&draw.Vec2{X: w, Y: h})
}

func (b *bounce) tick(_ context.Context, p *engine.Producer, _ uint64) error {
	if !b.ready {
		if err := b.setup(p); err != nil {
			return err
		}
		b.ready = true
	}
	for _, e := range p.Errors() {
		b.log.Warn("asset failed", log.Handle("handle", uint64(e.Handle)), log.String("reason", e.Message))
	}

	size := *b.size.Load()
	const w, h float32 = 6, 3
	b.pos.X += b.vel.X
	b.pos.Y += b.vel.Y
	hit := false
	if b.pos.X < 0 || b.pos.X+w > size.X {
		b.vel.X = -b.vel.X
		b.pos.X = clamp(b.pos.X, 0, size.X-w)
		hit = true
	}
	if b.pos.Y < 0 || b.pos.Y+h > size.Y {
		b.vel.Y = -b.vel.Y
		b.pos.Y = clamp(b.pos.Y, 0, size.Y-h)
		hit = true
	}
	if hit {
		b.hits++
		p.Audio(command.AudioUpdate{Op: command.AudioPlay, Handle: b.beep, Voice: bounceVoice, Volume: 0.5})
	}

	p.Draw(draw.Command{Kind: draw.KindClear, Color: draw.Color{A: 1}})
	p.Draw(draw.Command{
		Kind:     draw.KindRect,
		ID:       idBox,
		Mask:     draw.MaskPosition,
		Color:    draw.Color{R: 0.2, G: 0.6, B: 1, A: 1},
		Position: b.pos,
		Width:    w,
		Height:   h,
	})
	p.Draw(draw.Command{
		Kind:     draw.KindTexture,
		ID:       idSprite,
		Mask:     draw.MaskPosition,
		Position: draw.Vec2{X: b.pos.X + w/2, Y: b.pos.Y + h/2},
		ScaleX:   1,
		ScaleY:   1,
		Origin:   draw.Vec2{X: 0.5, Y: 0.5},
		Texture:  b.sprite,
	})

	b.label = append(b.label[:0], "hits "...)
	b.label = strconv.AppendInt(b.label, int64(b.hits), 10)
	p.Draw(draw.Command{
		Kind:  draw.KindText,
		ID:    idLabel,
		Color: draw.White,
		Text:  string(b.label),
	})
	return nil
}

func (b *bounce) setup(p *engine.Producer) error {
	p.Window(command.WindowUpdate{Title: "framesync"})

	var err error
	if b.sprite, err = p.Load(resource.KindTexture, "2x1#ffaa00"); err != nil {
		return err
	}
	if b.beep, err = p.Load(resource.KindSound, "tone:660:60"); err != nil {
		return err
	}
	return nil
}

func clamp(v, lo, hi float32) float32 {
	if hi < lo {
		return lo
	}
	return min(max(v, lo), hi)
}
