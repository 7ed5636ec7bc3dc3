package engine

import (
	"context"
	"fmt"

	"github.com/zeusync/framesync/internal/core/command"
	"github.com/zeusync/framesync/internal/core/draw"
	"github.com/zeusync/framesync/internal/core/resource"
)

// Producer is the logic goroutine's view of the engine. Every method pushes
// onto the bus, so commands reach the render side in call order.
type Producer struct {
	e   *Engine
	ctx context.Context
	buf command.Command
}

func newProducer(e *Engine) *Producer {
	return &Producer{e: e, ctx: context.Background()}
}

// push blocks while the bus is full. Once the engine is shutting down the
// command is dropped instead.
func (p *Producer) push(cmd command.Command) {
	p.buf = cmd
	if err := p.e.Bus.PushContext(p.ctx, &p.buf); err != nil {
		p.e.dropped.Add(1)
	}
}

// BeginFrame rotates the frame arena and opens a frame on the render side.
// It waits while the render side still holds commands from the page about to
// be reset, and returns the context's error if the engine stops meanwhile.
func (p *Producer) BeginFrame() error {
	return p.begin(p.ctx, command.MetaStartFrame)
}

// BeginSingleFrame is BeginFrame for a frame that presents exactly once.
func (p *Producer) BeginSingleFrame() error {
	return p.begin(p.ctx, command.MetaStartSingleFrame)
}

func (p *Producer) begin(ctx context.Context, meta command.Meta) error {
	if err := p.e.awaitPage(ctx); err != nil {
		return err
	}
	p.e.Arena.BeginFrame()
	p.e.framesBegun.Add(1)
	p.push(command.NewMeta(meta))
	return nil
}

func (p *Producer) EndFrame() {
	p.push(command.NewMeta(command.MetaEndFrame))
}

func (p *Producer) EndSingleFrame() {
	p.push(command.NewMeta(command.MetaEndSingleFrame))
}

// Draw submits one draw command. Text is copied into frame memory so the
// caller's buffer can be reused right away.
func (p *Producer) Draw(cmd draw.Command) {
	if cmd.Text != "" {
		cmd.Text = p.e.Arena.CopyString(cmd.Text)
	}
	p.push(command.NewDraw(cmd))
}

// Load reserves a slot of kind and asks the render side to load path into it.
// The handle is usable immediately; draws referencing it are skipped until
// the load completes.
func (p *Producer) Load(kind resource.Kind, path string) (resource.Handle, error) {
	h, err := p.e.Table.Reserve(kind)
	if err != nil {
		return resource.Nil, fmt.Errorf("load %s %q: %w", kind, path, err)
	}
	p.push(command.NewResourceLoad(command.ResourceLoad{
		Handle: h,
		Kind:   kind,
		Path:   p.e.Arena.CopyString(path),
	}))
	return h, nil
}

// LoadData is Load for an in-memory blob, copied into frame memory.
func (p *Producer) LoadData(kind resource.Kind, name string, data []byte) (resource.Handle, error) {
	h, err := p.e.Table.Reserve(kind)
	if err != nil {
		return resource.Nil, fmt.Errorf("load %s %q: %w", kind, name, err)
	}
	p.push(command.NewResourceLoad(command.ResourceLoad{
		Handle: h,
		Kind:   kind,
		Path:   p.e.Arena.CopyString(name),
		Data:   p.e.Arena.CopyIntoFrameMemory(data),
	}))
	return h, nil
}

// Free releases h on the render side after every subsystem has seen it.
func (p *Producer) Free(h resource.Handle, kind resource.Kind) {
	p.push(command.NewResourceFree(command.ResourceFree{Handle: h, Kind: kind}))
}

func (p *Producer) Window(w command.WindowUpdate) {
	w.Title = p.e.Arena.CopyString(w.Title)
	p.push(command.NewWindowUpdate(w))
}

func (p *Producer) Audio(a command.AudioUpdate) {
	p.push(command.NewAudioUpdate(a))
}

// PushContext submits an arbitrary command, giving up when ctx ends while
// the bus is full.
func (p *Producer) PushContext(ctx context.Context, cmd command.Command) error {
	p.buf = cmd
	return p.e.Bus.PushContext(ctx, &p.buf)
}

// Errors drains the load failures reported since the last call.
func (p *Producer) Errors() []resource.LoadError {
	return p.e.Table.Errors()
}

// State reports where h is in its load lifecycle.
func (p *Producer) State(h resource.Handle) resource.State {
	return p.e.Table.State(h)
}

// Resolve returns the payload of a loaded slot.
func (p *Producer) Resolve(h resource.Handle, kind resource.Kind) (any, bool) {
	slot, ok := p.e.Table.GetSafe(h, kind)
	if !ok {
		return nil, false
	}
	return slot.Payload(), true
}
