package engine

import (
	"github.com/zeusync/framesync/internal/core/command"
	"github.com/zeusync/framesync/internal/core/resource"
)

// Stats is a point-in-time snapshot of the pipeline counters.
type Stats struct {
	EngineID string  `json:"engine_id"`
	Fraction float64 `json:"fraction"`
	RenderHz float64 `json:"render_hz"`

	LogicTicks  uint64 `json:"logic_ticks"`
	LateTicks   uint64 `json:"late_ticks"`
	ArenaFrames uint64 `json:"arena_frames"`
	FramesAhead uint64 `json:"frames_ahead"`
	PageWaits   uint64 `json:"page_waits"`

	FrameStamp uint64 `json:"frame_stamp"`
	Rotations  uint64 `json:"rotations"`
	Presents   uint64 `json:"presents"`
	Skipped    uint64 `json:"skipped_draws"`

	Dispatched uint64 `json:"dispatched"`
	Dropped    uint64 `json:"dropped"`
	Loads      uint64 `json:"loads"`

	Bus       command.BusStats `json:"bus"`
	Resources resource.Stats   `json:"resources"`
}

func (e *Engine) Stats() Stats {
	return Stats{
		EngineID:    e.id,
		Fraction:    e.Clock.Fraction(),
		RenderHz:    e.RenderHz(),
		LogicTicks:  e.logicTicks.Load(),
		LateTicks:   e.Clock.LateTicks(),
		ArenaFrames: e.Arena.Frames(),
		FramesAhead: e.FramesAhead(),
		PageWaits:   e.pageWaits.Load(),
		FrameStamp:  e.Store.Stamp(),
		Rotations:   e.Store.Rotations(),
		Presents:    e.Store.Presents(),
		Skipped:     e.skipped.Load(),
		Dispatched:  e.dispatched.Load(),
		Dropped:     e.dropped.Load(),
		Loads:       e.loads.Load(),
		Bus:         e.Bus.Stats(),
		Resources:   e.Table.Stats(),
	}
}
