package terminal

import (
	"testing"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/framesync/internal/core/arena"
	"github.com/zeusync/framesync/internal/core/command"
	"github.com/zeusync/framesync/internal/core/draw"
	"github.com/zeusync/framesync/internal/core/resource"
)

var red = draw.Color{R: 1, A: 1}

func newScreen(t *testing.T) tcell.SimulationScreen {
	t.Helper()
	screen := tcell.NewSimulationScreen("UTF-8")
	require.NoError(t, screen.Init())
	screen.SetSize(16, 8)
	t.Cleanup(screen.Fini)
	return screen
}

func cellAt(screen tcell.Screen, x, y int) (rune, tcell.Style) {
	ch, _, style, _ := screen.GetContent(x, y)
	return ch, style
}

func fg(r, g, b int32) tcell.Style {
	return tcell.StyleDefault.Foreground(tcell.NewRGBColor(r, g, b))
}

func textureSlot(t *testing.T, tex resource.Texture) *resource.Slot {
	t.Helper()
	table := resource.NewTable(1, 1)
	h, err := table.Reserve(resource.KindTexture)
	require.NoError(t, err)
	require.NoError(t, table.Fulfill(h, tex))
	slot, ok := table.GetSafe(h, resource.KindTexture)
	require.True(t, ok)
	return slot
}

func TestRenderer_Rect(t *testing.T) {
	screen := newScreen(t)
	r := New(screen, 1, nil)

	r.Draw(&draw.Command{Kind: draw.KindRect, Position: draw.Vec2{X: 2, Y: 1}, Width: 3, Height: 2, Color: red}, nil)
	require.NoError(t, r.Flush())

	for y := 1; y <= 2; y++ {
		for x := 2; x <= 4; x++ {
			ch, style := cellAt(screen, x, y)
			require.Equal(t, blockRune, ch, "cell %d,%d", x, y)
			require.Equal(t, fg(255, 0, 0), style)
		}
	}
	ch, _ := cellAt(screen, 5, 1)
	require.NotEqual(t, blockRune, ch)
	ch, _ = cellAt(screen, 2, 3)
	require.NotEqual(t, blockRune, ch)
	require.EqualValues(t, 1, r.Frames())
}

func TestRenderer_CameraOffsetsAndResetsPerFrame(t *testing.T) {
	screen := newScreen(t)
	r := New(screen, 1, nil)

	r.Draw(&draw.Command{Kind: draw.KindCamera, Position: draw.Vec2{X: 10, Y: 0}}, nil)
	r.Draw(&draw.Command{Kind: draw.KindRect, Position: draw.Vec2{X: 10, Y: 0}, Width: 1, Height: 1}, nil)
	require.NoError(t, r.Flush())

	ch, style := cellAt(screen, 0, 0)
	require.Equal(t, blockRune, ch)
	require.Equal(t, fg(255, 255, 255), style)

	r.Draw(&draw.Command{Kind: draw.KindRect, Position: draw.Vec2{X: 3, Y: 3}, Width: 1, Height: 1}, nil)
	ch, _ = cellAt(screen, 3, 3)
	require.Equal(t, blockRune, ch)
}

func TestRenderer_CellSize(t *testing.T) {
	screen := newScreen(t)
	r := New(screen, 10, nil)

	r.Draw(&draw.Command{Kind: draw.KindRect, Position: draw.Vec2{X: 20, Y: 10}, Width: 20, Height: 10}, nil)
	for _, x := range []int{2, 3} {
		ch, _ := cellAt(screen, x, 1)
		require.Equal(t, blockRune, ch)
	}
	ch, _ := cellAt(screen, 4, 1)
	require.NotEqual(t, blockRune, ch)
}

func TestRenderer_Circle(t *testing.T) {
	screen := newScreen(t)
	r := New(screen, 1, nil)

	r.Draw(&draw.Command{Kind: draw.KindCircle, Position: draw.Vec2{X: 5, Y: 5}, Radius: 2}, nil)

	ch, _ := cellAt(screen, 5, 5)
	require.Equal(t, blockRune, ch)
	ch, _ = cellAt(screen, 4, 4)
	require.Equal(t, blockRune, ch)
	ch, _ = cellAt(screen, 3, 3)
	require.NotEqual(t, blockRune, ch)
}

func TestRenderer_Text(t *testing.T) {
	screen := newScreen(t)
	r := New(screen, 1, nil)

	r.Draw(&draw.Command{Kind: draw.KindText, Position: draw.Vec2{X: 14, Y: 3}, Text: "hey", Color: red}, nil)

	ch, style := cellAt(screen, 14, 3)
	require.Equal(t, 'h', ch)
	require.Equal(t, fg(255, 0, 0), style)
	ch, _ = cellAt(screen, 15, 3)
	require.Equal(t, 'e', ch)
}

func TestRenderer_TextureHonoursOrigin(t *testing.T) {
	screen := newScreen(t)
	r := New(screen, 1, nil)

	slot := textureSlot(t, resource.Texture{
		Width:  2,
		Height: 2,
		Pixels: []byte{
			255, 0, 0, 255, 0, 255, 0, 255,
			0, 0, 255, 255, 255, 255, 255, 0,
		},
	})
	r.Draw(&draw.Command{Kind: draw.KindTexture, Position: draw.Vec2{X: 4, Y: 4}, Origin: draw.Vec2{X: 0.5, Y: 0.5}}, slot)

	ch, style := cellAt(screen, 3, 3)
	require.Equal(t, textureRune, ch)
	require.Equal(t, fg(255, 0, 0), style)
	_, style = cellAt(screen, 4, 3)
	require.Equal(t, fg(0, 255, 0), style)
	_, style = cellAt(screen, 3, 4)
	require.Equal(t, fg(0, 0, 255), style)

	// transparent pixel is left alone
	ch, _ = cellAt(screen, 4, 4)
	require.NotEqual(t, textureRune, ch)
}

func TestRenderer_SpriteFrame(t *testing.T) {
	screen := newScreen(t)
	r := New(screen, 1, nil)

	slot := textureSlot(t, resource.Texture{
		Width:  4,
		Height: 1,
		Pixels: []byte{
			255, 0, 0, 255, 255, 0, 0, 255,
			0, 0, 255, 255, 0, 0, 255, 255,
		},
	})
	r.Draw(&draw.Command{
		Kind:  draw.KindSpriteFrame,
		Frame: draw.SpriteFrame{Index: 1, Columns: 2, Rows: 1},
	}, slot)

	for x := 0; x < 2; x++ {
		ch, style := cellAt(screen, x, 0)
		require.Equal(t, textureRune, ch)
		require.Equal(t, fg(0, 0, 255), style)
	}
	ch, _ := cellAt(screen, 2, 0)
	require.NotEqual(t, textureRune, ch)
}

func TestRenderer_TextureWithoutSlotIsSkipped(t *testing.T) {
	screen := newScreen(t)
	r := New(screen, 1, nil)

	r.Draw(&draw.Command{Kind: draw.KindTexture, Position: draw.Vec2{X: 1, Y: 1}}, nil)
	ch, _ := cellAt(screen, 1, 1)
	require.NotEqual(t, textureRune, ch)
}

func TestRenderer_RenderTargetDropsUntilFlush(t *testing.T) {
	screen := newScreen(t)
	r := New(screen, 1, nil)
	target := resource.NewHandle(0, 0)

	r.Draw(&draw.Command{Kind: draw.KindRenderTarget, Target: target}, nil)
	r.Draw(&draw.Command{Kind: draw.KindRect, Position: draw.Vec2{X: 1, Y: 1}, Width: 1, Height: 1}, nil)
	require.EqualValues(t, 1, r.Offscreen())
	ch, _ := cellAt(screen, 1, 1)
	require.NotEqual(t, blockRune, ch)

	r.Draw(&draw.Command{Kind: draw.KindRenderTarget, Target: resource.Nil}, nil)
	r.Draw(&draw.Command{Kind: draw.KindRect, Position: draw.Vec2{X: 1, Y: 1}, Width: 1, Height: 1}, nil)
	ch, _ = cellAt(screen, 1, 1)
	require.Equal(t, blockRune, ch)

	r.Draw(&draw.Command{Kind: draw.KindRenderTarget, Target: target}, nil)
	free := command.NewResourceFree(command.ResourceFree{Handle: target, Kind: resource.KindRenderTarget})
	r.ProcessCommand(command.KindResourceFree, &free)
	r.Draw(&draw.Command{Kind: draw.KindRect, Position: draw.Vec2{X: 2, Y: 2}, Width: 1, Height: 1}, nil)
	ch, _ = cellAt(screen, 2, 2)
	require.Equal(t, blockRune, ch)
}

func TestRenderer_Clear(t *testing.T) {
	screen := newScreen(t)
	r := New(screen, 1, nil)

	r.Draw(&draw.Command{Kind: draw.KindRect, Position: draw.Vec2{X: 1, Y: 1}, Width: 1, Height: 1}, nil)
	r.Draw(&draw.Command{Kind: draw.KindClear, Color: draw.Color{B: 1, A: 1}}, nil)

	ch, style := cellAt(screen, 1, 1)
	require.Equal(t, ' ', ch)
	require.Equal(t, tcell.StyleDefault.Background(tcell.NewRGBColor(0, 0, 255)), style)
}

func TestRenderer_RecordsWindowUpdates(t *testing.T) {
	r := New(newScreen(t), 1, nil)
	w := command.NewWindowUpdate(command.WindowUpdate{Width: 80, Height: 24, Title: "framesync"})
	r.ProcessCommand(command.KindWindowUpdate, &w)
	require.Equal(t, "framesync", r.Window().Title)
}

func TestRenderer_WindowTitleOutlivesFrameMemory(t *testing.T) {
	r := New(newScreen(t), 1, nil)
	ring := arena.NewRing(64)

	w := command.NewWindowUpdate(command.WindowUpdate{Title: ring.CopyString("alpha")})
	r.ProcessCommand(command.KindWindowUpdate, &w)

	for i := 0; i < arena.Depth; i++ {
		ring.BeginFrame()
		ring.CopyString("ZZZZZ")
	}
	require.Equal(t, "alpha", r.Window().Title)
}
