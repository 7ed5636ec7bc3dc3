package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/zeusync/framesync/internal/backend/audio"
	"github.com/zeusync/framesync/internal/core/observability/log"
	"github.com/zeusync/framesync/internal/injector"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	headless := flag.Bool("headless", false, "draw to an in-memory screen")
	flag.Parse()

	if err := run(injector.ConfigPath(*configPath), *headless); err != nil {
		fmt.Fprintln(os.Stderr, "framesync:", err)
		os.Exit(1)
	}
}

func run(path injector.ConfigPath, headless bool) error {
	cfg, err := injector.ProvideConfig(path)
	if err != nil {
		return err
	}

	var screen tcell.Screen
	if headless || !cfg.Terminal.Enabled {
		screen = tcell.NewSimulationScreen("UTF-8")
	} else if screen, err = tcell.NewScreen(); err != nil {
		return fmt.Errorf("open terminal: %w", err)
	}
	if err = screen.Init(); err != nil {
		return fmt.Errorf("init terminal: %w", err)
	}
	defer screen.Fini()

	app, cleanup, err := injector.InitializeApp(path, screen)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if app.Telemetry != nil {
		if err = app.Telemetry.Start(ctx); err != nil {
			return err
		}
		defer func() {
			shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := app.Telemetry.Stop(shutdown); err != nil {
				app.Logger.Warn("telemetry shutdown", log.Error(err))
			}
		}()
		app.Logger.Info("telemetry listening", log.String("addr", app.Telemetry.Addr()))
	}

	if app.Config.Audio.Device {
		if err = audio.PlayOnSpeaker(app.Mixer, 100*time.Millisecond); err != nil {
			app.Logger.Warn("speaker unavailable", log.Error(err))
		} else {
			defer audio.CloseSpeaker()
		}
	}

	w, h := screen.Size()
	scene := newBounce(float32(w)*float32(app.Config.Terminal.CellSize), float32(h)*float32(app.Config.Terminal.CellSize), app.Logger)

	app.Engine.Go("input", func() {
		for {
			switch ev := screen.PollEvent().(type) {
			case nil:
				return
			case *tcell.EventKey:
				if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC || ev.Rune() == 'q' {
					app.Engine.Stop()
					return
				}
			case *tcell.EventResize:
				cw, ch := ev.Size()
				scene.resize(float32(cw)*float32(app.Config.Terminal.CellSize), float32(ch)*float32(app.Config.Terminal.CellSize))
			}
		}
	})

	app.Logger.Info("framesync running",
		log.String("engine_id", app.Engine.ID()),
		log.Float64("logic_hz", app.Config.LogicHz),
		log.Float64("render_hz", app.Config.RenderHz),
	)
	err = app.Engine.Run(ctx, scene.tick)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	app.Logger.Info("framesync stopped", log.Any("stats", app.Engine.Stats()))
	return err
}
