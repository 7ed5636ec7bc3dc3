package injector

import (
	"os"
	"path/filepath"

	"github.com/gdamore/tcell/v2"
	"github.com/google/wire"
	"github.com/gopxl/beep"

	"github.com/zeusync/framesync/internal/assets"
	"github.com/zeusync/framesync/internal/backend/audio"
	"github.com/zeusync/framesync/internal/backend/terminal"
	"github.com/zeusync/framesync/internal/core/config"
	"github.com/zeusync/framesync/internal/core/engine"
	"github.com/zeusync/framesync/internal/core/observability/log"
	"github.com/zeusync/framesync/internal/server"
)

// ConfigPath is the YAML file to load; empty means defaults.
type ConfigPath string

// App is the fully wired runtime.
type App struct {
	Config    config.Config
	Logger    *log.Logger
	Engine    *engine.Engine
	Renderer  *terminal.Renderer
	Mixer     *audio.Mixer
	Catalog   *assets.Catalog
	Telemetry *server.Server // nil when disabled
}

var ProviderSet = wire.NewSet(
	ProvideConfig,
	ProvideLogger,
	ProvideCatalog,
	ProvideRenderer,
	ProvideEngine,
	ProvideMixer,
	ProvideTelemetry,
	wire.Struct(new(App), "*"),
)

func ProvideConfig(path ConfigPath) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(string(path))
}

// ProvideLogger keeps log lines off the terminal while it is being drawn on.
func ProvideLogger(cfg config.Config) (*log.Logger, func()) {
	output := cfg.Log.Output
	if len(output) == 0 && cfg.Terminal.Enabled {
		output = []string{filepath.Join(os.TempDir(), "framesync.log")}
	}
	l := log.New(log.Options{
		Level:    log.ParseLevel(cfg.Log.Level),
		Encoding: cfg.Log.Encoding,
		Output:   output,
	})
	return l, func() { _ = l.Sync() }
}

func ProvideCatalog(cfg config.Config, logger *log.Logger) *assets.Catalog {
	return assets.NewCatalog(beep.SampleRate(cfg.Audio.SampleRate), logger)
}

func ProvideRenderer(screen tcell.Screen, cfg config.Config, logger *log.Logger) *terminal.Renderer {
	return terminal.New(screen, cfg.Terminal.CellSize, logger)
}

func ProvideEngine(cfg config.Config, logger *log.Logger, renderer *terminal.Renderer, catalog *assets.Catalog) (*engine.Engine, error) {
	return engine.New(cfg,
		engine.WithLogger(logger),
		engine.WithBackend(renderer),
		engine.WithLoader(catalog),
	)
}

func ProvideMixer(e *engine.Engine, cfg config.Config, logger *log.Logger) *audio.Mixer {
	m := audio.NewMixer(e.Table, beep.SampleRate(cfg.Audio.SampleRate), logger)
	e.AddSubsystem(m)
	return m
}

func ProvideTelemetry(cfg config.Config, e *engine.Engine, logger *log.Logger) (*server.Server, error) {
	if !cfg.Telemetry.Enabled {
		return nil, nil
	}
	return server.New(cfg.Telemetry, e, logger)
}
