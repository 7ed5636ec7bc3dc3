package injector

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/framesync/internal/core/config"
)

func TestInitializeApp_Defaults(t *testing.T) {
	screen := tcell.NewSimulationScreen("UTF-8")
	require.NoError(t, screen.Init())
	defer screen.Fini()

	app, cleanup, err := InitializeApp("", screen)
	require.NoError(t, err)
	defer cleanup()

	require.Equal(t, config.Default(), app.Config)
	require.NotNil(t, app.Engine)
	require.NotNil(t, app.Renderer)
	require.NotNil(t, app.Mixer)
	require.NotNil(t, app.Catalog)
	require.Nil(t, app.Telemetry)
}

func TestInitializeApp_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "framesync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logic_hz: 15\ntelemetry:\n  enabled: true\n  addr: 127.0.0.1:0\n"), 0o600))

	screen := tcell.NewSimulationScreen("UTF-8")
	require.NoError(t, screen.Init())
	defer screen.Fini()

	app, cleanup, err := InitializeApp(ConfigPath(path), screen)
	require.NoError(t, err)
	defer cleanup()

	require.Equal(t, 15.0, app.Config.LogicHz)
	require.NotNil(t, app.Telemetry)
}

func TestInitializeApp_BadConfig(t *testing.T) {
	_, _, err := InitializeApp(ConfigPath(filepath.Join(t.TempDir(), "missing.yaml")), nil)
	require.Error(t, err)
}
