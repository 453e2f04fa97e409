package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/whuanle/easytouch/internal/config"
)

type nopInstance struct{}

func (nopInstance) Execute(context.Context, string, []string) (any, error) { return nil, nil }
func (nopInstance) Alive(context.Context) bool                             { return true }
func (nopInstance) Close(context.Context, bool) error                      { return nil }

func testFactory(cfg *config.Config) (*Factory, *[]string) {
	var started []string
	f := NewFactory(cfg, zap.NewNop())
	f.checkEngine = func(ec config.EngineConfig) (string, error) {
		if ec.Type == config.EngineChromium {
			return "/usr/bin/chromium", nil
		}
		return "", nil
	}
	f.startChromium = func(_ context.Context, ec config.EngineConfig, execPath string, _ map[string]string, _ *zap.Logger) (Instance, error) {
		started = append(started, "chromium:"+execPath)
		return nopInstance{}, nil
	}
	f.startMCP = func(_ context.Context, ec config.EngineConfig, _ *zap.Logger) (Instance, error) {
		started = append(started, "mcp:"+ec.Command)
		return nopInstance{}, nil
	}
	return f, &started
}

func TestFactoryStartsBuiltinChromium(t *testing.T) {
	f, started := testFactory(&config.Config{})

	_, err := f.Start(context.Background(), "chromium", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"chromium:/usr/bin/chromium"}, *started)
}

func TestFactoryStartsConfiguredMCP(t *testing.T) {
	f, started := testFactory(&config.Config{Engines: map[string]config.EngineConfig{
		"playwright": {Type: config.EngineMCP, Command: "npx"},
	}})

	_, err := f.Start(context.Background(), "playwright", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"mcp:npx"}, *started)
}

func TestFactoryUnknownKind(t *testing.T) {
	f, started := testFactory(&config.Config{})

	_, err := f.Start(context.Background(), "firefox", nil)
	require.ErrorIs(t, err, ErrUnknownKind)
	assert.Contains(t, err.Error(), "chromium")
	assert.Empty(t, *started)
}

func TestFactoryPrerequisiteFailureStopsLaunch(t *testing.T) {
	f, started := testFactory(&config.Config{})
	f.checkEngine = func(config.EngineConfig) (string, error) {
		return "", errors.New("no chromium-based browser found")
	}

	_, err := f.Start(context.Background(), "chromium", nil)
	require.Error(t, err)
	assert.Empty(t, *started)
}

func TestApplyOptionsOverridesEngineSettings(t *testing.T) {
	ec := applyOptions(config.EngineConfig{Type: config.EngineChromium}, map[string]string{
		"headless":   "false",
		"exec_path":  "/opt/chrome",
		"user_agent": "bot/1",
		"unrelated":  "x",
	})
	assert.False(t, ec.IsHeadless())
	assert.Equal(t, "/opt/chrome", ec.ExecPath)
	assert.Equal(t, "bot/1", ec.UserAgent)
}

func TestCloseWithinGraceful(t *testing.T) {
	var killed bool
	err := closeWithin(context.Background(), time.Second, false, func() error { return nil }, func() { killed = true })
	require.NoError(t, err)
	assert.True(t, killed, "kill always runs to release resources")
}

func TestCloseWithinTimesOut(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	var killed bool
	err := closeWithin(context.Background(), 20*time.Millisecond, false, func() error {
		<-release
		return nil
	}, func() { killed = true })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.True(t, killed)
}

func TestCloseWithinForceSkipsGraceful(t *testing.T) {
	var gracefulRan, killed bool
	err := closeWithin(context.Background(), time.Second, true, func() error {
		gracefulRan = true
		return nil
	}, func() { killed = true })
	require.NoError(t, err)
	assert.False(t, gracefulRan)
	assert.True(t, killed)
}
