package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/whuanle/easytouch/internal/bootstrap"
	"github.com/whuanle/easytouch/internal/config"
)

// Factory starts instances from the engines section of the configuration.
type Factory struct {
	cfg    *config.Config
	logger *zap.Logger

	checkEngine   func(config.EngineConfig) (string, error)
	startChromium func(ctx context.Context, ec config.EngineConfig, execPath string, options map[string]string, logger *zap.Logger) (Instance, error)
	startMCP      func(ctx context.Context, ec config.EngineConfig, logger *zap.Logger) (Instance, error)
}

// NewFactory returns a Factory for cfg.
func NewFactory(cfg *config.Config, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{
		cfg:           cfg,
		logger:        logger,
		checkEngine:   bootstrap.CheckEngine,
		startChromium: startChromium,
		startMCP:      startMCP,
	}
}

// Start launches a new instance of kind. options override engine settings for
// this instance only.
func (f *Factory) Start(ctx context.Context, kind string, options map[string]string) (Instance, error) {
	ec, ok := f.cfg.Engine(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q (configured: %v)", ErrUnknownKind, kind, f.cfg.EngineKinds())
	}
	ec = applyOptions(ec, options)

	execPath, err := f.checkEngine(ec)
	if err != nil {
		return nil, err
	}

	logger := f.logger.With(zap.String("kind", kind), zap.String("engine", ec.Type))
	switch ec.Type {
	case config.EngineMCP:
		return f.startMCP(ctx, ec, logger)
	default:
		return f.startChromium(ctx, ec, execPath, options, logger)
	}
}

// applyOptions layers per-launch options over the configured engine.
func applyOptions(ec config.EngineConfig, options map[string]string) config.EngineConfig {
	for key, value := range options {
		switch key {
		case "exec_path":
			ec.ExecPath = value
		case "headless":
			headless := value != "false" && value != "0"
			ec.Headless = &headless
		case "user_agent":
			ec.UserAgent = value
		}
	}
	return ec
}
