package engine

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/whuanle/easytouch/internal/config"
)

const (
	chromiumStartTimeout = 30 * time.Second
	chromiumProbeTimeout = 2 * time.Second
)

// chromiumInstance drives one browser process through a single tab.
type chromiumInstance struct {
	logger *zap.Logger

	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc

	product string

	// run executes actions against the tab. Replaced in tests.
	run func(ctx context.Context, actions ...chromedp.Action) error
}

func startChromium(ctx context.Context, ec config.EngineConfig, execPath string, options map[string]string, logger *zap.Logger) (Instance, error) {
	opts := allocatorOptions(ec, execPath, options)

	// The browser must outlive the request that launched it.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(logger.Sugar().Debugf))

	inst := &chromiumInstance{
		logger:      logger,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
	}
	inst.run = inst.runInTab

	startURL := options["url"]
	if startURL == "" {
		startURL = "about:blank"
	}

	started := make(chan error, 1)
	go func() {
		// The first Run on the tab context allocates the browser, so it must
		// not carry a deadline of its own.
		started <- chromedp.Run(tabCtx,
			chromedp.ActionFunc(func(ctx context.Context) error {
				_, product, _, _, _, err := browser.GetVersion().Do(ctx)
				inst.product = product
				return err
			}),
			chromedp.Navigate(startURL),
		)
	}()

	timer := time.NewTimer(chromiumStartTimeout)
	defer timer.Stop()

	select {
	case err := <-started:
		if err != nil {
			inst.kill()
			return nil, fmt.Errorf("browser failed to start or respond: %w", err)
		}
	case <-timer.C:
		inst.kill()
		<-started
		return nil, fmt.Errorf("browser did not respond within %s", chromiumStartTimeout)
	case <-ctx.Done():
		inst.kill()
		<-started
		return nil, ctx.Err()
	}

	logger.Info("browser started", zap.String("product", inst.product), zap.String("exec_path", execPath))
	return inst, nil
}

// allocatorOptions starts from chromedp's defaults and applies engine
// configuration and per-launch options.
func allocatorOptions(ec config.EngineConfig, execPath string, options map[string]string) []chromedp.ExecAllocatorOption {
	// Later flags override earlier ones and false disables a switch, so the
	// defaults' headless setting is replaced below.
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if execPath != "" {
		opts = append(opts, chromedp.ExecPath(execPath))
	}

	for name, value := range chromiumFlags(ec, options) {
		opts = append(opts, chromedp.Flag(name, value))
	}
	if ec.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(ec.UserAgent))
	}
	if dir := options["user_data_dir"]; dir != "" {
		opts = append(opts, chromedp.UserDataDir(dir))
	}
	return opts
}

// chromiumFlags returns the command-line switches for a browser launch.
func chromiumFlags(ec config.EngineConfig, options map[string]string) map[string]any {
	flags := map[string]any{
		"headless": ec.IsHeadless(),
	}
	if ec.IsHeadless() {
		flags["disable-gpu"] = true
	}
	if runtime.GOOS == "linux" {
		flags["no-sandbox"] = true
		flags["disable-dev-shm-usage"] = true
	}
	if size := options["window_size"]; size != "" {
		flags["window-size"] = strings.ReplaceAll(size, "x", ",")
	}

	for _, arg := range ec.Flags {
		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if name == "" {
			continue
		}
		if hasValue {
			flags[name] = value
		} else {
			flags[name] = true
		}
	}
	return flags
}

func (c *chromiumInstance) runInTab(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(c.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	return chromedp.Run(runCtx, actions...)
}

// Execute runs one browser command.
func (c *chromiumInstance) Execute(ctx context.Context, command string, args []string) (any, error) {
	cmd, ok := chromiumCommands[strings.ToLower(command)]
	if !ok {
		return nil, fmt.Errorf("%w: %s (chromium supports: %s)", ErrUnknownCommand, command, strings.Join(chromiumCommandNames(), ", "))
	}
	if len(args) < cmd.minArgs {
		return nil, fmt.Errorf("%s: usage: %s %s", command, command, cmd.usage)
	}
	return cmd.run(ctx, c, args)
}

// Alive probes the tab with a trivial script.
func (c *chromiumInstance) Alive(ctx context.Context) bool {
	if c.tabCtx.Err() != nil {
		return false
	}
	probeCtx, cancel := context.WithTimeout(ctx, chromiumProbeTimeout)
	defer cancel()

	var one int
	return c.run(probeCtx, chromedp.Evaluate(`1`, &one)) == nil && one == 1
}

// Close asks the browser to exit and kills it if it does not.
func (c *chromiumInstance) Close(ctx context.Context, force bool) error {
	err := closeWithin(ctx, gracefulCloseTimeout, force, func() error {
		return chromedp.Cancel(c.tabCtx)
	}, c.kill)
	if err != nil {
		c.logger.Warn("browser close", zap.Bool("force", force), zap.Error(err))
	}
	return err
}

func (c *chromiumInstance) kill() {
	c.tabCancel()
	c.allocCancel()
}
