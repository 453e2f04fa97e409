package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/whuanle/easytouch/internal/config"
	"github.com/whuanle/easytouch/internal/engine"
	"github.com/whuanle/easytouch/internal/ipc"
	"github.com/whuanle/easytouch/internal/logging"
	"github.com/whuanle/easytouch/internal/paths"
	"github.com/whuanle/easytouch/internal/registry"
	"github.com/whuanle/easytouch/internal/version"
)

// ErrAlreadyRunning is returned when a live daemon already answers on the
// advertised channel.
var ErrAlreadyRunning = errors.New("daemon already running")

const (
	probeTimeout    = 500 * time.Millisecond
	shutdownTimeout = 15 * time.Second
)

// Options configures a daemon. Zero values fall back to the user's config and
// the standard runtime locations.
type Options struct {
	Config         *config.Config
	Logger         *zap.Logger
	Starter        engine.Starter
	DescriptorPath string
	Network        string
	Address        string
}

// Daemon owns the instance registry and serves the IPC channel one
// connection at a time.
type Daemon struct {
	cfg            *config.Config
	logger         *zap.Logger
	server         *ipc.Server
	registry       *registry.Registry
	keepalive      *Keepalive
	descriptorPath string
	descriptor     ipc.Descriptor
	commands       map[string]commandFunc

	// ctx is the lifetime context handed to commands while Serve runs.
	ctx      context.Context
	stopping bool
}

// Run starts the daemon process. Called when argv[1] == "__daemon".
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if verr := config.Validate(cfg); verr != nil {
		return fmt.Errorf("invalid config: %w", verr)
	}

	logger, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("opening log: %w", err)
	}
	defer logCloser.Close()
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := New(Options{Config: cfg, Logger: logger})
	if errors.Is(err, ErrAlreadyRunning) {
		logger.Info("another daemon is serving, exiting", zap.Error(err))
		return nil
	}
	if err != nil {
		logger.Error("daemon failed to start", zap.Error(err))
		return err
	}
	return d.Serve(ctx)
}

// New binds the channel and publishes the descriptor. It refuses to start
// when the descriptor points at a daemon that still answers pings.
func New(opts Options) (*Daemon, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	starter := opts.Starter
	if starter == nil {
		starter = engine.NewFactory(cfg, logger)
	}
	descriptorPath := opts.DescriptorPath
	if descriptorPath == "" {
		descriptorPath = paths.DescriptorPath()
	}
	network, address := opts.Network, opts.Address
	if network == "" {
		network, address = Channel(cfg.Daemon)
	}

	if err := paths.EnsureDir(paths.RuntimeDir()); err != nil {
		return nil, fmt.Errorf("creating runtime dir: %w", err)
	}
	if existing, err := ipc.ReadDescriptor(descriptorPath); err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		err := ipc.NewClient(existing, probeTimeout).Ping(ctx)
		cancel()
		// A broken read means something accepted the connection; a busy
		// daemon is still a live one.
		if err == nil || errors.Is(err, ipc.ErrBroken) {
			return nil, fmt.Errorf("%w: pid %d on %s", ErrAlreadyRunning, existing.PID, existing.Address)
		}
		logger.Info("replacing stale descriptor", zap.Int("stale_pid", existing.PID), zap.Error(err))
	}

	token := uuid.NewString()
	srv, err := ipc.Listen(network, address, token)
	if err != nil {
		return nil, err
	}

	desc := ipc.Descriptor{
		PID:       os.Getpid(),
		Network:   srv.Network(),
		Address:   srv.Address(),
		Token:     token,
		StartedAt: time.Now().UTC(),
		Version:   version.String(),
	}
	if err := ipc.WriteDescriptor(descriptorPath, desc); err != nil {
		srv.Close()
		return nil, err
	}

	d := &Daemon{
		cfg:            cfg,
		logger:         logger,
		server:         srv,
		registry:       registry.New(starter, logger),
		keepalive:      NewKeepalive(cfg.Daemon.InstanceIdleTimeoutOrZero(), cfg.Daemon.IdleTimeoutOrZero()),
		descriptorPath: descriptorPath,
		descriptor:     desc,
	}
	d.commands = d.reservedCommands()

	logger.Info("daemon listening",
		zap.String("network", desc.Network),
		zap.String("address", desc.Address),
		zap.String("version", desc.Version),
	)
	return d, nil
}

// Channel maps the configured transport to a listen network and address.
func Channel(dc config.DaemonConfig) (network, address string) {
	switch dc.EffectiveTransport() {
	case config.TransportTCP:
		return ipc.NetworkTCP, "127.0.0.1:0"
	case config.TransportPipe:
		return ipc.NetworkPipe, paths.PipeName()
	default:
		return ipc.NetworkUnix, paths.SocketPath()
	}
}

// Descriptor returns the descriptor this daemon published.
func (d *Daemon) Descriptor() ipc.Descriptor {
	return d.descriptor
}

// Serve accepts and dispatches connections strictly one at a time until a
// stop command, an idle self-stop, or ctx cancellation. It always shuts down
// before returning.
func (d *Daemon) Serve(ctx context.Context) error {
	d.ctx = ctx
	defer d.shutdown()

	d.keepalive.TouchDaemon()
	for {
		select {
		case conn, ok := <-d.server.Conns():
			if !ok {
				return errors.New("listener closed unexpectedly")
			}
			d.server.Serve(conn, d.handle)
			if d.stopping {
				d.logger.Info("stop requested")
				return nil
			}
			d.keepalive.TouchDaemon()
		case ev := <-d.keepalive.Events():
			if d.onIdle(ev) {
				d.logger.Info("idle timeout reached, stopping")
				return nil
			}
		case <-ctx.Done():
			d.logger.Info("signal received, stopping")
			return nil
		}
	}
}

// onIdle handles an expired keepalive window and reports whether the daemon
// should stop.
func (d *Daemon) onIdle(ev idleEvent) bool {
	if !d.keepalive.Current(ev) {
		return false
	}
	if ev.id == "" {
		if d.registry.Len() == 0 {
			return true
		}
		d.keepalive.TouchDaemon()
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.registry.Close(ctx, ev.id, false); err != nil && !errors.Is(err, registry.ErrNotFound) {
		d.logger.Warn("idle instance close", zap.String("id", ev.id), zap.Error(err))
	}
	d.logger.Info("idle instance closed", zap.String("id", ev.id))
	return false
}

// shutdown stops accepting first: requests queued behind a stop are refused
// as stopping and later clients fail to connect, so both start a fresh
// daemon. It then closes every instance and removes its own descriptor.
func (d *Daemon) shutdown() {
	d.keepalive.Stop()
	if err := d.server.Close(); err != nil {
		d.logger.Warn("closing listener", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if _, err := d.registry.CloseAll(ctx, false); err != nil {
		d.logger.Warn("closing instances", zap.Error(err))
	}

	if err := ipc.RemoveDescriptor(d.descriptorPath, d.descriptor); err != nil {
		d.logger.Warn("removing descriptor", zap.Error(err))
	}
	d.logger.Info("daemon stopped")
}
