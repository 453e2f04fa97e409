package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/whuanle/easytouch/internal/config"
	"github.com/whuanle/easytouch/internal/envelope"
	"github.com/whuanle/easytouch/internal/ipc"
	"github.com/whuanle/easytouch/internal/registry"
)

// Reserved command names beyond the ipc liveness and stop commands.
const (
	CommandLaunch   = "launch"
	CommandClose    = "close"
	CommandCloseAll = "closeall"
	CommandStatus   = "status"
)

type commandFunc func(ctx context.Context, args []string) (any, error)

// Status is the data returned by the status command.
type Status struct {
	PID       int       `json:"pid"`
	Version   string    `json:"version,omitempty"`
	Network   string    `json:"network"`
	Address   string    `json:"address"`
	StartedAt time.Time `json:"startedAt"`
	Uptime    string    `json:"uptime"`
	Instances int       `json:"instances"`
}

func (d *Daemon) reservedCommands() map[string]commandFunc {
	return map[string]commandFunc{
		ipc.CommandPing:     d.cmdPing,
		ipc.CommandList:     d.cmdList,
		ipc.CommandStop:     d.cmdStop,
		ipc.CommandStopWire: d.cmdStop,
		CommandLaunch:       d.cmdLaunch,
		CommandClose:        d.cmdClose,
		CommandCloseAll:     d.cmdCloseAll,
		CommandStatus:       d.cmdStatus,
	}
}

// handle is the ipc.Handler for every accepted connection. Whatever the
// command does, the transport layer reports success; command failures travel
// in the inner response.
func (d *Daemon) handle(req *ipc.Request) envelope.Transport {
	start := time.Now()
	resp := d.dispatch(req)

	fields := []zap.Field{
		zap.String("command", req.Command),
		zap.Duration("duration", time.Since(start)),
		zap.Bool("success", resp.Success),
	}
	if !resp.Success {
		fields = append(fields, zap.String("error", resp.Error))
	}
	if ipc.IsLiveness(req.Command) {
		d.logger.Debug("request", fields...)
	} else {
		d.logger.Info("request", fields...)
	}
	return envelope.Carry(resp)
}

func (d *Daemon) dispatch(req *ipc.Request) (resp envelope.Response) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("command panicked",
				zap.String("command", req.Command),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			resp = envelope.Failf("internal error running %s: %v", req.Command, r)
		}
	}()

	ctx := d.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	name := ipc.NormalizeCommand(req.Command)
	if name == "" {
		return envelope.Failf("missing command")
	}
	if fn, ok := d.commands[name]; ok {
		data, err := fn(ctx, req.Args)
		if err != nil {
			return envelope.Fail(err)
		}
		return envelope.OK(data)
	}

	// Everything else is an engine command addressed to an instance.
	if len(req.Args) == 0 || strings.TrimSpace(req.Args[0]) == "" {
		return envelope.Failf("unknown command %q (engine commands take an instance id as the first argument)", req.Command)
	}
	id := req.Args[0]
	data, err := d.registry.Dispatch(ctx, id, strings.TrimSpace(req.Command), req.Args[1:])
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			d.keepalive.Forget(id)
		}
		return envelope.Fail(err)
	}
	d.keepalive.Touch(id)
	return envelope.OK(data)
}

func (d *Daemon) cmdPing(context.Context, []string) (any, error) {
	return map[string]any{"pong": true, "pid": d.descriptor.PID}, nil
}

func (d *Daemon) cmdList(ctx context.Context, _ []string) (any, error) {
	return d.registry.List(ctx), nil
}

func (d *Daemon) cmdStatus(context.Context, []string) (any, error) {
	return Status{
		PID:       d.descriptor.PID,
		Version:   d.descriptor.Version,
		Network:   d.descriptor.Network,
		Address:   d.descriptor.Address,
		StartedAt: d.descriptor.StartedAt,
		Uptime:    time.Since(d.descriptor.StartedAt).Round(time.Second).String(),
		Instances: d.registry.Len(),
	}, nil
}

func (d *Daemon) cmdStop(context.Context, []string) (any, error) {
	d.stopping = true
	return map[string]any{"stopping": true, "pid": os.Getpid()}, nil
}

// cmdLaunch handles: launch [kind] [key=value ...]
func (d *Daemon) cmdLaunch(ctx context.Context, args []string) (any, error) {
	kind := config.EngineChromium
	if len(args) > 0 && !strings.Contains(args[0], "=") {
		kind, args = args[0], args[1:]
	}
	options, err := parseOptions(args)
	if err != nil {
		return nil, err
	}

	id, err := d.registry.Launch(ctx, kind, options)
	if err != nil {
		return nil, err
	}
	d.keepalive.Touch(id)
	return map[string]string{"id": id, "kind": kind}, nil
}

// cmdClose handles: close <id> [force]
func (d *Daemon) cmdClose(ctx context.Context, args []string) (any, error) {
	if len(args) == 0 {
		return nil, errors.New("close: missing instance id")
	}
	id := args[0]
	force := len(args) > 1 && isForce(args[1])

	d.keepalive.Forget(id)
	result := map[string]any{"id": id, "closed": true}
	if err := d.registry.Close(ctx, id, force); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, err
		}
		// The entry is gone and the process was killed; report what the
		// graceful attempt hit.
		result["warning"] = err.Error()
	}
	return result, nil
}

// cmdCloseAll handles: closeall [force]
func (d *Daemon) cmdCloseAll(ctx context.Context, args []string) (any, error) {
	force := len(args) > 0 && isForce(args[0])
	d.keepalive.ForgetInstances()

	n, err := d.registry.CloseAll(ctx, force)
	result := map[string]any{"closed": n}
	if err != nil {
		result["warning"] = err.Error()
	}
	return result, nil
}

func parseOptions(args []string) (map[string]string, error) {
	options := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("launch option %q: want key=value", arg)
		}
		options[key] = value
	}
	return options, nil
}

func isForce(arg string) bool {
	switch strings.ToLower(strings.TrimLeft(arg, "-")) {
	case "force", "true", "1", "yes":
		return true
	default:
		return false
	}
}
