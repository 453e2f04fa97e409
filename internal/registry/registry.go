// Package registry tracks the automation instances owned by the daemon.
//
// A Registry is not safe for concurrent use. The daemon mutates it only from
// its dispatch loop.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/whuanle/easytouch/internal/engine"
)

// ErrNotFound is returned for ids that were never launched or are already closed.
var ErrNotFound = errors.New("instance not found")

const probeTimeout = 3 * time.Second

type entry struct {
	id        string
	kind      string
	instance  engine.Instance
	createdAt time.Time
	lastUsed  time.Time
}

// Info describes one registered instance.
type Info struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Connected bool      `json:"connected"`
	CreatedAt time.Time `json:"createdAt"`
	LastUsed  time.Time `json:"lastUsed"`
}

// Registry maps instance ids to live engine instances.
type Registry struct {
	starter engine.Starter
	logger  *zap.Logger
	now     func() time.Time

	nextID  uint64
	entries map[string]*entry
}

// New returns an empty registry that starts instances with starter.
func New(starter engine.Starter, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		starter: starter,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// Launch starts an instance of kind and returns its id. Ids are never reused
// within the lifetime of the registry, including ids of failed launches.
func (r *Registry) Launch(ctx context.Context, kind string, options map[string]string) (string, error) {
	r.nextID++
	id := strconv.FormatUint(r.nextID, 10)

	inst, err := r.starter.Start(ctx, kind, options)
	if err != nil {
		return "", fmt.Errorf("launching %s: %w", kind, err)
	}

	now := r.now()
	r.entries[id] = &entry{
		id:        id,
		kind:      kind,
		instance:  inst,
		createdAt: now,
		lastUsed:  now,
	}
	r.logger.Info("instance launched", zap.String("id", id), zap.String("kind", kind))
	return id, nil
}

// Dispatch forwards command to the instance bound to id and returns its result
// unchanged.
func (r *Registry) Dispatch(ctx context.Context, id, command string, args []string) (any, error) {
	e, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e.lastUsed = r.now()
	return e.instance.Execute(ctx, command, args)
}

// Close shuts down the instance bound to id. The entry is removed even when
// shutdown fails.
func (r *Registry) Close(ctx context.Context, id string, force bool) error {
	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(r.entries, id)

	err := e.instance.Close(ctx, force)
	r.logger.Info("instance closed", zap.String("id", id), zap.Bool("force", force), zap.Error(err))
	if err != nil {
		return fmt.Errorf("closing %s: %w", id, err)
	}
	return nil
}

// CloseAll shuts down every instance concurrently and empties the registry.
// It returns the number of instances closed and the joined shutdown errors.
func (r *Registry) CloseAll(ctx context.Context, force bool) (int, error) {
	entries := r.entries
	r.entries = make(map[string]*entry)

	errs := make([]error, 0, len(entries))
	results := make(chan error, len(entries))

	var g errgroup.Group
	for id, e := range entries {
		g.Go(func() error {
			if err := e.instance.Close(ctx, force); err != nil {
				results <- fmt.Errorf("closing %s: %w", id, err)
			}
			return nil
		})
	}
	g.Wait() //nolint:errcheck
	close(results)

	for err := range results {
		errs = append(errs, err)
	}
	if len(entries) > 0 {
		r.logger.Info("all instances closed", zap.Int("count", len(entries)), zap.Int("failed", len(errs)))
	}
	return len(entries), errors.Join(errs...)
}

// List reports every entry with a fresh liveness probe, ordered by id.
func (r *Registry) List(ctx context.Context) []Info {
	entries := r.sorted()
	infos := make([]Info, len(entries))

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	var g errgroup.Group
	for i, e := range entries {
		infos[i] = Info{
			ID:        e.id,
			Kind:      e.kind,
			CreatedAt: e.createdAt,
			LastUsed:  e.lastUsed,
		}
		g.Go(func() error {
			infos[i].Connected = e.instance.Alive(probeCtx)
			return nil
		})
	}
	g.Wait() //nolint:errcheck
	return infos
}

// Len returns the number of registered instances.
func (r *Registry) Len() int {
	return len(r.entries)
}

func (r *Registry) sorted() []*entry {
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, _ := strconv.ParseUint(entries[i].id, 10, 64)
		b, _ := strconv.ParseUint(entries[j].id, 10, 64)
		return a < b
	})
	return entries
}
