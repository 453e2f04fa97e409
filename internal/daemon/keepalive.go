package daemon

import (
	"time"
)

// idleEvent reports that a keepalive window elapsed. An empty id refers to
// the daemon itself.
type idleEvent struct {
	id  string
	gen uint64
}

// Keepalive keeps sliding idle windows for instances and for the daemon.
// Expired windows are delivered as events on a channel read by the dispatch
// loop; Keepalive itself never touches the registry.
//
// All methods must be called from the dispatch loop goroutine.
type Keepalive struct {
	instanceTimeout time.Duration
	daemonTimeout   time.Duration

	events chan idleEvent
	done   chan struct{}

	timers  map[string]*time.Timer
	gens    map[string]uint64
	nextGen uint64
}

// NewKeepalive creates a keepalive manager. A zero timeout disables the
// corresponding window.
func NewKeepalive(instanceTimeout, daemonTimeout time.Duration) *Keepalive {
	return &Keepalive{
		instanceTimeout: instanceTimeout,
		daemonTimeout:   daemonTimeout,
		events:          make(chan idleEvent),
		done:            make(chan struct{}),
		timers:          make(map[string]*time.Timer),
		gens:            make(map[string]uint64),
	}
}

// Events delivers expired windows.
func (k *Keepalive) Events() <-chan idleEvent {
	return k.events
}

// Touch restarts the idle window of instance id.
func (k *Keepalive) Touch(id string) {
	if id == "" || k.instanceTimeout <= 0 {
		return
	}
	k.arm(id, k.instanceTimeout)
}

// TouchDaemon restarts the daemon's own idle window.
func (k *Keepalive) TouchDaemon() {
	if k.daemonTimeout <= 0 {
		return
	}
	k.arm("", k.daemonTimeout)
}

// Forget cancels the window of instance id.
func (k *Keepalive) Forget(id string) {
	if t, ok := k.timers[id]; ok {
		t.Stop()
		delete(k.timers, id)
		delete(k.gens, id)
	}
}

// ForgetInstances cancels every instance window, keeping the daemon's own.
func (k *Keepalive) ForgetInstances() {
	for id := range k.timers {
		if id != "" {
			k.Forget(id)
		}
	}
}

// Current reports whether ev belongs to the latest window for its id. Events
// from windows that were restarted or cancelled after firing are stale.
func (k *Keepalive) Current(ev idleEvent) bool {
	gen, ok := k.gens[ev.id]
	if !ok || gen != ev.gen {
		return false
	}
	delete(k.timers, ev.id)
	delete(k.gens, ev.id)
	return true
}

// Stop cancels every window. Timers that already fired are released.
func (k *Keepalive) Stop() {
	select {
	case <-k.done:
		return
	default:
	}
	close(k.done)
	for id, t := range k.timers {
		t.Stop()
		delete(k.timers, id)
		delete(k.gens, id)
	}
}

func (k *Keepalive) arm(id string, timeout time.Duration) {
	if t, ok := k.timers[id]; ok {
		t.Stop()
	}

	k.nextGen++
	ev := idleEvent{id: id, gen: k.nextGen}
	k.gens[id] = ev.gen
	k.timers[id] = time.AfterFunc(timeout, func() {
		select {
		case k.events <- ev:
		case <-k.done:
		}
	})
}
