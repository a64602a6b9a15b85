// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package reconciler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/bus"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/dataplane"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/mac"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/policy"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/registry"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

const (
	// DefaultInterval is the time between two reconciliation passes
	DefaultInterval = time.Second

	// DefaultPrefix is the bus path prefix of hostapd objects
	DefaultPrefix = "hostapd."

	// DefaultHandleOffset keeps client handles clear of the handles the
	// backend reserves for the interface itself.
	DefaultHandleOffset = 10

	// Unlimited replaces a zero limit in a single direction
	Unlimited uint32 = 1 * 1024 * 1024 * 1024
)

// ErrNotRunning is returned by Do once the event loop has stopped.
var ErrNotRunning = errors.New("reconciler not running")

var errAlreadyStarted = errors.New("reconciler already started")

// Config holds the engine settings
type Config struct {
	Interval     time.Duration
	Prefix       string
	HandleOffset int

	// Registerer receives the engine metrics. When nil the metrics are
	// kept in a private registry.
	Registerer prometheus.Registerer
}

// DefaultConfig returns the settings used by the daemon
func DefaultConfig() Config {
	return Config{
		Interval:     DefaultInterval,
		Prefix:       DefaultPrefix,
		HandleOffset: DefaultHandleOffset,
	}
}

type clientReply struct {
	iface   string
	session uint32
	clients []string
	err     error
}

type request struct {
	ctx  context.Context
	fn   func(*State) error
	done chan error
}

// Engine is the reconciliation loop. All State mutation happens on the
// goroutine running Run, or on the caller of Tick/Settle when Run is not
// used.
type Engine struct {
	cfg     Config
	bus     bus.Bus
	shaper  dataplane.Shaper
	state   *State
	metrics *Metrics

	replies  chan clientReply
	requests chan request

	// replies still expected, owned by the loop
	pending  int
	inflight sync.WaitGroup

	started atomic.Bool
	stopped chan struct{}
}

// New creates an engine. The registry and store are taken over by the
// engine and must not be used directly while Run is active.
func New(cfg Config, b bus.Bus, shaper dataplane.Shaper, store *policy.Store, reg *registry.Registry) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.NewRegistry()
	}

	return &Engine{
		cfg:      cfg,
		bus:      b,
		shaper:   shaper,
		state:    NewState(reg, store),
		metrics:  NewMetrics(cfg.Registerer),
		replies:  make(chan clientReply),
		requests: make(chan request),
		stopped:  make(chan struct{}),
	}
}

// Run drives reconciliation until ctx is canceled. It may be called once.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return errAlreadyStarted
	}
	defer close(e.stopped)

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	log.Infof("Reconciler running, interval %s", e.cfg.Interval)

	e.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			// fetchers give up on ctx, wait for them to return
			e.inflight.Wait()
			log.Info("Reconciler stopped")
			return nil
		case <-ticker.C:
			e.tick(ctx)
		case reply := <-e.replies:
			e.handleClients(reply)
		case req := <-e.requests:
			req.done <- e.serve(req)
		}
	}
}

// Do runs fn on the event loop and returns its error. Calls made before
// Run starts wait for it. Once fn has been picked up its result is always
// returned, so a caller never sees an error for a change that was applied.
func (e *Engine) Do(ctx context.Context, fn func(*State) error) error {
	req := request{ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case e.requests <- req:
	case <-e.stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-req.done
}

// serve runs a queued request unless its caller already gave up
func (e *Engine) serve(req request) error {
	if err := req.ctx.Err(); err != nil {
		return err
	}
	return req.fn(e.state)
}

// Tick runs one reconciliation pass on the calling goroutine. Client
// enumerations it starts are ingested by Settle. Must not be used while
// Run is active.
func (e *Engine) Tick(ctx context.Context) {
	e.tick(ctx)
}

// Settle waits for every client enumeration in flight and ingests the
// replies. Must not be used while Run is active.
func (e *Engine) Settle(ctx context.Context) error {
	for e.pending > 0 {
		select {
		case reply := <-e.replies:
			e.handleClients(reply)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// State returns the engine state for use outside Run.
func (e *Engine) State() *State {
	return e.state
}

// Metrics returns the engine collectors
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// Ping verifies the bus is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	return e.bus.Ping(ctx)
}

func (e *Engine) tick(ctx context.Context) {
	log.Debug("Recurring work")
	e.metrics.Ticks.Inc()

	e.refreshInterfaces(ctx)
	e.requestClients(ctx)
	e.reconcile(ctx)

	e.metrics.observe(e.state)
}

func (e *Engine) refreshInterfaces(ctx context.Context) {
	objects, err := e.bus.ListObjects(ctx, e.cfg.Prefix)
	if err != nil {
		// counts as a missed poll for every interface
		log.Errorf("Failed to list interfaces: %v", err)
		e.metrics.BusErrors.WithLabelValues("list").Inc()
		objects = nil
	}

	observed := make([]registry.Observation, 0, len(objects))
	for _, obj := range objects {
		name := obj.Name(e.cfg.Prefix)
		if name == "" {
			continue
		}
		log.Debugf("Interface %s available on bus", obj.Path)
		observed = append(observed, registry.Observation{Name: name, SessionID: obj.ID})
	}

	e.state.Registry.RefreshInterfaces(observed)
}

func (e *Engine) requestClients(ctx context.Context) {
	for _, iface := range e.state.Registry.Interfaces() {
		if iface.RequestPending {
			log.Debugf("Request already pending for interface %s", iface.Name)
			continue
		}

		log.Debugf("Requesting clients for interface %s", iface.Name)
		iface.RequestPending = true
		e.pending++
		e.inflight.Add(1)

		obj := bus.Object{Path: e.cfg.Prefix + iface.Name, ID: iface.SessionID}
		go e.fetchClients(ctx, iface.Name, obj)
	}
}

func (e *Engine) fetchClients(ctx context.Context, name string, obj bus.Object) {
	defer e.inflight.Done()

	clients, err := e.bus.GetClients(ctx, obj)
	reply := clientReply{
		iface:   name,
		session: obj.ID,
		clients: clients,
		err:     err,
	}

	select {
	case e.replies <- reply:
	case <-ctx.Done():
	}
}

// handleClients ingests one get_clients reply. The target interface is
// looked up again; a reply for an interface that expired or was
// recreated since the request is dropped.
func (e *Engine) handleClients(reply clientReply) {
	e.pending--

	iface := e.state.Registry.Lookup(reply.iface)
	if iface == nil || iface.SessionID != reply.session {
		log.Debugf("Dropping stale client list for interface %s", reply.iface)
		return
	}
	iface.RequestPending = false

	if reply.err != nil {
		e.metrics.BusErrors.WithLabelValues("get_clients").Inc()
		if errors.Is(reply.err, bus.ErrMalformedPayload) {
			log.Errorf("No clients found on interface %s: %v", iface.Name, reply.err)
		} else {
			log.Errorf("Failed to get clients of interface %s: %v", iface.Name, reply.err)
		}
		return
	}

	addrs := make([]mac.Addr, 0, len(reply.clients))
	for _, s := range reply.clients {
		addr, err := mac.ParseClient(s)
		if err != nil {
			log.Errorf("Failed to parse MAC address %q on interface %s: %v", s, iface.Name, err)
			continue
		}
		log.Debugf("Client mac=%s interface=%s", addr, iface.Name)
		addrs = append(addrs, addr)
	}

	changes := iface.RefreshClients(addrs)
	if n := len(changes.Dropped); n > 0 {
		e.metrics.SlotExhausted.Add(float64(n))
	}
}
