package mcp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/utils/logging"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// maxMessageSize bounds one posted JSON-RPC message
const maxMessageSize = 4 << 20

var (
	ErrTransportNotInitialized = goerr.New("transport not initialized")
	ErrSessionNotFound         = goerr.New("session not found")
	ErrUserMismatch            = goerr.New("session belongs to another user")
	ErrInvalidSessionID        = goerr.New("invalid session ID")
)

// ServerFactory builds the MCP server serving one user
type ServerFactory func(user model.UserID) *mcp.Server

// unit is the durable, addressable holder of one transport. The transport
// and its MCP session are created on the first stream and live until the
// unit is closed.
type unit struct {
	id   model.SessionID
	user model.UserID

	mu        sync.Mutex
	transport *sseTransport
	session   *mcp.ServerSession
	preempt   chan struct{} // closed when a newer stream takes over
	idleSince time.Time
	closed    bool
}

func (u *unit) endpoint() string {
	return fmt.Sprintf("/%s/messages?sessionId=%s", u.user, u.id)
}

// ensureTransport creates the transport and connects a server session to it
// if this is the unit's first stream.
func (u *unit) ensureTransport(ctx context.Context, factory ServerFactory) (*sseTransport, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed {
		return nil, goerr.Wrap(ErrTransportClosed, "unit is closed", goerr.V("session_id", u.id))
	}
	if u.transport != nil {
		return u.transport, nil
	}

	t := newSSETransport(u.id.String(), u.endpoint())
	session, err := factory(u.user).Connect(ctx, t, nil)
	if err != nil {
		_ = t.Close()
		return nil, goerr.Wrap(err, "failed to connect MCP server", goerr.V("session_id", u.id))
	}

	u.transport = t
	u.session = session
	return t, nil
}

func (u *unit) currentTransport() *sseTransport {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.transport
}

// attach registers a new stream and preempts the previous one
func (u *unit) attach() chan struct{} {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.preempt != nil {
		close(u.preempt)
	}
	ch := make(chan struct{})
	u.preempt = ch
	return ch
}

func (u *unit) detach(ch chan struct{}) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.preempt == ch {
		u.preempt = nil
		u.idleSince = time.Now()
	}
}

// idle reports whether no stream has been attached since before cutoff
func (u *unit) idle(cutoff time.Time) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.preempt == nil && u.idleSince.Before(cutoff)
}

func (u *unit) close() {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed {
		return
	}
	u.closed = true

	if u.session != nil {
		_ = u.session.Close()
	}
	if u.transport != nil {
		_ = u.transport.Close()
	}
}

// Router pairs SSE streams with message posts through per-session units
type Router struct {
	factory     ServerFactory
	idleTimeout time.Duration

	// ctx outlives requests and scopes every MCP server session
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	units map[model.SessionID]*unit

	activeUnits metric.Int64UpDownCounter
	streams     metric.Int64Counter
	messages    metric.Int64Counter
}

type RouterOption func(*routerConfig)

type routerConfig struct {
	idleTimeout   time.Duration
	meterProvider metric.MeterProvider
}

// WithIdleTimeout closes units that had no stream attached for d. Zero
// keeps units until the router is closed.
func WithIdleTimeout(d time.Duration) RouterOption {
	return func(c *routerConfig) {
		c.idleTimeout = d
	}
}

// WithRouterMeterProvider sets the meter provider for session metrics
func WithRouterMeterProvider(mp metric.MeterProvider) RouterOption {
	return func(c *routerConfig) {
		c.meterProvider = mp
	}
}

// NewRouter creates a Router building one MCP server per unit with factory
func NewRouter(factory ServerFactory, opts ...RouterOption) (*Router, error) {
	cfg := &routerConfig{meterProvider: otel.GetMeterProvider()}
	for _, opt := range opts {
		opt(cfg)
	}

	meter := cfg.meterProvider.Meter(instrumentationName)
	activeUnits, err := meter.Int64UpDownCounter("kioku.mcp.units",
		metric.WithDescription("Number of live session units"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create unit counter")
	}
	streams, err := meter.Int64Counter("kioku.mcp.streams",
		metric.WithDescription("Number of SSE streams opened"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create stream counter")
	}
	messages, err := meter.Int64Counter("kioku.mcp.messages",
		metric.WithDescription("Number of posted JSON-RPC messages"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create message counter")
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Router{
		factory:     factory,
		idleTimeout: cfg.idleTimeout,
		ctx:         ctx,
		cancel:      cancel,
		units:       make(map[model.SessionID]*unit),
		activeUnits: activeUnits,
		streams:     streams,
		messages:    messages,
	}

	if r.idleTimeout > 0 {
		r.wg.Add(1)
		go r.janitor()
	}

	return r, nil
}

// Register mounts the stream and message endpoints on mux
func (r *Router) Register(mux *http.ServeMux) {
	mux.Handle("GET /{userID}/sse", cors(http.HandlerFunc(r.handleStream)))
	mux.Handle("POST /{userID}/messages", cors(http.HandlerFunc(r.handleMessage)))
	mux.Handle("OPTIONS /{userID}/sse", cors(http.HandlerFunc(preflight)))
	mux.Handle("OPTIONS /{userID}/messages", cors(http.HandlerFunc(preflight)))
}

// Units returns the number of live units
func (r *Router) Units() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.units)
}

// Close closes every unit and stops the janitor
func (r *Router) Close() error {
	r.cancel()
	r.wg.Wait()

	r.mu.Lock()
	units := r.units
	r.units = make(map[model.SessionID]*unit)
	r.mu.Unlock()

	for _, u := range units {
		u.close()
		r.activeUnits.Add(context.Background(), -1)
	}
	return nil
}

// getOrCreate returns the unit for id, allocating it when id is unseen
func (r *Router) getOrCreate(ctx context.Context, id model.SessionID, user model.UserID) (*unit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.units[id]; ok {
		if u.user != user {
			return nil, goerr.Wrap(ErrUserMismatch, "cannot attach stream", goerr.V("session_id", id))
		}
		return u, nil
	}

	u := &unit{id: id, user: user, idleSince: time.Now()}
	r.units[id] = u
	r.activeUnits.Add(ctx, 1)
	logging.From(ctx).Info("session unit allocated", "session_id", id, "user_id", user)
	return u, nil
}

func (r *Router) lookup(id model.SessionID) (*unit, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.units[id]
	return u, ok
}

func (r *Router) remove(ctx context.Context, u *unit) {
	r.mu.Lock()
	if r.units[u.id] != u {
		r.mu.Unlock()
		return
	}
	delete(r.units, u.id)
	r.mu.Unlock()

	u.close()
	r.activeUnits.Add(ctx, -1)
}

func (r *Router) janitor() {
	defer r.wg.Done()

	interval := max(r.idleTimeout/2, time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case now := <-ticker.C:
			r.evict(now.Add(-r.idleTimeout))
		}
	}
}

func (r *Router) evict(cutoff time.Time) {
	r.mu.Lock()
	var idle []*unit
	for _, u := range r.units {
		if u.idle(cutoff) {
			idle = append(idle, u)
		}
	}
	r.mu.Unlock()

	for _, u := range idle {
		logging.Default().Info("closing idle session unit", "session_id", u.id, "user_id", u.user)
		r.remove(r.ctx, u)
	}
}

func (r *Router) handleStream(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	user := model.UserID(req.PathValue("userID"))

	id := model.SessionID(req.URL.Query().Get("sessionId"))
	if id == "" {
		id = model.NewSessionID()
	} else if !id.Valid() {
		http.Error(w, ErrInvalidSessionID.Error(), http.StatusBadRequest)
		return
	}

	u, err := r.getOrCreate(ctx, id, user)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	t, err := u.ensureTransport(r.ctx, r.factory)
	if err != nil {
		logging.From(ctx).Error("failed to initialize transport", logging.ErrAttr(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	preempt := u.attach()
	defer u.detach(preempt)
	r.streams.Add(ctx, 1, metric.WithAttributes(attribute.String("user_id", user.String())))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	if err := writeEvent(w, rc, "endpoint", []byte(t.endpoint)); err != nil {
		logging.From(ctx).Warn("failed to write endpoint event", logging.ErrAttr(err))
		return
	}
	logging.From(ctx).Info("stream attached", "session_id", id, "user_id", user)

	for {
		select {
		case <-preempt:
			logging.From(ctx).Info("stream preempted", "session_id", id)
			return
		case <-t.done:
			return
		case <-ctx.Done():
			logging.From(ctx).Info("stream closed by client", "session_id", id)
			return
		case data := <-t.outbox:
			if err := writeEvent(w, rc, "message", data); err != nil {
				logging.From(ctx).Warn("failed to write message event", logging.ErrAttr(err), "session_id", id)
				return
			}
		}
	}
}

func (r *Router) handleMessage(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	user := model.UserID(req.PathValue("userID"))
	id := model.SessionID(req.URL.Query().Get("sessionId"))

	u, ok := r.lookup(id)
	var t *sseTransport
	if ok {
		t = u.currentTransport()
	}
	if t == nil {
		err := goerr.Wrap(ErrTransportNotInitialized, "no stream was opened for session", goerr.V("session_id", id))
		logging.From(ctx).Error("message for uninitialized transport", logging.ErrAttr(err))
		http.Error(w, ErrTransportNotInitialized.Error(), http.StatusInternalServerError)
		return
	}
	if u.user != user {
		http.Error(w, ErrUserMismatch.Error(), http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(req.Body, maxMessageSize))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	msg, err := jsonrpc.DecodeMessage(body)
	if err != nil {
		http.Error(w, "invalid message", http.StatusBadRequest)
		return
	}

	if err := t.deliver(ctx, msg); err != nil {
		logging.From(ctx).Error("failed to deliver message", logging.ErrAttr(err), "session_id", id)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	r.messages.Add(ctx, 1)

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeEvent(w io.Writer, rc *http.ResponseController, event string, data []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return rc.Flush()
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		next.ServeHTTP(w, r)
	})
}

func preflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
