package db

import (
	"context"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"github.com/nickyhof/AtlasDB/errs"
	"github.com/nickyhof/AtlasDB/ps"
	"github.com/nickyhof/AtlasDB/schema"
	"go.uber.org/zap"
)

// Connection states.
const (
	StateUninitialized = "uninitialized"
	StateOpening       = "opening"
	StateReady         = "ready"
	StateError         = "error"
	StateClosed        = "closed"
)

const (
	eventOpen   = "open"
	eventOpened = "opened"
	eventFail   = "fail"
	eventClose  = "close"
)

// OpenFunc creates the engine behind a Connection.
type OpenFunc func(ctx context.Context) (ps.Engine, error)

// Connection opens its engine lazily, exactly once. The first Open starts
// the attempt and every concurrent caller waits on that same attempt. Both
// outcomes are final: a ready connection keeps its engine and a failed one
// keeps its error.
type Connection struct {
	open        OpenFunc
	registry    schema.Registry
	openTimeout time.Duration
	logger      *zap.Logger

	mu     sync.Mutex
	fsm    *fsm.FSM
	done   chan struct{} // closed once the open attempt settles
	engine ps.Engine
	err    error
}

type ConnectionOption func(*Connection)

// WithOpenTimeout bounds the open attempt, including the schema upgrade.
func WithOpenTimeout(d time.Duration) ConnectionOption {
	return func(c *Connection) { c.openTimeout = d }
}

func WithLogger(logger *zap.Logger) ConnectionOption {
	return func(c *Connection) {
		if logger != nil {
			c.logger = logger.Named("connection")
		}
	}
}

func NewConnection(open OpenFunc, registry schema.Registry, opts ...ConnectionOption) *Connection {
	c := &Connection{
		open:     open,
		registry: registry,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.fsm = fsm.NewFSM(
		StateUninitialized,
		fsm.Events{
			{Name: eventOpen, Src: []string{StateUninitialized}, Dst: StateOpening},
			{Name: eventOpened, Src: []string{StateOpening}, Dst: StateReady},
			{Name: eventFail, Src: []string{StateOpening}, Dst: StateError},
			{Name: eventClose, Src: []string{StateUninitialized, StateReady, StateError}, Dst: StateClosed},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				c.logger.Debug("connection state changed",
					zap.String("from", e.Src),
					zap.String("to", e.Dst))
			},
		},
	)
	return c
}

// State reports the current lifecycle state.
func (c *Connection) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fsm.Current()
}

// Open returns the engine, opening it on first use. A cancelled ctx stops
// this caller from waiting but does not abort the shared attempt.
func (c *Connection) Open(ctx context.Context) (ps.Engine, error) {
	c.mu.Lock()
	switch c.fsm.Current() {
	case StateReady:
		engine := c.engine
		c.mu.Unlock()
		return engine, nil
	case StateError:
		err := c.err
		c.mu.Unlock()
		return nil, err
	case StateClosed:
		c.mu.Unlock()
		return nil, errs.New(errs.KindClosed, "connection is closed")
	case StateUninitialized:
		if err := c.fsm.Event(context.Background(), eventOpen); err != nil {
			c.mu.Unlock()
			return nil, errs.Wrap(errs.KindEngine, "start open", err)
		}
		c.done = make(chan struct{})
		go c.attempt()
	}
	done := c.done
	c.mu.Unlock()

	select {
	case <-done:
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.err != nil {
			return nil, c.err
		}
		if c.engine == nil {
			return nil, errs.New(errs.KindClosed, "connection is closed")
		}
		return c.engine, nil
	case <-ctx.Done():
		return nil, errs.Wrap(errs.KindTimeout, "waiting for connection", ctx.Err())
	}
}

func (c *Connection) attempt() {
	ctx := context.Background()
	if c.openTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.openTimeout)
		defer cancel()
	}

	start := time.Now()
	engine, err := c.openEngine(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	defer close(c.done)

	if err != nil {
		c.err = err
		c.logger.Error("open failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		if fsmErr := c.fsm.Event(context.Background(), eventFail); fsmErr != nil {
			c.logger.Warn("unexpected transition failure", zap.Error(fsmErr))
		}
		return
	}

	c.engine = engine
	c.logger.Info("connection ready",
		zap.Int("schema_version", c.registry.Version),
		zap.Duration("elapsed", time.Since(start)))
	if fsmErr := c.fsm.Event(context.Background(), eventOpened); fsmErr != nil {
		c.logger.Warn("unexpected transition failure", zap.Error(fsmErr))
	}
}

func (c *Connection) openEngine(ctx context.Context) (engine ps.Engine, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.Newf(errs.KindEngine, "open engine panicked: %v", r)
		}
	}()

	engine, err = c.open(ctx)
	if err != nil {
		return nil, engineError("open engine", err)
	}
	if engine == nil {
		return nil, errs.New(errs.KindEngine, "open engine returned no engine")
	}

	if err := schema.EnsureSchema(ctx, engine, c.registry); err != nil {
		_ = engine.Close()
		return nil, err
	}
	return engine, nil
}

// Close releases a ready engine. A pending open is waited for first.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.fsm.Current() == StateOpening {
		done := c.done
		c.mu.Unlock()
		<-done
		c.mu.Lock()
	}
	defer c.mu.Unlock()

	if c.fsm.Current() == StateClosed {
		return nil
	}

	var err error
	if c.engine != nil {
		err = c.engine.Close()
		c.engine = nil
	}
	if fsmErr := c.fsm.Event(context.Background(), eventClose); fsmErr != nil {
		c.logger.Warn("unexpected transition failure", zap.Error(fsmErr))
	}
	c.logger.Info("connection closed")

	if err != nil {
		return errs.Wrap(errs.KindEngine, "close engine", err)
	}
	return nil
}
