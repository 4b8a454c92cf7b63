package db

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nickyhof/AtlasDB/errs"
	"github.com/nickyhof/AtlasDB/ps"
	"github.com/nickyhof/AtlasDB/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestConnectionOpensLazily(t *testing.T) {
	var calls atomic.Int32
	conn := NewConnection(func(ctx context.Context) (ps.Engine, error) {
		calls.Add(1)
		return ps.NewMemoryGitEngine(testIdentity)
	}, schema.Default, WithLogger(zaptest.NewLogger(t)))
	defer conn.Close()

	assert.Equal(t, StateUninitialized, conn.State())
	assert.Equal(t, int32(0), calls.Load())

	engine, err := conn.Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateReady, conn.State())

	version, err := engine.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, schema.Default.Version, version)

	again, err := conn.Open(context.Background())
	require.NoError(t, err)
	assert.Same(t, engine, again)
	assert.Equal(t, int32(1), calls.Load())
}

func TestConcurrentOpenSharesOneAttempt(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	conn := NewConnection(func(ctx context.Context) (ps.Engine, error) {
		calls.Add(1)
		<-release
		return ps.NewMemoryGitEngine(testIdentity)
	}, schema.Default, WithLogger(zaptest.NewLogger(t)))
	defer conn.Close()

	const callers = 10
	engines := make([]ps.Engine, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			engine, err := conn.Open(context.Background())
			assert.NoError(t, err)
			engines[i] = engine
		}(i)
	}

	require.Eventually(t, func() bool { return conn.State() == StateOpening }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, engine := range engines {
		assert.Same(t, engines[0], engine)
	}
}

func TestFailedOpenIsTerminal(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("disk on fire")
	conn := NewConnection(func(ctx context.Context) (ps.Engine, error) {
		calls.Add(1)
		return nil, boom
	}, schema.Default, WithLogger(zaptest.NewLogger(t)))

	_, err := conn.Open(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsEngine(err))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateError, conn.State())

	_, again := conn.Open(context.Background())
	assert.Same(t, err, again)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSchemaFailureIsTerminal(t *testing.T) {
	bad := schema.Registry{Version: 0}
	conn := NewConnection(func(ctx context.Context) (ps.Engine, error) {
		return ps.NewMemoryGitEngine(testIdentity)
	}, bad, WithLogger(zaptest.NewLogger(t)))

	_, err := conn.Open(context.Background())
	assert.True(t, errs.IsInvalidInput(err))
	assert.Equal(t, StateError, conn.State())
}

func TestWaiterGivesUpButAttemptContinues(t *testing.T) {
	release := make(chan struct{})
	conn := NewConnection(func(ctx context.Context) (ps.Engine, error) {
		<-release
		return ps.NewMemoryGitEngine(testIdentity)
	}, schema.Default, WithLogger(zaptest.NewLogger(t)))
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := conn.Open(ctx)
	assert.True(t, errs.IsTimeout(err))

	close(release)
	engine, err := conn.Open(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, engine)
}

func TestOpenTimeout(t *testing.T) {
	conn := NewConnection(func(ctx context.Context) (ps.Engine, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, schema.Default, WithOpenTimeout(10*time.Millisecond), WithLogger(zaptest.NewLogger(t)))

	_, err := conn.Open(context.Background())
	assert.True(t, errs.IsTimeout(err))
	assert.Equal(t, StateError, conn.State())
}

func TestCloseConnection(t *testing.T) {
	conn := NewConnection(func(ctx context.Context) (ps.Engine, error) {
		return ps.NewMemoryGitEngine(testIdentity)
	}, schema.Default)

	engine, err := conn.Open(context.Background())
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	assert.Equal(t, StateClosed, conn.State())
	require.NoError(t, conn.Close())

	_, err = conn.Open(context.Background())
	assert.True(t, errs.IsClosed(err))

	_, err = engine.Version(context.Background())
	assert.ErrorIs(t, err, ps.ErrClosed)
}

func TestCloseBeforeOpen(t *testing.T) {
	conn := NewConnection(func(ctx context.Context) (ps.Engine, error) {
		t.Error("engine should never be opened")
		return nil, nil
	}, schema.Default)

	require.NoError(t, conn.Close())
	_, err := conn.Open(context.Background())
	assert.True(t, errs.IsClosed(err))
}

func TestOpenPanicBecomesError(t *testing.T) {
	conn := NewConnection(func(ctx context.Context) (ps.Engine, error) {
		panic("bad factory")
	}, schema.Default)

	_, err := conn.Open(context.Background())
	assert.True(t, errs.IsEngine(err))
	assert.Contains(t, err.Error(), "bad factory")
}
