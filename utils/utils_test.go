package utils

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Circuit Breaker Tests

var errUpstream = errors.New("upstream 503")

func failCall() (any, error) { return nil, errUpstream }

func okCall() (any, error) { return "ok", nil }

func TestCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker("stacks-api")

	assert.Equal(t, "stacks-api", cb.Name())
	assert.Equal(t, uint32(10), cb.cfg.MinRequests)
	assert.Equal(t, uint32(1), cb.cfg.HalfOpenProbes)
	assert.Equal(t, time.Minute, cb.cfg.Interval)
	assert.Equal(t, 30*time.Second, cb.cfg.Timeout)
	assert.Equal(t, 0.6, cb.cfg.FailureRatio)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_Execute(t *testing.T) {
	cb := NewCircuitBreaker("pinata")
	ctx := context.Background()

	result, err := cb.Execute(ctx, okCall)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)

	_, err = cb.Execute(ctx, failCall)
	assert.ErrorIs(t, err, errUpstream)

	assert.Equal(t, Counts{Requests: 2, TotalSuccesses: 1, TotalFailures: 1, ConsecutiveFailures: 1}, cb.counts)
}

func TestCircuitBreaker_CancelledContext(t *testing.T) {
	cb := NewCircuitBreaker("stacks-api")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cb.Execute(ctx, func() (any, error) {
		t.Fatal("must not run with a cancelled context")
		return nil, nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, cb.counts.Requests)
}

func TestCircuitBreaker_CancelledDuringCall(t *testing.T) {
	cb := NewCircuitBreakerWithConfig(BreakerConfig{Name: "stacks-api", MinRequests: 1})
	ctx, cancel := context.WithCancel(context.Background())

	_, err := cb.Execute(ctx, func() (any, error) {
		cancel()
		return nil, context.Canceled
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State(), "a caller giving up is not an upstream failure")
}

func TestCircuitBreaker_PermanentErrorsDoNotTrip(t *testing.T) {
	cb := NewCircuitBreakerWithConfig(BreakerConfig{Name: "pinata", MinRequests: 2})
	ctx := context.Background()
	badKey := errors.New("http status 401")

	for i := 0; i < 5; i++ {
		_, err := cb.Execute(ctx, func() (any, error) { return nil, Permanent(badKey) })
		assert.ErrorIs(t, err, badKey)
		assert.True(t, IsPermanent(err))
	}
	assert.Equal(t, StateClosed, cb.State())
	assert.Zero(t, cb.counts.TotalFailures)

	assert.NoError(t, Permanent(nil))
	assert.False(t, IsPermanent(errUpstream))
}

func TestCircuitBreaker_ClosedToOpen(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreakerWithConfig(BreakerConfig{
		Name:        "stacks-api",
		MinRequests: 5,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := cb.Execute(ctx, okCall)
		require.NoError(t, err)
	}
	for i := 0; i < 3; i++ {
		_, err := cb.Execute(ctx, failCall)
		require.ErrorIs(t, err, errUpstream)
	}
	assert.Equal(t, StateOpen, cb.State())
	assert.Equal(t, []string{"stacks-api:closed->open"}, transitions)

	_, err := cb.Execute(ctx, func() (any, error) {
		t.Fatal("must not run while open")
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrOpenState)
	assert.Contains(t, err.Error(), "stacks-api: circuit breaker is open")
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	cb := NewCircuitBreakerWithConfig(BreakerConfig{
		Name:        "stacks-api",
		MinRequests: 2,
		Timeout:     50 * time.Millisecond,
	})
	ctx := context.Background()

	cb.Execute(ctx, failCall)
	cb.Execute(ctx, failCall)
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(80 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())

	// One probe at a time while half-open.
	release := make(chan struct{})
	done := make(chan error)
	go func() {
		_, err := cb.Execute(ctx, func() (any, error) {
			<-release
			return "ok", nil
		})
		done <- err
	}()
	require.Eventually(t, func() bool {
		cb.mu.Lock()
		defer cb.mu.Unlock()
		return cb.counts.Requests == 1
	}, time.Second, 5*time.Millisecond)

	_, err := cb.Execute(ctx, okCall)
	assert.ErrorIs(t, err, ErrTooManyRequests)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreakerWithConfig(BreakerConfig{
		Name:        "pinata",
		MinRequests: 2,
		Timeout:     50 * time.Millisecond,
	})
	ctx := context.Background()

	cb.Execute(ctx, failCall)
	cb.Execute(ctx, failCall)
	time.Sleep(80 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())

	_, err := cb.Execute(ctx, failCall)
	assert.ErrorIs(t, err, errUpstream)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb := NewCircuitBreakerWithConfig(BreakerConfig{Name: "stacks-api", MinRequests: 1000})
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_, err := cb.Execute(ctx, func() (any, error) {
				if id%10 == 0 {
					return nil, errUpstream
				}
				return "ok", nil
			})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 90, successes)
	assert.Equal(t, uint32(100), cb.counts.Requests)
	assert.Equal(t, uint32(10), cb.counts.TotalFailures)
}

func TestCircuitBreaker_PanicCountsAsFailure(t *testing.T) {
	cb := NewCircuitBreaker("pinata")
	ctx := context.Background()

	assert.Panics(t, func() {
		cb.Execute(ctx, func() (any, error) {
			panic("decoder bug")
		})
	})
	assert.Equal(t, uint32(1), cb.counts.TotalFailures)

	result, err := cb.Execute(ctx, okCall)
	assert.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestCircuitBreaker_ReadyToTrip(t *testing.T) {
	tests := []struct {
		name     string
		requests uint32
		failures uint32
		want     bool
	}{
		{"below sample size", 9, 9, false},
		{"high failure ratio", 10, 8, true},
		{"low failure ratio", 10, 3, false},
		{"exact threshold", 10, 6, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb := NewCircuitBreaker("stacks-api")
			cb.counts.Requests = tt.requests
			cb.counts.TotalFailures = tt.failures
			assert.Equal(t, tt.want, cb.readyToTrip())
		})
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "unknown state 7", State(7).String())
}

// Redis Client Tests

func TestRedisHealthCheck_Success(t *testing.T) {
	db, mock := redismock.NewClientMock()

	mock.ExpectPing().SetVal("PONG")

	err := RedisHealthCheck(db)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisHealthCheck_Failure(t *testing.T) {
	db, mock := redismock.NewClientMock()

	mock.ExpectPing().SetErr(errors.New("connection failed"))

	err := RedisHealthCheck(db)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis health check failed")
	assert.Contains(t, err.Error(), "connection failed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ID Tests

func TestNewEventID(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id, err := NewEventID()
		require.NoError(t, err)
		assert.Len(t, id, eventIDLength)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestNewSessionID(t *testing.T) {
	id, err := NewSessionID()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(id, "session_"))
	assert.True(t, IsValidSessionID(id))

	assert.False(t, IsValidSessionID(""))
	assert.False(t, IsValidSessionID("session_xyz"))
	assert.False(t, IsValidSessionID(strings.TrimPrefix(id, "session_")))
}

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode(8)
	require.NoError(t, err)
	assert.Len(t, code, 16)
	assert.Equal(t, strings.ToUpper(code), code)
}
