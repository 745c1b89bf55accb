package sync

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type countingLoop struct {
	name     string
	interval time.Duration
	runs     int32
	block    chan struct{}
}

func (c *countingLoop) Name() string            { return c.name }
func (c *countingLoop) Interval() time.Duration { return c.interval }
func (c *countingLoop) Run(ctx context.Context) error {
	atomic.AddInt32(&c.runs, 1)
	if c.block != nil {
		<-c.block
	}
	return nil
}

func TestTriggerNow_UnknownLoopReturnsFalse(t *testing.T) {
	s := NewScheduler(&mockLogger{})
	assert.False(t, s.TriggerNow(context.Background(), "nonexistent"))
}

func TestTriggerNow_KnownLoopRunsAndReturnsTrue(t *testing.T) {
	loop := &countingLoop{name: "test", interval: time.Hour}
	s := NewScheduler(&mockLogger{}, loop)

	ok := s.TriggerNow(context.Background(), "test")
	assert.True(t, ok)

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&loop.runs) == 1
	}, time.Second, time.Millisecond)
}

func TestStatus_ReportsRunningLoop(t *testing.T) {
	loop := &countingLoop{name: "slow", interval: time.Hour, block: make(chan struct{})}
	s := NewScheduler(&mockLogger{}, loop)

	s.TriggerNow(context.Background(), "slow")
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&loop.runs) == 1
	}, time.Second, time.Millisecond)

	status := s.Status()
	assert.True(t, status["slow"])

	close(loop.block)
	assert.Eventually(t, func() bool {
		return !s.Status()["slow"]
	}, time.Second, time.Millisecond)
}

func TestRun_TicksLoopOnInterval(t *testing.T) {
	loop := &countingLoop{name: "ticking", interval: 10 * time.Millisecond}
	s := NewScheduler(&mockLogger{}, loop)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Run(ctx)
	}()
	wg.Wait()

	assert.GreaterOrEqual(t, atomic.LoadInt32(&loop.runs), int32(2))
}
