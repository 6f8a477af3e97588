package engine

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"torrent-monitor/app/logger"
)

// gatedExecutor 每次执行都等待 release，记录调用参数与并发数
type gatedExecutor struct {
	mu         sync.Mutex
	calls      [][]uint
	running    int32
	maxRunning int32
	started    chan struct{}
	release    chan struct{}
	panicOnce  atomic.Bool
}

func newGatedExecutor() *gatedExecutor {
	return &gatedExecutor{started: make(chan struct{}, 16), release: make(chan struct{})}
}

func (g *gatedExecutor) Execute(ids []uint) error {
	n := atomic.AddInt32(&g.running, 1)
	defer atomic.AddInt32(&g.running, -1)
	for {
		peak := atomic.LoadInt32(&g.maxRunning)
		if n <= peak || atomic.CompareAndSwapInt32(&g.maxRunning, peak, n) {
			break
		}
	}

	g.mu.Lock()
	g.calls = append(g.calls, ids)
	g.mu.Unlock()

	g.started <- struct{}{}
	if g.release != nil {
		<-g.release
	}
	if g.panicOnce.CompareAndSwap(true, false) {
		panic("executor exploded")
	}
	return nil
}

func (g *gatedExecutor) callList() [][]uint {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([][]uint(nil), g.calls...)
}

func waitStarted(t *testing.T, g *gatedExecutor) {
	t.Helper()
	select {
	case <-g.started:
	case <-time.After(2 * time.Second):
		t.Fatal("执行没有开始")
	}
}

func assertNotStarted(t *testing.T, g *gatedExecutor, wait time.Duration) {
	t.Helper()
	select {
	case <-g.started:
		t.Fatal("出现了多余的执行")
	case <-time.After(wait):
	}
}

func newTestRunner(t *testing.T, executor Executor, store SettingsStore, interval time.Duration, opts ...RunnerOption) *Runner {
	t.Helper()
	r, err := NewRunner(executor, store, interval, logger.NewNop(), opts...)
	require.NoError(t, err)
	t.Cleanup(r.Stop)
	return r
}

func TestRunnerCoalescesRequestsDuringRun(t *testing.T) {
	g := newGatedExecutor()
	r := newTestRunner(t, g, &MemorySettingsStore{}, time.Hour, WithoutAutoExecute())
	r.Start()

	r.Execute(nil)
	waitStarted(t, g)
	assert.Equal(t, StateExecuting, r.State())

	r.Execute([]uint{1})
	r.Execute([]uint{2, 1})
	r.Execute([]uint{3})

	g.release <- struct{}{}
	waitStarted(t, g)
	g.release <- struct{}{}
	assertNotStarted(t, g, 200*time.Millisecond)

	calls := g.callList()
	require.Len(t, calls, 2)
	assert.Nil(t, calls[0])
	assert.ElementsMatch(t, []uint{1, 2, 3}, calls[1])
	assert.EqualValues(t, 1, atomic.LoadInt32(&g.maxRunning))
}

func TestRunnerAllOverridesIDs(t *testing.T) {
	g := newGatedExecutor()
	r := newTestRunner(t, g, &MemorySettingsStore{}, time.Hour, WithoutAutoExecute())
	r.Start()

	r.Execute([]uint{5})
	waitStarted(t, g)
	r.Execute([]uint{1})
	r.Execute(nil)
	r.Execute([]uint{2})

	g.release <- struct{}{}
	waitStarted(t, g)
	g.release <- struct{}{}

	calls := g.callList()
	require.Len(t, calls, 2)
	assert.Equal(t, []uint{5}, calls[0])
	assert.Nil(t, calls[1])
}

func TestRunnerStopWaitsForInFlightRun(t *testing.T) {
	g := newGatedExecutor()
	r, err := NewRunner(g, &MemorySettingsStore{}, time.Hour, logger.NewNop(), WithoutAutoExecute())
	require.NoError(t, err)
	r.Start()

	r.Execute(nil)
	waitStarted(t, g)
	r.Execute(nil)

	stopped := make(chan struct{})
	go func() {
		r.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop 没有等待进行中的执行")
	case <-time.After(100 * time.Millisecond):
	}

	g.release <- struct{}{}
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop 没有返回")
	}

	assert.Equal(t, StateStopped, r.State())
	assert.Len(t, g.callList(), 1)

	// 重复停止与停止后的请求都不会阻塞
	r.Stop()
	r.Execute(nil)
	assertNotStarted(t, g, 50*time.Millisecond)
}

func TestRunnerScheduledExecution(t *testing.T) {
	g := newGatedExecutor()
	g.release = nil
	store := &MemorySettingsStore{}
	r := newTestRunner(t, g, store, 30*time.Millisecond)
	r.Start()

	waitStarted(t, g)
	waitStarted(t, g)

	calls := g.callList()
	require.GreaterOrEqual(t, len(calls), 2)
	assert.Nil(t, calls[0])

	_, last, _, err := store.Load()
	require.NoError(t, err)
	assert.NotNil(t, last)
	assert.NotNil(t, r.LastExecute())
}

func TestRunnerSetIntervalDoesNotExecute(t *testing.T) {
	g := newGatedExecutor()
	g.release = nil
	store := &MemorySettingsStore{}
	r := newTestRunner(t, g, store, time.Hour)
	r.Start()

	require.NoError(t, r.SetInterval(2*time.Hour))
	assertNotStarted(t, g, 100*time.Millisecond)
	assert.Equal(t, 2*time.Hour, r.Interval())

	interval, _, ok, err := store.Load()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2*time.Hour, interval)

	assert.Error(t, r.SetInterval(0))
}

func TestRunnerShortenedIntervalReschedules(t *testing.T) {
	g := newGatedExecutor()
	g.release = nil
	r := newTestRunner(t, g, &MemorySettingsStore{}, time.Hour)
	r.Start()

	assertNotStarted(t, g, 50*time.Millisecond)
	require.NoError(t, r.SetInterval(20*time.Millisecond))
	waitStarted(t, g)
}

func TestRunnerSurvivesPanic(t *testing.T) {
	g := newGatedExecutor()
	g.release = nil
	g.panicOnce.Store(true)
	r := newTestRunner(t, g, &MemorySettingsStore{}, time.Hour, WithoutAutoExecute())
	r.Start()

	r.Execute(nil)
	waitStarted(t, g)
	require.Eventually(t, func() bool { return r.State() == StateIdle }, time.Second, 5*time.Millisecond)

	r.Execute([]uint{9})
	waitStarted(t, g)
	calls := g.callList()
	require.Len(t, calls, 2)
	assert.Equal(t, []uint{9}, calls[1])
}

func TestRunnerLoadsPersistedSettings(t *testing.T) {
	db := openTestDB(t)
	store := NewDBSettingsStore(db)

	last := baseTime
	require.NoError(t, store.SaveInterval(45*time.Minute))
	require.NoError(t, store.SaveLastExecute(last))

	r, err := NewRunner(newGatedExecutor(), NewDBSettingsStore(db), time.Hour, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 45*time.Minute, r.Interval())
	require.NotNil(t, r.LastExecute())
	assert.True(t, last.Equal(*r.LastExecute()))
}

func TestRunnerDefaultsWithoutStoredSettings(t *testing.T) {
	r, err := NewRunner(newGatedExecutor(), NewDBSettingsStore(openTestDB(t)), 90*time.Minute, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, r.Interval())
	assert.Nil(t, r.LastExecute())
	assert.Equal(t, StateIdle, r.State())
}
