package startup

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDependency struct {
	name      string
	deps      []string
	failures  int
	mu        *sync.Mutex
	log       *[]string
	startCnt  int
	stopCount int
}

func (f *fakeDependency) GetName() string     { return f.name }
func (f *fakeDependency) DependsOn() []string { return f.deps }

func (f *fakeDependency) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCnt++
	if f.failures > 0 {
		f.failures--
		return errors.New("not yet")
	}
	*f.log = append(*f.log, "start:"+f.name)
	return nil
}

func (f *fakeDependency) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCount++
	*f.log = append(*f.log, "stop:"+f.name)
	return nil
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func indexOf(log []string, entry string) int {
	for i, e := range log {
		if e == entry {
			return i
		}
	}
	return -1
}

func TestStartOrdersByDependency(t *testing.T) {
	var mu sync.Mutex
	var log []string

	a := &fakeDependency{name: "a", mu: &mu, log: &log}
	b := &fakeDependency{name: "b", deps: []string{"a"}, mu: &mu, log: &log}
	c := &fakeDependency{name: "c", deps: []string{"b"}, mu: &mu, log: &log}

	s := NewStartup(testLogger(), 1)
	s.AddDependency(c)
	s.AddDependency(a)
	s.AddDependency(b)

	require.NoError(t, s.Start(context.Background()))

	assert.Less(t, indexOf(log, "start:a"), indexOf(log, "start:b"))
	assert.Less(t, indexOf(log, "start:b"), indexOf(log, "start:c"))
	assert.Equal(t, 1, a.startCnt)
	assert.Equal(t, 1, b.startCnt)
	assert.Equal(t, 1, c.startCnt)
}

func TestStartRetriesFailedDependency(t *testing.T) {
	var mu sync.Mutex
	var log []string

	a := &fakeDependency{name: "a", mu: &mu, log: &log}
	flaky := &fakeDependency{name: "flaky", deps: []string{"a"}, failures: 1, mu: &mu, log: &log}

	s := NewStartup(testLogger(), 3)
	s.AddDependency(a)
	s.AddDependency(flaky)

	require.NoError(t, s.Start(context.Background()))

	assert.Equal(t, 2, flaky.startCnt)
	// already-started dependencies are not restarted on retry
	assert.Equal(t, 1, a.startCnt)
}

func TestStartGivesUpAfterMaxAttempts(t *testing.T) {
	var mu sync.Mutex
	var log []string

	broken := &fakeDependency{name: "broken", failures: 10, mu: &mu, log: &log}

	s := NewStartup(testLogger(), 2)
	s.AddDependency(broken)

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "startup failed after 2 attempts")
}

func TestStopStopsEveryDependency(t *testing.T) {
	var mu sync.Mutex
	var log []string

	a := &fakeDependency{name: "a", mu: &mu, log: &log}
	b := &fakeDependency{name: "b", deps: []string{"a"}, mu: &mu, log: &log}

	s := NewStartup(testLogger(), 1)
	s.AddDependency(a)
	s.AddDependency(b)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))

	assert.Equal(t, 1, a.stopCount)
	assert.Equal(t, 1, b.stopCount)
}
