package jobs

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// wait 轮询直到任务结束
func wait(t *testing.T, r *Registry, id string) Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		j, err := r.Get(id)
		require.NoError(t, err)
		if j.Status.Done() {
			return j
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return Job{}
}

func TestRegistry_Lifecycle(t *testing.T) {
	r := NewRegistry(nil)
	id := r.Create("import")

	j, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, j.Status)
	assert.Nil(t, j.StartedAt)

	release := make(chan struct{})
	running := make(chan struct{})
	require.NoError(t, r.Start(id, func(rep *Reporter) (any, error) {
		rep.Log("[INFO] Ingestion démarrée")
		rep.Progress(1, 4)
		close(running)
		<-release
		rep.Progress(4, 4)
		return map[string]int{"imported": 2}, nil
	}))

	<-running
	j, err = r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, j.Status)
	assert.Equal(t, Progress{Current: 1, Total: 4, Percent: 25}, j.Progress)
	assert.NotNil(t, j.StartedAt)

	close(release)
	j = wait(t, r, id)
	assert.Equal(t, StatusCompleted, j.Status)
	assert.Equal(t, 100, j.Progress.Percent)
	assert.Equal(t, []string{"[INFO] Ingestion démarrée"}, j.Logs)
	assert.Equal(t, map[string]int{"imported": 2}, j.Result)
	assert.NotNil(t, j.FinishedAt)

	assert.ErrorIs(t, r.Start(id, func(*Reporter) (any, error) { return nil, nil }), ErrJobStarted)
}

func TestRegistry_Failure(t *testing.T) {
	r := NewRegistry(nil)
	id := r.Submit("import", func(*Reporter) (any, error) {
		return nil, errors.New("disk full")
	})

	j := wait(t, r, id)
	assert.Equal(t, StatusFailed, j.Status)
	assert.Equal(t, "disk full", j.Error)
	assert.Equal(t, []string{"[ERREUR] disk full"}, j.Logs)
}

func TestRegistry_Panic(t *testing.T) {
	r := NewRegistry(nil)
	id := r.Submit("import", func(*Reporter) (any, error) {
		panic("boom")
	})

	j := wait(t, r, id)
	assert.Equal(t, StatusFailed, j.Status)
	assert.Contains(t, j.Error, "boom")
}

func TestRegistry_NotFound(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Get("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.ErrorIs(t, r.Start("missing", nil), ErrJobNotFound)
}

func TestRegistry_GetReturnsCopy(t *testing.T) {
	r := NewRegistry(nil)
	id := r.Submit("import", func(rep *Reporter) (any, error) {
		rep.Log("one")
		return nil, nil
	})
	j := wait(t, r, id)
	j.Logs[0] = "changed"
	*j.StartedAt = time.Time{}

	again, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "one", again.Logs[0])
	assert.False(t, again.StartedAt.IsZero())
}

func TestRegistry_ConcurrentJobs(t *testing.T) {
	r := NewRegistry(nil)

	var mu sync.Mutex
	ids := make([]string, 0, 8)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := r.Submit("import", func(rep *Reporter) (any, error) {
				for k := 1; k <= 10; k++ {
					rep.Progress(k, 10)
					rep.Log("step %d", k)
				}
				return i, nil
			})
			mu.Lock()
			ids = append(ids, id)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		j := wait(t, r, id)
		assert.Equal(t, StatusCompleted, j.Status)
		assert.Len(t, j.Logs, 10)
		assert.Equal(t, 100, j.Progress.Percent)
	}
}
