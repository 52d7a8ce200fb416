package bootstrap

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRunsShutdownHooksInReverseOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var (
		mu         sync.Mutex
		order      []string
		registered bool
	)
	hook := func(name string) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, AppInfo{
			ServiceName: "test",
			Port:        0,
			RegisterHandlers: func(mux *http.ServeMux) {
				registered = true
				mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
			},
			OnShutdown: []func(context.Context) error{hook("dispatcher"), hook("tracer")},
		})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.True(t, registered)
	assert.Equal(t, []string{"tracer", "dispatcher"}, order)
}

func TestRunFailsOnBadPort(t *testing.T) {
	err := Run(context.Background(), AppInfo{ServiceName: "test", Port: -1})
	assert.Error(t, err)
}
