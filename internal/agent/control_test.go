package agent

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/QuadTriangle/wsagent/internal/config"
	"github.com/QuadTriangle/wsagent/internal/value"
	"github.com/stretchr/testify/require"
)

func TestConfigureRejectsInvalidUpdateAndLeavesStoreUnchanged(t *testing.T) {
	a := newTestAgent(t, "ws://127.0.0.1:1/agent", nil)

	previewCh := make(chan struct {
		preview *config.Preview
		errs    []config.Error
	}, 1)
	a.Configure(value.Object(map[string]value.Value{"url": value.Number(5)}), func(p *config.Preview, errs []config.Error) {
		previewCh <- struct {
			preview *config.Preview
			errs    []config.Error
		}{p, errs}
	})

	go a.loop.Run()
	defer a.loop.Stop()

	select {
	case got := <-previewCh:
		require.NotEmpty(t, got.errs)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Configure callback")
	}

	stateCh := make(chan *config.Preview, 1)
	a.InspectConfig(func(p *config.Preview) { stateCh <- p })
	select {
	case p := <-stateCh:
		entry, ok := p.Entry("url")
		require.True(t, ok)
		u, _ := entry.EffectiveValue.AsString()
		require.Equal(t, "ws://127.0.0.1:1/agent", u)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for InspectConfig callback")
	}
}

func TestConfigureChangingURLTriggersReconnect(t *testing.T) {
	var firstURL string
	connected := make(chan string, 2)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		connected <- r.URL.Path
		conn.ReadMessage()
	}))
	defer server.Close()

	a := newTestAgent(t, wsURL(server), nil)
	a.Initialize()
	done := runAgent(a)

	select {
	case firstURL = <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for first connection")
	}
	require.Equal(t, "/agent", firstURL)
	require.Eventually(t, func() bool { return a.State() == WAITING_FOR_REQUEST }, 2*time.Second, time.Millisecond)

	doneCh := make(chan struct{})
	a.Configure(value.Object(map[string]value.Value{
		"url": value.String(wsURL(server) + "-b"),
	}), func(p *config.Preview, errs []config.Error) { close(doneCh) })
	<-doneCh

	select {
	case secondURL := <-connected:
		require.Equal(t, "/agent-b", secondURL)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reconnect to the new url")
	}

	a.Shutdown(nil)
	<-done
}

func TestInspectStateReportsConnecting(t *testing.T) {
	a := newTestAgent(t, "ws://127.0.0.1:1/agent", nil)
	a.Initialize()
	done := runAgent(a)

	snapCh := make(chan StateSnapshot, 1)
	a.InspectState(func(s StateSnapshot) { snapCh <- s })

	select {
	case snap := <-snapCh:
		require.Contains(t, []State{CONNECTING, NOT_CONNECTED}, snap.State)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for InspectState callback")
	}

	a.Shutdown(nil)
	<-done
}
