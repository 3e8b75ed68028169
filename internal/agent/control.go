package agent

import (
	"github.com/QuadTriangle/wsagent/internal/config"
	"github.com/QuadTriangle/wsagent/internal/value"
)

// ConfigCallback receives the result of Configure: the merged preview
// and any validation errors (empty on success).
type ConfigCallback func(preview *config.Preview, errs []config.Error)

// StateSnapshot is the payload handed to an InspectState callback.
type StateSnapshot struct {
	State             State
	ReconnectPlanned  bool
	ShuttingDown      bool
}

// Configure previews updates against the current config and, if they
// validate, applies them, refreshes the cached log prefix, and triggers
// a reconnect if url or proxy_url changed. cb (if non-nil) is invoked
// exactly once, on the loop goroutine, with the preview and any errors.
//
// Thread-safe: the actual work runs on the loop goroutine via Post.
func (a *Agent) Configure(updates value.Value, cb ConfigCallback) {
	a.loop.Post(func() { a.internalConfigure(updates, cb) })
}

func (a *Agent) internalConfigure(updates value.Value, cb ConfigCallback) {
	preview, errs := a.store.PreviewUpdate(updates)
	if len(errs) > 0 {
		if cb != nil {
			cb(preview, errs)
		}
		return
	}

	oldURL := a.store.Get("url")
	oldProxyURL := a.store.Get("proxy_url")

	a.store.ForceApplyPreview(preview)
	a.refreshLogger()

	newURL := a.store.Get("url")
	newProxyURL := a.store.Get("proxy_url")
	if !value.Equal(oldURL, newURL) || !value.Equal(oldProxyURL, newProxyURL) {
		a.internalReconnect()
	}

	if cb != nil {
		cb(preview, nil)
	}
}

// InspectConfig invokes cb, on the loop goroutine, with a snapshot of
// the store (the same shape Configure's preview has).
func (a *Agent) InspectConfig(cb func(*config.Preview)) {
	a.loop.Post(func() { cb(a.store.Dump()) })
}

// InspectState invokes cb, on the loop goroutine, with the current
// state plus the reconnect_planned/shutting_down flags when set.
func (a *Agent) InspectState(cb func(StateSnapshot)) {
	a.loop.Post(func() {
		cb(StateSnapshot{
			State:            a.State(),
			ReconnectPlanned: a.reconnectAfterReply,
			ShuttingDown:     a.shuttingDown,
		})
	})
}

// Shutdown requests a graceful shutdown: sets shutting_down, initiates
// a going-away close of any live connection, and invokes cb (on the
// thread that called Run) once the loop has fully stopped.
func (a *Agent) Shutdown(cb func()) {
	a.loop.Post(func() { a.internalShutdown(cb) })
}

func (a *Agent) internalShutdown(cb func()) {
	a.shuttingDown = true
	a.exitCallback = cb

	switch a.State() {
	case NOT_CONNECTED:
		// No connection and no dial in flight: nothing to close.
		a.loop.CancelTimer()
		a.loop.Stop()
	case CONNECTING:
		// A dial is in flight; finishConnect sees shuttingDown, closes
		// whatever it gets, and stops the loop itself.
	default:
		a.closeConnection(closeGoingAway, "shutting down")
	}
}
