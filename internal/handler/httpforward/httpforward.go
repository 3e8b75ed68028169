// Package httpforward implements an agent.Handler that forwards each
// incoming request frame to a local HTTP server and replies with that
// server's response, wire-encoded the way the request arrived.
package httpforward

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/QuadTriangle/wsagent/internal/agent"
)

// Request is the wire shape of a forwarded HTTP request.
type Request struct {
	ID      string              `json:"id,omitempty"`
	Method  string              `json:"method"`
	Path    string              `json:"path"`
	Headers map[string][]string `json:"headers,omitempty"`
	Body    string              `json:"body,omitempty"` // base64
}

// Response is the wire shape of a forwarded HTTP request's reply.
type Response struct {
	ID      string              `json:"id,omitempty"`
	Status  int                 `json:"status"`
	Headers map[string][]string `json:"headers,omitempty"`
	Body    string              `json:"body,omitempty"` // base64
}

// Forwarder forwards decoded requests to a fixed local target and
// produces the Response to send back, running a RequestHook pipeline
// around each call.
type Forwarder struct {
	targetBase string
	client     *http.Client
	hooks      *Pipeline
	logger     *log.Logger
}

// New builds a Forwarder that sends requests to targetBase (e.g.
// "http://localhost:4000"). hooks may be nil. timeout bounds each
// forwarded request; zero means no timeout.
func New(targetBase string, timeout time.Duration, hooks *Pipeline) *Forwarder {
	if hooks == nil {
		hooks = &Pipeline{}
	}
	return &Forwarder{
		targetBase: targetBase,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		hooks:  hooks,
		logger: log.Default(),
	}
}

// Handler adapts Forward into an agent.Handler. Forwarding is a
// blocking HTTP round trip, so it always runs on its own goroutine and
// the handler always returns false — the reply is written and
// DoneReplying is called later, from a closure passed to a.Post.
func (f *Forwarder) Handler() agent.Handler {
	return func(a *agent.Agent, conn *agent.Conn, message []byte) bool {
		var req Request
		if err := json.Unmarshal(message, &req); err != nil {
			f.logger.Printf("httpforward: malformed request frame: %v", err)
			a.Post(func() {
				_ = conn.WriteReply(mustJSON(Response{Status: 400, Body: encodeBody([]byte("malformed request"))}))
				a.DoneReplying(conn)
			})
			return false
		}

		go func() {
			resp := f.Forward(req)
			a.Post(func() {
				if err := conn.WriteReply(mustJSON(resp)); err != nil {
					f.logger.Printf("httpforward: writing reply for %s: %v", req.ID, err)
				}
				a.DoneReplying(conn)
			})
		}()
		return false
	}
}

// Forward runs req through the before-hooks, issues it against the
// local target, runs the result through the after-hooks, and returns
// the Response to send back. It never returns an error: failures
// become an error Response (400 for a body that is not valid base64,
// 502 otherwise) so the caller always has something to reply with.
func (f *Forwarder) Forward(req Request) Response {
	req = f.hooks.RunBeforeRequest(req)

	targetURL := f.targetBase + req.Path

	var body io.Reader
	if req.Body != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return f.hooks.RunAfterRequest(req, Response{ID: req.ID, Status: 400, Body: encodeBody([]byte("invalid request body"))})
		}
		body = bytes.NewReader(decoded)
	}

	httpReq, err := http.NewRequest(req.Method, targetURL, body)
	if err != nil {
		return f.hooks.RunAfterRequest(req, Response{ID: req.ID, Status: 502, Body: encodeBody([]byte("failed to build request"))})
	}
	for k, vs := range req.Headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		msg := fmt.Sprintf("failed to reach %s: %v", f.targetBase, err)
		return f.hooks.RunAfterRequest(req, Response{ID: req.ID, Status: 502, Body: encodeBody([]byte(msg))})
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return f.hooks.RunAfterRequest(req, Response{ID: req.ID, Status: 502})
	}

	out := Response{
		ID:      req.ID,
		Status:  resp.StatusCode,
		Headers: map[string][]string(resp.Header),
		Body:    encodeBody(respBody),
	}
	return f.hooks.RunAfterRequest(req, out)
}

func encodeBody(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(b)
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// Response/Request only ever hold JSON-safe fields.
		panic(err)
	}
	return data
}
