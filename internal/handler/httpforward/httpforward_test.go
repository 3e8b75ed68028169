package httpforward

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForwardRoundTripsMethodPathHeadersAndBody(t *testing.T) {
	var gotMethod, gotPath, gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotHeader = r.Header.Get("X-Test")
		w.Header().Set("X-Reply", "yes")
		w.WriteHeader(201)
		w.Write([]byte("created"))
	}))
	defer server.Close()

	f := New(server.URL, 0, nil)
	resp := f.Forward(Request{
		ID:      "r1",
		Method:  "POST",
		Path:    "/widgets",
		Headers: map[string][]string{"X-Test": {"hello"}},
	})

	assert.Equal(t, "POST", gotMethod)
	assert.Equal(t, "/widgets", gotPath)
	assert.Equal(t, "hello", gotHeader)

	require.Equal(t, 201, resp.Status)
	require.Equal(t, "r1", resp.ID)
	body, err := base64.StdEncoding.DecodeString(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "created", string(body))
	assert.Equal(t, "yes", resp.Headers["X-Reply"][0])
}

func TestForwardReturns502WhenTargetUnreachable(t *testing.T) {
	f := New("http://127.0.0.1:1", 0, nil)
	resp := f.Forward(Request{Method: "GET", Path: "/"})
	assert.Equal(t, 502, resp.Status)
}

func TestForwardReturns400OnInvalidBodyEncoding(t *testing.T) {
	f := New("http://example.invalid", 0, nil)
	resp := f.Forward(Request{Method: "GET", Path: "/", Body: "not-base64!!"})
	assert.Equal(t, 400, resp.Status)
}

type recordingHook struct {
	NoOpRequestHook
	beforeCalls, afterCalls int
}

func (h *recordingHook) BeforeRequest(req Request) Request {
	h.beforeCalls++
	req.Path = req.Path + "/hooked"
	return req
}

func (h *recordingHook) AfterRequest(req Request, resp Response) Response {
	h.afterCalls++
	resp.Headers = map[string][]string{"X-Hooked": {"1"}}
	return resp
}

func TestForwardRunsRequestHooks(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(200)
	}))
	defer server.Close()

	hook := &recordingHook{}
	pipeline := &Pipeline{}
	pipeline.AddRequestHook(hook)

	f := New(server.URL, 0, pipeline)
	resp := f.Forward(Request{Method: "GET", Path: "/base"})

	assert.Equal(t, "/base/hooked", gotPath)
	assert.Equal(t, 1, hook.beforeCalls)
	assert.Equal(t, 1, hook.afterCalls)
	assert.Equal(t, []string{"1"}, resp.Headers["X-Hooked"])
}
