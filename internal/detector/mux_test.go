package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/jab.report/internal/pose"
)

// testPort serves a fixed byte stream, then EOF, and records writes.
type testPort struct {
	mu       sync.Mutex
	r        io.Reader
	written  bytes.Buffer
	writeErr error
	closed   bool
}

func newTestPort(data string) *testPort {
	return &testPort{r: strings.NewReader(data)}
}

func (p *testPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.EOF
	}
	return p.r.Read(b)
}

func (p *testPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	return p.written.Write(b)
}

func (p *testPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *testPort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

// localHostRequest makes a request tsweb accepts as coming from loopback.
func localHostRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

const namedLine = `{"t":1700000000000000000,"keypoints":{"nose":{"x":0.5,"y":0.1,"c":0.9}}}`

func cocoLine() string {
	triples := make([]string, 17)
	for i := range triples {
		triples[i] = "[0.5,0.5,0.8]"
	}
	return `{"coco":[` + strings.Join(triples, ",") + `]}`
}

func TestSourceMux_MonitorDispatches(t *testing.T) {
	t.Parallel()

	stream := namedLine + "\n" + "\n" + "not json\n" + cocoLine() + "\n" + "{}\n"
	mux := NewSourceMux(newTestPort(stream))

	_, lines := mux.Subscribe()
	_, samples := mux.SubscribeSamples(8)

	require.NoError(t, mux.Monitor(context.Background()))

	var gotLines []string
	for len(lines) > 0 {
		gotLines = append(gotLines, <-lines)
	}
	assert.Len(t, gotLines, 4, "blank lines are skipped")
	assert.Equal(t, "not json", gotLines[1])

	require.Len(t, samples, 3)
	first := <-samples
	assert.Equal(t, time.Unix(0, 1700000000000000000), first.Time)
	assert.Equal(t, 0.9, first.Keypoints[pose.Nose].Confidence)
	second := <-samples
	assert.Len(t, second.Keypoints, 17)
	third := <-samples
	assert.Empty(t, third.Keypoints, "an empty object is a frame with no body")

	assert.Equal(t, Stats{Lines: 4, Samples: 3, DecodeErrors: 1}, mux.Stats())
}

func TestSourceMux_SlowSubscriberDropsSamples(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	for i := 0; i < 10; i++ {
		b.WriteString(namedLine + "\n")
	}
	mux := NewSourceMux(newTestPort(b.String()))
	_, samples := mux.SubscribeSamples(2)
	require.NoError(t, mux.Monitor(context.Background()))
	assert.Len(t, samples, 2)
	assert.Equal(t, uint64(10), mux.Stats().Samples)
}

func TestSourceMux_MonitorHonoursContext(t *testing.T) {
	t.Parallel()

	r, w := io.Pipe()
	defer w.Close()
	port := &testPort{r: r}
	mux := NewSourceMux(port)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- mux.Monitor(ctx) }()
	cancel()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Monitor did not return after cancel")
	}
}

func TestSourceMux_SendCommand(t *testing.T) {
	t.Parallel()

	port := newTestPort("")
	mux := NewSourceMux(port)
	require.NoError(t, mux.SendCommand("fps 30"))
	require.NoError(t, mux.SendCommand("reset\n"))
	assert.Equal(t, "fps 30\nreset\n", port.Written())

	port.writeErr = errors.New("unplugged")
	assert.Error(t, mux.SendCommand("x"))
}

func TestSourceMux_CloseClosesSubscribers(t *testing.T) {
	t.Parallel()

	port := newTestPort("")
	mux := NewSourceMux(port)
	lineID, lines := mux.Subscribe()
	_, samples := mux.SubscribeSamples(1)

	require.NoError(t, mux.Close())
	assert.True(t, port.closed)
	_, ok := <-lines
	assert.False(t, ok)
	_, ok = <-samples
	assert.False(t, ok)

	mux.Unsubscribe(lineID)
	require.NoError(t, mux.Close())

	_, late := mux.SubscribeSamples(1)
	_, ok = <-late
	assert.False(t, ok, "subscribing after Close yields a closed channel")
}

func TestSourceMux_AdminRoutes(t *testing.T) {
	t.Parallel()

	port := newTestPort(namedLine + "\n")
	mux := NewSourceMux(port)
	require.NoError(t, mux.Monitor(context.Background()))

	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	t.Run("stats", func(t *testing.T) {
		rec := httptest.NewRecorder()
		httpMux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/detector-stats", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var got Stats
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, Stats{Lines: 1, Samples: 1}, got)
	})

	tests := []struct {
		name   string
		method string
		form   url.Values
		status int
	}{
		{"valid command", http.MethodPost, url.Values{"command": {"fps 15"}}, http.StatusOK},
		{"empty command", http.MethodPost, url.Values{"command": {"  "}}, http.StatusBadRequest},
		{"wrong method", http.MethodGet, nil, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := localHostRequest(tt.method, "/debug/detector-command", strings.NewReader(tt.form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rec := httptest.NewRecorder()
			httpMux.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
	assert.Equal(t, "fps 15\n", port.Written())
}
