package api

import (
	"context"
	"fmt"
	"sync"

	"github.com/banshee-data/jab.report/internal/guidance"
)

type fakeGuidance struct {
	mu         sync.Mutex
	snap       guidance.Snapshot
	err        error
	calls      []string
	subs       map[string]chan guidance.Event
	next       int
	subscribed chan struct{}
}

func newFakeGuidance() *fakeGuidance {
	return &fakeGuidance{
		snap:       guidance.Snapshot{State: guidance.AwaitingBody, AttemptID: "attempt-1"},
		subs:       map[string]chan guidance.Event{},
		subscribed: make(chan struct{}, 8),
	}
}

func (g *fakeGuidance) Snapshot() guidance.Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snap
}

func (g *fakeGuidance) record(call string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, call)
	return g.err
}

func (g *fakeGuidance) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func (g *fakeGuidance) setErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

func (g *fakeGuidance) Start(context.Context) error         { return g.record("start") }
func (g *fakeGuidance) Stop(context.Context) error          { return g.record("stop") }
func (g *fakeGuidance) StopRecording(context.Context) error { return g.record("stop-recording") }
func (g *fakeGuidance) Abort(_ context.Context, reason string) error {
	return g.record("abort:" + reason)
}

func (g *fakeGuidance) Subscribe() (string, <-chan guidance.Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	id := fmt.Sprintf("sub-%d", g.next)
	ch := make(chan guidance.Event, 8)
	g.subs[id] = ch
	select {
	case g.subscribed <- struct{}{}:
	default:
	}
	return id, ch
}

func (g *fakeGuidance) Unsubscribe(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if ch, ok := g.subs[id]; ok {
		close(ch)
		delete(g.subs, id)
	}
}

func (g *fakeGuidance) publish(ev guidance.Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, ch := range g.subs {
		ch <- ev
	}
}

// closeAll ends every subscription, as the runner does on shutdown.
func (g *fakeGuidance) closeAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, ch := range g.subs {
		close(ch)
		delete(g.subs, id)
	}
}
