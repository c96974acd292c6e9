package guidance

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/jab.report/internal/pose"
)

// Session outcomes recorded in the Journal.
const (
	OutcomeCompleted      = "completed"
	OutcomeAborted        = "aborted"
	OutcomeFinalizeFailed = "finalize_failed"
)

// Journal persists attempt lifecycles. Calls are made from a single worker
// goroutine, never from the event loop.
type Journal interface {
	RecordSessionStart(ctx context.Context, id string, at time.Time) error
	RecordTransition(ctx context.Context, id, from, to, reason string, at time.Time) error
	RecordSessionEnd(ctx context.Context, id, outcome, reason, outputPath string, turnAngle float64, at time.Time) error
}

// ErrRunnerClosed is returned by control calls once Run has returned.
var ErrRunnerClosed = errors.New("guidance: runner closed")

type control struct {
	fn    func() error
	reply chan error
}

// Runner owns a Machine and serialises samples, timer wake-ups, recorder
// results and control calls onto one goroutine.
type Runner struct {
	m        *Machine
	samples  <-chan pose.Sample
	controls chan control
	done     chan struct{}

	journal  Journal
	journalQ chan func(context.Context)
	journalW sync.WaitGroup

	snapMu sync.RWMutex
	snap   Snapshot

	subscriberMu sync.Mutex
	subscribers  map[string]chan Event
}

// NewRunner wires m to samples. journal may be nil.
func NewRunner(m *Machine, samples <-chan pose.Sample, journal Journal) *Runner {
	r := &Runner{
		m:           m,
		samples:     samples,
		controls:    make(chan control),
		done:        make(chan struct{}),
		journal:     journal,
		journalQ:    make(chan func(context.Context), 256),
		snap:        m.Snapshot(),
		subscribers: make(map[string]chan Event),
	}
	m.OnEvent(r.handleEvent)
	return r
}

// Run processes events until ctx is cancelled, then stops the machine and
// flushes the journal.
func (r *Runner) Run(ctx context.Context) error {
	r.journalW.Add(1)
	go r.journalWorker()
	defer func() {
		close(r.done)
		close(r.journalQ)
		r.journalW.Wait()
		r.closeSubscribers()
	}()

	samples := r.samples
	for {
		select {
		case <-ctx.Done():
			r.m.Stop()
			return ctx.Err()

		case s, ok := <-samples:
			if !ok {
				samples = nil
				logf("sample source closed")
				continue
			}
			r.m.HandleSample(s)

		case now := <-r.m.Wake():
			r.m.HandleWake(now)

		case res := <-r.m.RecorderResults():
			r.m.HandleRecorderResult(res)

		case c := <-r.controls:
			c.reply <- c.fn()
		}
	}
}

// do runs fn on the loop goroutine and waits for it to finish.
func (r *Runner) do(ctx context.Context, fn func() error) error {
	c := control{fn: fn, reply: make(chan error, 1)}
	select {
	case r.controls <- c:
	case <-r.done:
		return ErrRunnerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-c.reply:
		return err
	case <-r.done:
		return ErrRunnerClosed
	}
}

// Start arms the machine for a new attempt.
func (r *Runner) Start(ctx context.Context) error {
	return r.do(ctx, func() error { r.m.Start(); return nil })
}

// Stop tears the machine down until the next Start.
func (r *Runner) Stop(ctx context.Context) error {
	return r.do(ctx, func() error { r.m.Stop(); return nil })
}

// Abort cancels the current attempt. All timers are cancelled and the
// recorder stopped before Abort returns.
func (r *Runner) Abort(ctx context.Context, reason string) error {
	return r.do(ctx, func() error { return r.m.Abort(reason) })
}

// StopRecording ends an in-progress recording early.
func (r *Runner) StopRecording(ctx context.Context) error {
	return r.do(ctx, r.m.StopRecording)
}

// Snapshot returns the snapshot published with the most recent event.
func (r *Runner) Snapshot() Snapshot {
	r.snapMu.RLock()
	defer r.snapMu.RUnlock()
	return r.snap
}

// Subscribe returns a channel receiving every subsequent event. Slow
// subscribers miss events rather than stall the loop.
func (r *Runner) Subscribe() (string, <-chan Event) {
	id := uuid.NewString()
	ch := make(chan Event, 32)
	r.subscriberMu.Lock()
	defer r.subscriberMu.Unlock()
	r.subscribers[id] = ch
	return id, ch
}

// Unsubscribe closes and removes a subscriber.
func (r *Runner) Unsubscribe(id string) {
	r.subscriberMu.Lock()
	defer r.subscriberMu.Unlock()
	if ch, ok := r.subscribers[id]; ok {
		close(ch)
		delete(r.subscribers, id)
	}
}

func (r *Runner) closeSubscribers() {
	r.subscriberMu.Lock()
	defer r.subscriberMu.Unlock()
	for id, ch := range r.subscribers {
		close(ch)
		delete(r.subscribers, id)
	}
}

func (r *Runner) handleEvent(ev Event) {
	r.snapMu.Lock()
	r.snap = ev.Snapshot
	r.snapMu.Unlock()

	r.subscriberMu.Lock()
	for _, ch := range r.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
	r.subscriberMu.Unlock()

	if r.journal != nil {
		r.enqueueJournal(ev)
	}
}

func (r *Runner) enqueueJournal(ev Event) {
	var op func(context.Context) error
	j := r.journal
	switch ev.Kind {
	case EventAttemptStarted:
		op = func(ctx context.Context) error {
			return j.RecordSessionStart(ctx, ev.AttemptID, ev.At)
		}
	case EventTransition:
		op = func(ctx context.Context) error {
			return j.RecordTransition(ctx, ev.AttemptID, string(ev.From), string(ev.To), ev.Reason, ev.At)
		}
	case EventAborted, EventFinalizeFailed:
		outcome := OutcomeAborted
		if ev.Kind == EventFinalizeFailed {
			outcome = OutcomeFinalizeFailed
		}
		op = func(ctx context.Context) error {
			if err := j.RecordTransition(ctx, ev.AttemptID, string(ev.From), string(ev.To), ev.Reason, ev.At); err != nil {
				return err
			}
			return j.RecordSessionEnd(ctx, ev.AttemptID, outcome, ev.Reason, "", ev.FinalTurnAngle, ev.At)
		}
	case EventCompleted:
		op = func(ctx context.Context) error {
			return j.RecordSessionEnd(ctx, ev.AttemptID, OutcomeCompleted, "", ev.OutputPath, ev.FinalTurnAngle, ev.At)
		}
	default:
		return
	}

	select {
	case r.journalQ <- func(ctx context.Context) {
		if err := op(ctx); err != nil {
			logf("journal %s for %s: %v", ev.Kind, ev.AttemptID, err)
		}
	}:
	default:
		logf("journal queue full, dropping %s for %s", ev.Kind, ev.AttemptID)
	}
}

func (r *Runner) journalWorker() {
	defer r.journalW.Done()
	for op := range r.journalQ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		op(ctx)
		cancel()
	}
}
