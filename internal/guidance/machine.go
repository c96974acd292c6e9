package guidance

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/jab.report/internal/cue"
	"github.com/banshee-data/jab.report/internal/fsutil"
	"github.com/banshee-data/jab.report/internal/monitoring"
	"github.com/banshee-data/jab.report/internal/pose"
	"github.com/banshee-data/jab.report/internal/timeutil"
)

var logf = monitoring.Component("guidance")

// Deps are the collaborators a Machine drives. Nil fields fall back to
// LogPlayer, RealClock and OSFileSystem; a nil Recorder makes every start
// attempt fail with ErrNoRecorder.
type Deps struct {
	Recorder Recorder
	Cues     cue.Player
	Clock    timeutil.Clock
	FS       fsutil.FileSystem
}

type alarmKind int

const (
	alarmNone alarmKind = iota
	alarmConfirm
	alarmTick
	alarmProgress
	alarmFinalize
)

// Machine is the capture guidance state machine. It is not safe for
// concurrent use: every Handle* and control method must be called from one
// goroutine (see Runner). At most one timer or ticker is armed at a time,
// exposed through Wake.
type Machine struct {
	cfg   Config
	deps  Deps
	clock timeutil.Clock

	state     State
	attemptID string
	stopped   bool
	completed bool

	streak  DetectionStreak
	window  *SmoothingWindow
	session *RecordingSession

	pendingStart  bool
	startFailures int
	stopIssued    bool

	alarm  alarmKind
	timer  timeutil.Timer
	ticker timeutil.Ticker

	results   chan RecorderResult
	listeners []func(Event)
}

// NewMachine returns a stopped machine in AwaitingBody. Call Start to arm it.
func NewMachine(cfg Config, deps Deps) *Machine {
	if deps.Cues == nil {
		deps.Cues = cue.LogPlayer{}
	}
	if deps.Clock == nil {
		deps.Clock = timeutil.RealClock{}
	}
	if deps.FS == nil {
		deps.FS = fsutil.OSFileSystem{}
	}
	if len(cfg.RequiredLandmarks) == 0 {
		cfg.RequiredLandmarks = pose.RequiredLandmarks
	}
	return &Machine{
		cfg:     cfg,
		deps:    deps,
		clock:   deps.Clock,
		state:   AwaitingBody,
		stopped: true,
		window:  NewSmoothingWindow(cfg.SmoothingWindow),
		results: make(chan RecorderResult, 4),
	}
}

// OnEvent registers fn to be called synchronously for every event.
func (m *Machine) OnEvent(fn func(Event)) {
	m.listeners = append(m.listeners, fn)
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Config returns the machine's tuning.
func (m *Machine) Config() Config { return m.cfg }

// Wake returns the channel of the armed timer or ticker, or nil when nothing
// is armed. Deliver its values to HandleWake.
func (m *Machine) Wake() <-chan time.Time {
	switch {
	case m.timer != nil:
		return m.timer.C()
	case m.ticker != nil:
		return m.ticker.C()
	}
	return nil
}

// RecorderResults delivers recorder completion reports. Deliver its values
// to HandleRecorderResult.
func (m *Machine) RecorderResults() <-chan RecorderResult {
	return m.results
}

// Snapshot returns the values a presentation layer renders.
func (m *Machine) Snapshot() Snapshot {
	s := Snapshot{
		State:     m.state,
		AttemptID: m.attemptID,
		Stopped:   m.stopped,
		Completed: m.completed,
	}
	s.TurnAngle, s.HasTurnAngle = m.window.Mean()
	if m.session != nil {
		s.CountdownTicks = m.session.CountdownTicks
		s.Progress = m.session.Progress
		if m.completed {
			s.OutputPath = m.session.OutputPath
		}
	}
	if m.state == Countdown {
		s.CountdownDisplay = max(1, m.cfg.CountdownTicks-(s.CountdownTicks-m.cfg.SettleTicks))
	}
	return s
}

// Start arms the machine for a fresh attempt from AwaitingBody. It is a
// no-op while an attempt is already in progress.
func (m *Machine) Start() {
	if !m.stopped && !m.state.Terminal() {
		return
	}
	m.teardown()
	m.stopped = false
	m.completed = false
	m.newAttempt()
}

// Stop tears everything down and leaves the machine in Aborted. Samples are
// ignored until the next Start.
func (m *Machine) Stop() {
	if m.stopped {
		return
	}
	from := m.state
	angle := m.finalAngle()
	m.teardown()
	m.stopped = true
	if m.completed || from == Aborted {
		return
	}
	m.state = Aborted
	m.emit(Event{Kind: EventAborted, From: from, To: Aborted, Reason: "stopped", FinalTurnAngle: angle})
}

// Abort cancels the current attempt and starts a fresh one from
// AwaitingBody. Timers are cancelled, any recording is stopped and cues are
// silenced before Abort returns.
func (m *Machine) Abort(reason string) error {
	if m.stopped {
		return ErrMachineStopped
	}
	from := m.state
	angle := m.finalAngle()
	m.teardown()
	if !m.completed && from != Aborted {
		logf("attempt %s aborted in %s: %s", m.attemptID, from, reason)
		m.state = AwaitingBody
		m.emit(Event{Kind: EventAborted, From: from, To: AwaitingBody, Reason: reason, FinalTurnAngle: angle})
	}
	m.completed = false
	m.newAttempt()
	return nil
}

// StopRecording ends the recording before the progress timer completes.
func (m *Machine) StopRecording() error {
	if m.stopped {
		return ErrMachineStopped
	}
	if m.state != Recording {
		return ErrNotRecording
	}
	m.finishRecording("stop requested")
	return nil
}

// HandleSample folds one detector sample into the machine.
func (m *Machine) HandleSample(s pose.Sample) {
	if m.stopped || m.state.Terminal() || m.state == Recording {
		return
	}
	complete := s.Complete(m.cfg.RequiredLandmarks, m.cfg.ConfidenceThreshold)
	m.streak.Observe(complete)

	if m.cfg.AbortLossFrames > 0 && m.streak.Lost >= m.cfg.AbortLossFrames && m.state != AwaitingBody {
		_ = m.Abort(fmt.Sprintf("body lost for %d samples", m.streak.Lost))
		return
	}

	switch m.state {
	case AwaitingBody, BodyIncomplete:
		if !complete {
			m.enter(BodyIncomplete)
			return
		}
		if m.streak.Complete >= m.cfg.StableFrames {
			m.enter(BodyStable)
			m.enter(TurnPending)
			m.observeTurn(s)
		}

	case BodyStable, TurnPending, TurnConfirmed:
		if !complete {
			if m.streak.Lost >= m.cfg.LossFrames {
				m.clearAlarm()
				m.window.Reset()
				m.enter(BodyIncomplete)
			}
			return
		}
		if m.state == BodyStable {
			m.enter(TurnPending)
		}
		m.observeTurn(s)

	case PreCountdown, Countdown:
		if !complete {
			_ = m.Abort("body lost during countdown")
			return
		}
		if m.pendingStart {
			m.startRecording()
		}
	}
}

// observeTurn pushes the sample's turn angle and confirms the stance once
// the smoothed angle is inside the band.
func (m *Machine) observeTurn(s pose.Sample) {
	angle, ok := s.TurnAngle(m.cfg.ConfidenceThreshold)
	if !ok {
		return
	}
	m.window.Push(angle)
	if m.state != TurnPending {
		return
	}
	if mean, ok := m.window.Mean(); ok && m.cfg.InTurnBand(mean) {
		m.enter(TurnConfirmed)
		m.armTimer(alarmConfirm, m.cfg.ConfirmDelay)
	}
}

// HandleWake processes a value received from Wake.
func (m *Machine) HandleWake(now time.Time) {
	switch m.alarm {
	case alarmConfirm:
		m.clearAlarm()
		m.beginCountdown(now)

	case alarmTick:
		m.session.CountdownTicks++
		n := m.session.CountdownTicks
		switch {
		case n == m.cfg.SettleTicks:
			m.enter(Countdown)
		case n > m.cfg.SettleTicks && n < m.cfg.TotalTicks():
			m.play(cue.Countdown)
		}
		m.emit(Event{Kind: EventTick})
		if n >= m.cfg.TotalTicks() {
			m.clearAlarm()
			m.startRecording()
		}

	case alarmProgress:
		done := m.session.advance(m.cfg.ProgressStep)
		m.emit(Event{Kind: EventTick})
		if done {
			m.finishRecording("progress complete")
		}

	case alarmFinalize:
		m.clearAlarm()
		m.finalizeFailed(fmt.Errorf("recorder did not finish within %s", m.cfg.FinalizeTimeout))
	}
}

// HandleRecorderResult processes a value received from RecorderResults.
// Results for earlier attempts are ignored.
func (m *Machine) HandleRecorderResult(r RecorderResult) {
	if m.session == nil || r.AttemptID != m.session.ID {
		logf("ignoring stale recorder result for %s", r.AttemptID)
		return
	}
	switch m.state {
	case Recording:
		// The recorder ended on its own before we asked it to stop.
		m.clearAlarm()
		m.stopIssued = true
		m.enter(Finalizing)
	case Finalizing:
		if m.completed {
			return
		}
		m.clearAlarm()
	default:
		return
	}
	if r.Err != nil {
		m.finalizeFailed(r.Err)
		return
	}
	if !m.deps.FS.Exists(m.session.OutputPath) {
		m.finalizeFailed(ErrOutputMissing)
		return
	}
	m.completed = true
	logf("attempt %s complete: %s", m.attemptID, m.session.OutputPath)
	m.emit(Event{Kind: EventCompleted, OutputPath: m.session.OutputPath, FinalTurnAngle: m.finalAngle()})
}

func (m *Machine) beginCountdown(now time.Time) {
	ext := m.cfg.OutputExt
	m.session = &RecordingSession{
		ID:         m.attemptID,
		StartedAt:  now,
		OutputPath: filepath.Join(m.cfg.OutputDir, "jab_"+m.attemptID+ext),
	}
	m.enter(PreCountdown)
	if m.cfg.SettleTicks == 0 {
		m.enter(Countdown)
	}
	m.armTicker(alarmTick, m.cfg.TickInterval)
	if m.cfg.TotalTicks() == 0 {
		m.clearAlarm()
		m.startRecording()
	}
}

// startRecording asks the recorder to start. On failure the machine stays
// in Countdown and retries on the next complete sample.
func (m *Machine) startRecording() {
	if m.state == PreCountdown {
		m.enter(Countdown)
	}
	err := m.prepareAndStart()
	if err != nil {
		m.startFailures++
		m.pendingStart = true
		logf("recorder start failed (%d/%d): %v", m.startFailures, m.cfg.RecorderStartRetries, err)
		m.emit(Event{Kind: EventRecorderStartFailed, Reason: err.Error()})
		if m.startFailures > m.cfg.RecorderStartRetries {
			_ = m.Abort(fmt.Sprintf("recorder failed to start: %v", err))
		}
		return
	}
	m.pendingStart = false
	m.enter(Recording)
	m.armTicker(alarmProgress, m.cfg.ProgressInterval)
}

func (m *Machine) prepareAndStart() error {
	if m.deps.Recorder == nil {
		return ErrNoRecorder
	}
	path := m.session.OutputPath
	if err := fsutil.PrepareOutput(m.deps.FS, path); err != nil {
		return err
	}
	id := m.session.ID
	results := m.results
	return m.deps.Recorder.Start(path, func(err error) {
		select {
		case results <- RecorderResult{AttemptID: id, Err: err}:
		default:
			logf("recorder result for %s dropped: results not drained", id)
		}
	})
}

// finishRecording moves Recording to Finalizing and issues the single stop.
func (m *Machine) finishRecording(reason string) {
	if m.state != Recording {
		return
	}
	m.clearAlarm()
	m.enter(Finalizing)
	logf("attempt %s finalizing: %s", m.attemptID, reason)
	if err := m.stopRecorder(); err != nil {
		m.finalizeFailed(err)
		return
	}
	if m.cfg.FinalizeTimeout > 0 {
		m.armTimer(alarmFinalize, m.cfg.FinalizeTimeout)
	}
}

func (m *Machine) stopRecorder() error {
	if m.stopIssued || m.deps.Recorder == nil {
		return nil
	}
	m.stopIssued = true
	return m.deps.Recorder.Stop()
}

func (m *Machine) finalizeFailed(err error) {
	logf("attempt %s finalize failed: %v", m.attemptID, err)
	from := m.state
	m.clearAlarm()
	m.deps.Cues.StopAll()
	m.state = Aborted
	m.emit(Event{Kind: EventFinalizeFailed, From: from, To: Aborted, Reason: err.Error(), FinalTurnAngle: m.finalAngle()})
}

// finalAngle is the smoothed turn angle the attempt ends with, 0 when no
// angle was measured. Read it before teardown clears the window.
func (m *Machine) finalAngle() float64 {
	angle, _ := m.window.Mean()
	return angle
}

// teardown cancels timers, stops any live recording, silences cues and
// resets the debounce state.
func (m *Machine) teardown() {
	m.clearAlarm()
	if m.state == Recording {
		if err := m.stopRecorder(); err != nil {
			logf("stop recorder: %v", err)
		}
	}
	m.deps.Cues.StopAll()
	m.streak.Reset()
	m.window.Reset()
	m.pendingStart = false
	m.startFailures = 0
}

func (m *Machine) newAttempt() {
	m.attemptID = uuid.NewString()
	m.session = nil
	m.stopIssued = false
	m.state = AwaitingBody
	m.emit(Event{Kind: EventAttemptStarted, To: AwaitingBody})
}

// enter moves to state to, playing its entry cue. Entering the current state
// does nothing.
func (m *Machine) enter(to State) {
	if to == m.state {
		return
	}
	from := m.state
	m.state = to
	if c, ok := entryCues[to]; ok {
		m.play(c)
	}
	m.emit(Event{Kind: EventTransition, From: from, To: to})
}

func (m *Machine) play(c cue.Cue) {
	if err := m.deps.Cues.Play(c); err != nil {
		logf("cue %s: %v", c, err)
	}
}

func (m *Machine) armTimer(kind alarmKind, d time.Duration) {
	m.clearAlarm()
	m.alarm = kind
	m.timer = m.clock.NewTimer(d)
}

func (m *Machine) armTicker(kind alarmKind, d time.Duration) {
	m.clearAlarm()
	m.alarm = kind
	m.ticker = m.clock.NewTicker(d)
}

func (m *Machine) clearAlarm() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.ticker != nil {
		m.ticker.Stop()
		m.ticker = nil
	}
	m.alarm = alarmNone
}

func (m *Machine) emit(ev Event) {
	ev.At = m.clock.Now()
	ev.AttemptID = m.attemptID
	ev.Snapshot = m.Snapshot()
	for _, fn := range m.listeners {
		fn(ev)
	}
}
