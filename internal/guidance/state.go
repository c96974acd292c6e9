package guidance

import "github.com/banshee-data/jab.report/internal/cue"

// State is a phase of the capture flow.
type State string

const (
	AwaitingBody   State = "awaiting_body"
	BodyIncomplete State = "body_incomplete"
	BodyStable     State = "body_stable"
	TurnPending    State = "turn_pending"
	TurnConfirmed  State = "turn_confirmed"
	PreCountdown   State = "pre_countdown"
	Countdown      State = "countdown"
	Recording      State = "recording"
	Finalizing     State = "finalizing" // terminal; success once the output is reported
	Aborted        State = "aborted"    // terminal
)

// Terminal reports whether no sample can move the machine out of s.
func (s State) Terminal() bool {
	return s == Finalizing || s == Aborted
}

// counting reports whether s is part of the strict pre-recording countdown.
func (s State) counting() bool {
	return s == PreCountdown || s == Countdown
}

// entryCues maps a state to the cue played when it is entered.
var entryCues = map[State]cue.Cue{
	BodyIncomplete: cue.FullBody,
	TurnPending:    cue.TurnBody,
	Countdown:      cue.Countdown,
	Recording:      cue.Start,
}
