// Package guidance drives the capture flow for a single jab recording.
//
// A Machine folds pose samples, timer wakes and recorder completions into a
// linear progression:
//
//	AwaitingBody → BodyIncomplete → BodyStable → TurnPending → TurnConfirmed
//	  → PreCountdown → Countdown → Recording → Finalizing
//
// with Aborted reachable from any non-terminal state. Body framing is
// debounced asymmetrically (StableFrames to gain, LossFrames to lose), the
// stance turn angle is smoothed over a fixed window, and once the turn lands
// in the target band the machine runs a settle phase, a visible countdown
// and a short recording whose progress is a presentation timer only.
//
// Machine is not safe for concurrent use. Runner owns a Machine and
// serialises every input onto one goroutine.
package guidance
