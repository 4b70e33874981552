package pipeline

import (
	"time"

	"github.com/hyperjump/cardex/internal/models"
)

// Transition is one timestamped state change. Side is empty for run-wide states.
type Transition struct {
	Side  models.Side `json:"side,omitempty"`
	State State       `json:"state"`
	At    time.Time   `json:"at"`
}

// SideOutcome is the result for one card side.
type SideOutcome struct {
	Side   models.Side    `json:"side"`
	Record *models.Record `json:"record,omitempty"`
	Reason Reason         `json:"reason,omitempty"`
	Err    error          `json:"-"`
}

// Failed reports whether this side did not produce a record.
func (s SideOutcome) Failed() bool { return s.Err != nil }

// Outcome is the full result of one run.
type Outcome struct {
	RunID       string       `json:"run_id"`
	State       State        `json:"state"`
	Reason      Reason       `json:"reason,omitempty"`
	FailedSide  models.Side  `json:"failed_side,omitempty"`
	Front       SideOutcome  `json:"front"`
	Back        SideOutcome  `json:"back"`
	Transitions []Transition `json:"transitions"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
	err         error
}

// Err returns the error that failed the run, nil when done.
func (o *Outcome) Err() error { return o.err }

// Side returns the outcome for side.
func (o *Outcome) Side(side models.Side) *SideOutcome {
	if side == models.SideBack {
		return &o.Back
	}
	return &o.Front
}

// Elapsed returns the run's wall time.
func (o *Outcome) Elapsed() time.Duration {
	return o.FinishedAt.Sub(o.StartedAt)
}

// Visible returns the records to show. A finished run shows both. A run that
// failed only in parsing shows the side that parsed when partial is set.
// Anything else shows nothing.
func (o *Outcome) Visible(partial bool) []models.Record {
	switch {
	case o.State == StateDone:
		return []models.Record{*o.Front.Record, *o.Back.Record}
	case partial && o.Reason == ReasonMalformedExtraction:
		var out []models.Record
		for _, s := range []SideOutcome{o.Front, o.Back} {
			if s.Record != nil {
				out = append(out, *s.Record)
			}
		}
		return out
	default:
		return nil
	}
}

// SideErrors returns the failed sides' errors in side order.
func (o *Outcome) SideErrors() []*Error {
	var out []*Error
	for _, s := range []SideOutcome{o.Front, o.Back} {
		if s.Err != nil && s.Reason != ReasonCanceled {
			out = append(out, &Error{Reason: s.Reason, Side: s.Side, Err: s.Err})
		}
	}
	return out
}

// SideFailure is the user-facing report for one failed side.
type SideFailure struct {
	Side    models.Side `json:"side"`
	Reason  Reason      `json:"reason"`
	Message string      `json:"message"`
}

// SideFailures reports every failed side, so a run where both answers are
// malformed names both.
func (o *Outcome) SideFailures() []SideFailure {
	errs := o.SideErrors()
	if len(errs) == 0 {
		return nil
	}
	out := make([]SideFailure, len(errs))
	for i, e := range errs {
		out[i] = SideFailure{Side: e.Side, Reason: e.Reason, Message: UserMessage(e)}
	}
	return out
}
