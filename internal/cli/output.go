// Package cli formats extraction results for the command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/cardex/internal/models"
	"github.com/hyperjump/cardex/internal/pipeline"
)

// OutputFormat is the format for extraction output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts "text" or "json"; empty means text.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

// Result is the JSON document written for one run.
type Result struct {
	RunID       string                 `json:"run_id"`
	State       pipeline.State         `json:"state"`
	Reason      pipeline.Reason        `json:"reason,omitempty"`
	FailedSide  models.Side            `json:"failed_side,omitempty"`
	Message     string                 `json:"message,omitempty"`
	Errors      []pipeline.SideFailure `json:"errors,omitempty"`
	Front       map[string]string      `json:"front,omitempty"`
	Back        map[string]string      `json:"back,omitempty"`
	ElapsedMS   int64                  `json:"elapsed_ms"`
	Transitions []pipeline.Transition  `json:"transitions,omitempty"`
}

// NewResult collects the visible records of o. err is the run error.
func NewResult(o *pipeline.Outcome, err error, partial bool) Result {
	res := Result{
		RunID:       o.RunID,
		State:       o.State,
		Reason:      o.Reason,
		FailedSide:  o.FailedSide,
		Message:     pipeline.UserMessage(err),
		Errors:      o.SideFailures(),
		ElapsedMS:   o.Elapsed().Milliseconds(),
		Transitions: o.Transitions,
	}
	for _, rec := range o.Visible(partial) {
		if rec.Side == models.SideBack {
			res.Back = rec.Map()
		} else {
			res.Front = rec.Map()
		}
	}
	return res
}

// WriteOutcome writes the result of one run to w in the given format.
func WriteOutcome(w io.Writer, o *pipeline.Outcome, err error, partial bool, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(NewResult(o, err, partial))
	default:
		writeOutcomeText(w, o, err, partial)
		return nil
	}
}

func writeOutcomeText(w io.Writer, o *pipeline.Outcome, err error, partial bool) {
	fmt.Fprintf(w, "\nRun %s finished in %dms: %s\n", o.RunID, o.Elapsed().Milliseconds(), o.State)
	if err != nil {
		fmt.Fprintf(w, "%s\n", pipeline.UserMessage(err))
	}
	for _, f := range o.SideFailures() {
		fmt.Fprintf(w, "  %s side: %s (%s)\n", f.Side, f.Message, f.Reason)
	}
	for _, rec := range o.Visible(partial) {
		writeRecord(w, rec)
	}
	fmt.Fprintln(w)
}

func writeRecord(w io.Writer, rec models.Record) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "%s\n\n", rec.Side.Title())
	width := 0
	for _, f := range rec.Fields {
		if n := len([]rune(f.Key)); n > width {
			width = n
		}
	}
	for _, f := range rec.Fields {
		fmt.Fprintf(w, "  %-*s  %s\n", width, f.Key, f.Value)
	}
	fmt.Fprintln(w)
}
