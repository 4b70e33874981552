package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/cardex/internal/llm"
	"github.com/hyperjump/cardex/internal/models"
)

// State is a step of the extraction run.
type State string

const (
	StateIdle                 State = "idle"
	StateUploading            State = "uploading"
	StateRecognizingFrontText State = "recognizing_front_text"
	StateAnsweringFront       State = "answering_front"
	StateRecognizingBackText  State = "recognizing_back_text"
	StateAnsweringBack        State = "answering_back"
	StateParsingResults       State = "parsing_results"
	StateDone                 State = "done"
	StateFailed               State = "failed"
)

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

func recognizingState(side models.Side) State {
	if side == models.SideBack {
		return StateRecognizingBackText
	}
	return StateRecognizingFrontText
}

func answeringState(side models.Side) State {
	if side == models.SideBack {
		return StateAnsweringBack
	}
	return StateAnsweringFront
}

// Reason classifies a failed run.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonConfiguration       Reason = "configuration_error"
	ReasonUpload              Reason = "upload_error"
	ReasonOCR                 Reason = "ocr_error"
	ReasonServiceUnavailable  Reason = "service_unavailable"
	ReasonMalformedExtraction Reason = "malformed_extraction"
	ReasonInternal            Reason = "internal"
	ReasonCanceled            Reason = "canceled"
)

// Error is a classified pipeline failure. Side is empty for failures that
// are not tied to one card side.
type Error struct {
	Reason Reason
	Side   models.Side
	Err    error
}

func (e *Error) Error() string {
	if e.Side != "" {
		return fmt.Sprintf("%s (%s side): %v", e.Reason, e.Side, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ReasonOf extracts the Reason of err, ReasonInternal for unclassified errors.
func ReasonOf(err error) Reason {
	if err == nil {
		return ReasonNone
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Reason
	}
	return ReasonInternal
}

// classify maps an error from one side's recognition or answering step.
func classify(side models.Side, err error) *Error {
	var reason Reason
	switch {
	case errors.Is(err, context.Canceled):
		reason = ReasonCanceled
	case errors.Is(err, models.ErrOCRFailure):
		reason = ReasonOCR
	case errors.Is(err, models.ErrNoCredentials), errors.Is(err, models.ErrStorage):
		reason = ReasonUpload
	case llm.Transient(err), errors.Is(err, context.DeadlineExceeded):
		reason = ReasonServiceUnavailable
	case errors.Is(err, models.ErrMalformedOutput):
		reason = ReasonMalformedExtraction
	default:
		reason = ReasonInternal
	}
	return &Error{Reason: reason, Side: side, Err: err}
}

// User-facing messages.
const (
	MsgMissingImage  = "Please upload both front and back images"
	MsgUploadFailed  = "Error uploading files"
	MsgParseFailed   = "Error processing the card information"
	msgProcessingPre = "Error during processing: "
)

// UserMessage renders err for the person who uploaded the card.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, models.ErrMissingImage) {
		return MsgMissingImage
	}
	switch ReasonOf(err) {
	case ReasonUpload:
		return MsgUploadFailed
	case ReasonMalformedExtraction:
		return MsgParseFailed
	}
	var pe *Error
	if errors.As(err, &pe) {
		return msgProcessingPre + pe.Err.Error()
	}
	return msgProcessingPre + err.Error()
}
