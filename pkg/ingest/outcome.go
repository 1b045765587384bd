package ingest

import (
	"fmt"
	"strings"
)

// MessageError records why a single message in a batch could not be persisted.
type MessageError struct {
	// Index is the message's position in the delivered batch.
	Index int
	// Content is the message payload, kept for diagnostics.
	Content string
	Err     error
}

func (e *MessageError) Error() string {
	return fmt.Sprintf("failed to process message %d %q: %v", e.Index, e.Content, e.Err)
}

func (e *MessageError) Unwrap() error { return e.Err }

// BatchError aggregates two or more MessageErrors from one batch. Failures
// keep the order in which the messages were delivered.
type BatchError struct {
	Failures []*MessageError
	Total    int
}

func (e *BatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d messages in the batch failed to process", len(e.Failures), e.Total)
	for _, f := range e.Failures {
		b.WriteString("; ")
		b.WriteString(f.Error())
	}
	return b.String()
}

// Unwrap exposes every failure to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// BatchOutcome is the result of ingesting one batch. A batch with any
// failures must be redelivered as a whole.
type BatchOutcome struct {
	Processed int
	Succeeded int
	Failures  []*MessageError
}

// Success reports whether every message was persisted.
func (o BatchOutcome) Success() bool { return len(o.Failures) == 0 }

// Summary is the one-line description logged for every batch.
func (o BatchOutcome) Summary() string {
	return fmt.Sprintf("%d of %d succeeded", o.Succeeded, o.Processed)
}

// Err converts the outcome into the error handed back to the transport:
// nil on success, the MessageError itself for a single failure and a
// BatchError for more than one.
func (o BatchOutcome) Err() error {
	switch len(o.Failures) {
	case 0:
		return nil
	case 1:
		return o.Failures[0]
	default:
		return &BatchError{Failures: o.Failures, Total: o.Processed}
	}
}
