package processor

import "fmt"

// Attempt identifies one of the two atomic write attempts.
type Attempt int

const (
	AttemptInitial Attempt = iota
	AttemptSanitized
)

func (a Attempt) String() string {
	switch a {
	case AttemptInitial:
		return "initial"
	case AttemptSanitized:
		return "sanitized"
	default:
		return fmt.Sprintf("attempt(%d)", int(a))
	}
}

// WriteError is a failed atomic write attempt. When the sanitized attempt
// fails, Previous holds the initial attempt's error.
type WriteError struct {
	Attempt  Attempt
	Err      error
	Previous error
}

func (e *WriteError) Error() string {
	if e.Previous != nil {
		return fmt.Sprintf("%s write: %v (after %v)", e.Attempt, e.Err, e.Previous)
	}
	return fmt.Sprintf("%s write: %v", e.Attempt, e.Err)
}

func (e *WriteError) Unwrap() []error {
	if e.Previous == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Previous}
}

// CommitError is the terminal failure for a version range. The range was not
// persisted and can be re-driven as a whole.
type CommitError struct {
	Err           error
	StartVersion  uint64
	EndVersion    uint64
	ProcessorName string
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("%s: commit versions [%d, %d]: %v", e.ProcessorName, e.StartVersion, e.EndVersion, e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}
