package task

import "fmt"

// Status represents the server-reported state of a task.
//
// Lifecycle: pending -> running -> succeeded | failed
//
// The client never advances a status on its own; it mirrors whatever the
// last successful query reported.
type Status string

// Possible task status values
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Type identifies the kind of OCR job behind a task.
type Type string

// Task type constants
const (
	TypePDF   Type = "pdf"
	TypeImage Type = "image"
)

// ParseStatus converts a raw status string into a Status.
// Unknown values are rejected rather than mapped to a default.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return s, nil
}

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions will occur.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed:
		return true
	case StatusPending, StatusRunning:
		return false
	}
	return false
}

// IsProcessing reports whether the task is still queued or executing.
func (s Status) IsProcessing() bool {
	switch s {
	case StatusPending, StatusRunning:
		return true
	case StatusSucceeded, StatusFailed:
		return false
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, string(s))
	}
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler so that decoding a
// snapshot with an unknown status fails instead of producing a bogus value.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
