package task

import (
	"errors"
	"fmt"
)

var ErrInvalidStatus = errors.New("invalid task status")

type Status int

const (
	StatusPending Status = iota
	StatusInProgress
	StatusSuccess
	StatusFailure
	StatusSkipped
	StatusStopped
	StatusLocalCache
	StatusLocalCacheKeptExisting
	StatusRemoteCache
)

var statusNames = map[Status]string{
	StatusPending:                "pending",
	StatusInProgress:             "in-progress",
	StatusSuccess:                "success",
	StatusFailure:                "failure",
	StatusSkipped:                "skipped",
	StatusStopped:                "stopped",
	StatusLocalCache:             "local-cache",
	StatusLocalCacheKeptExisting: "local-cache-kept-existing",
	StatusRemoteCache:            "remote-cache",
}

// ParseStatus accepts the wire names used by hosts.
func ParseStatus(s string) (Status, error) {
	for status, name := range statusNames {
		if name == s {
			return status, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// IsTerminal reports whether a task in this status is finished for the run.
func (s Status) IsTerminal() bool {
	return s != StatusPending && s != StatusInProgress && s.Valid()
}

// IsCache reports whether the status is one of the cache classifications.
func (s Status) IsCache() bool {
	switch s {
	case StatusLocalCache, StatusLocalCacheKeptExisting, StatusRemoteCache:
		return true
	default:
		return false
	}
}

// CanTransition enforces the monotonic lifecycle: nothing leaves a terminal
// status, and nothing goes back to pending.
func CanTransition(from, to Status) bool {
	if !to.Valid() || from.IsTerminal() {
		return false
	}
	switch to {
	case StatusPending:
		return from == StatusPending
	case StatusInProgress:
		return from == StatusPending || from == StatusInProgress
	default:
		return true
	}
}

func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStatus, int(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
