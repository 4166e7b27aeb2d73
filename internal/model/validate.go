package model

import (
	"fmt"

	"github.com/devrev/designer/internal/errors"
)

// Validate checks the ordering invariants of a captured session: every response
// follows its request and the session window covers all of its operations.
func (s *Session) Validate() error {
	if s.EndTime.Before(s.StartTime) {
		return errors.InvalidWorkload(s.SessionID, "end_time precedes start_time")
	}

	for i := range s.Operations {
		op := &s.Operations[i]
		if op.Collection == "" {
			return errors.InvalidWorkload(s.SessionID, fmt.Sprintf("operation %d has no collection", i))
		}
		if !op.Type.Valid() {
			return errors.InvalidWorkload(s.SessionID, fmt.Sprintf("operation %d has unknown type %q", i, op.Type))
		}
		if op.RespTime.Before(op.QueryTime) {
			return errors.InvalidWorkload(s.SessionID, fmt.Sprintf("operation %d responds before it was issued", i))
		}
		if op.QueryTime.Before(s.StartTime) {
			return errors.InvalidWorkload(s.SessionID, fmt.Sprintf("operation %d starts before the session", i))
		}
		if op.RespTime.After(s.EndTime) {
			return errors.InvalidWorkload(s.SessionID, fmt.Sprintf("operation %d ends after the session", i))
		}
	}
	return nil
}

// ValidateSessions validates every session in order and stops at the first failure
func ValidateSessions(sessions []Session) error {
	for i := range sessions {
		if err := sessions[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}
