package contracts

import (
	"errors"
	"fmt"
)

// ErrStrategyUnavailable marks a decision whose action has no registered
// strategy backend. It is reported as a failed result and counts against the
// governor's fail streak.
var ErrStrategyUnavailable = errors.New("strategy unavailable")

// ErrPatchNotFound marks a rollback request for a patch id missing from the
// journal.
var ErrPatchNotFound = errors.New("patch not found")

// ErrApprovalRequired marks an attempt to apply a REFACTOR or ARCHIVE plan
// without a valid operator approval token.
var ErrApprovalRequired = errors.New("plan requires operator approval")

// CertificationError reports a certifier rejecting a result. When
// certification is mandatory it always forces rollback of the produced
// patches.
type CertificationError struct {
	Reason string
}

func (e *CertificationError) Error() string {
	return fmt.Sprintf("certification failed: %s", e.Reason)
}

// RollbackError reports that restoring prior state itself failed. This is
// the only fatal class: the system is left in an unknown state, so it must
// surface loudly instead of being recovered locally.
type RollbackError struct {
	PatchID string
	Err     error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("rollback of patch %s failed: %v", e.PatchID, e.Err)
}

func (e *RollbackError) Unwrap() error { return e.Err }
