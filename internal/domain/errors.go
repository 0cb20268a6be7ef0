package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientCredit = errors.New("insufficient credit")
	ErrStaleTransition    = errors.New("stale job transition")
	ErrAlreadyCharged     = errors.New("job already charged")
	ErrAlreadyRefunded    = errors.New("job already refunded")
	ErrNoCharge           = errors.New("no charge recorded for job")
)

// Short error codes surfaced on failed jobs via the status endpoint.
const (
	ErrCodeInsufficientCredit = "insufficient_credit"
	ErrCodeTimedOut           = "timed_out"
)

// StageFailedMessage formats the user-visible error string for a stage
// executor failure: stage_failed:<stage>: <short message>.
func StageFailedMessage(stage string, err error) string {
	return fmt.Sprintf("stage_failed:%s: %v", stage, err)
}
