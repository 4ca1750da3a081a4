package mutation

import (
	"errors"
	"fmt"

	"github.com/roach88/salesboost/internal/ir"
)

// ErrVerificationFailed is matched by every exhausted item.
var ErrVerificationFailed = errors.New("mutation verification failed")

// VerificationError describes the item whose attempts were exhausted.
//
// Last is the error of the final attempt: the transport or read failure,
// or nil when the host answered and the item simply never appeared.
type VerificationError struct {
	Index    int
	Item     ir.Item
	Attempts int
	Status   int
	Last     error
}

func (e *VerificationError) Error() string {
	msg := fmt.Sprintf("item %d (%s) not in cart after %d attempts", e.Index, e.Item.Key(), e.Attempts)
	if e.Status != 0 {
		msg += fmt.Sprintf(", last status %d", e.Status)
	}
	if e.Last != nil {
		msg += ": " + e.Last.Error()
	}
	return msg
}

func (e *VerificationError) Unwrap() error { return e.Last }

// Is makes errors.Is(err, ErrVerificationFailed) true.
func (e *VerificationError) Is(target error) bool { return target == ErrVerificationFailed }

// OutcomeErr returns nil for a successful outcome and a *VerificationError
// naming the failing item otherwise.
func OutcomeErr(out ir.MutationOutcome, req ir.MutationRequest) error {
	if out.Success {
		return nil
	}
	ve := &VerificationError{Index: out.FailedAt}
	if out.FailedAt >= 0 && out.FailedAt < len(req) {
		ve.Item = req[out.FailedAt]
	}
	return ve
}
