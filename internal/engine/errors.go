package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/salesboost/internal/ir"
)

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeNoStoreID means no store id was configured or found on the page.
	ErrCodeNoStoreID ErrorCode = "NO_STORE_ID"

	// ErrCodeConfigUnavailable means neither network nor cache had a config.
	ErrCodeConfigUnavailable ErrorCode = "CONFIG_UNAVAILABLE"

	// ErrCodeCartFetch means the tick's cart read failed.
	ErrCodeCartFetch ErrorCode = "CART_FETCH"

	// ErrCodeVerificationFailed means a widget action exhausted its attempts.
	ErrCodeVerificationFailed ErrorCode = "VERIFICATION_FAILED"

	// ErrCodeNoInsertionPoint means no selector of a placement matched.
	ErrCodeNoInsertionPoint ErrorCode = "NO_INSERTION_POINT"

	// ErrCodeRenderFailed means building or inserting a widget failed.
	ErrCodeRenderFailed ErrorCode = "RENDER_FAILED"
)

// Error is an engine failure with the campaign and placement involved.
type Error struct {
	Code      ErrorCode
	Message   string
	Campaign  string
	Placement ir.Placement
	Err       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.Campaign != "" && e.Placement != "":
		msg += fmt.Sprintf(" (campaign=%s, placement=%s)", e.Campaign, e.Placement)
	case e.Placement != "":
		msg += fmt.Sprintf(" (placement=%s)", e.Placement)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

func hasCode(err error, code ErrorCode) bool {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Code == code
	}
	return false
}

// IsConfigUnavailable reports whether err stopped the engine from starting
// for lack of a config or store id.
func IsConfigUnavailable(err error) bool {
	return hasCode(err, ErrCodeConfigUnavailable) || hasCode(err, ErrCodeNoStoreID)
}

// IsCartFetchError reports whether err is a failed tick cart read.
func IsCartFetchError(err error) bool {
	return hasCode(err, ErrCodeCartFetch)
}

// IsVerificationFailure reports whether err is an exhausted widget action.
func IsVerificationFailure(err error) bool {
	return hasCode(err, ErrCodeVerificationFailed)
}

// IsNoInsertionPoint reports whether err is a skipped placement.
func IsNoInsertionPoint(err error) bool {
	return hasCode(err, ErrCodeNoInsertionPoint)
}

// IsRenderFailed reports whether err is a failed widget render.
func IsRenderFailed(err error) bool {
	return hasCode(err, ErrCodeRenderFailed)
}
