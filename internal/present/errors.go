package present

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/salesboost/internal/ir"
)

// ErrNoInsertionPoint is matched when no selector of a placement matched
// the host page.
var ErrNoInsertionPoint = errors.New("no insertion point")

// ErrUnknownWidget is returned by Activate for identities not on the page.
var ErrUnknownWidget = errors.New("unknown widget")

// ErrNotActionable is returned by Activate for widgets without an action.
var ErrNotActionable = errors.New("widget has no action")

// InsertionError names the placement and the selectors probed.
type InsertionError struct {
	Widget    ir.WidgetIdentity
	Selectors []string
}

func (e *InsertionError) Error() string {
	return fmt.Sprintf("%s: no insertion point among [%s]", e.Widget, strings.Join(e.Selectors, ", "))
}

// Is makes errors.Is(err, ErrNoInsertionPoint) true.
func (e *InsertionError) Is(target error) bool { return target == ErrNoInsertionPoint }
