package harness

import "github.com/roach88/salesboost/internal/ir"

// TraceEvent records the page and storefront after one step.
type TraceEvent struct {
	Seq      int               `json:"seq"`
	Step     string            `json:"step"`
	Ticks    int64             `json:"ticks"`
	Widgets  []string          `json:"widgets"`
	States   map[string]string `json:"states,omitempty"`
	Subtotal ir.Money          `json:"subtotal"`
	Posts    int               `json:"posts"`
	Reads    int               `json:"reads"`
	Error    string            `json:"error,omitempty"`
}

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`

	// Page is the final rendered host page.
	Page string `json:"-"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{Pass: true, Trace: []TraceEvent{}, Errors: []string{}}
}

// AddError records a failure.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
