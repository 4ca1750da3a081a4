package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/salesboost/internal/compiler"
	"github.com/roach88/salesboost/internal/ir"
)

// CampaignSummary is one compiled campaign as printed by the CLI.
type CampaignSummary struct {
	ID         string        `json:"id"`
	Kind       ir.Kind       `json:"kind"`
	Enabled    bool          `json:"enabled"`
	Priority   int           `json:"priority"`
	Placements ir.Placements `json:"placements"`
	MinTotal   ir.Money      `json:"minTotal"`
	Items      int           `json:"items"`
}

func summarize(c ir.CampaignConfig) CampaignSummary {
	return CampaignSummary{
		ID:         c.ID,
		Kind:       c.Kind,
		Enabled:    c.Enabled,
		Priority:   c.Priority,
		Placements: c.Placements,
		MinTotal:   c.MinTotal,
		Items:      len(c.Payload.Items),
	}
}

// ValidationResult is the output of validate.
type ValidationResult struct {
	Valid     bool              `json:"valid"`
	Hash      string            `json:"hash,omitempty"`
	Campaigns []CampaignSummary `json:"campaigns,omitempty"`
	Field     string            `json:"field,omitempty"`
	Message   string            `json:"message,omitempty"`

	// Dropped lists the entries the engine would skip.
	Dropped []DroppedEntry `json:"dropped,omitempty"`
}

// DroppedEntry is one campaign entry that failed validation.
type DroppedEntry struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Text implements Texter.
func (r ValidationResult) Text() string {
	if !r.Valid {
		if len(r.Dropped) == 0 {
			return fmt.Sprintf("invalid: %s: %s", r.Field, r.Message)
		}
		var b strings.Builder
		fmt.Fprintf(&b, "invalid: %d entr(ies) dropped, %d campaign(s) still compile", len(r.Dropped), len(r.Campaigns))
		for _, d := range r.Dropped {
			fmt.Fprintf(&b, "\n  %s: %s", d.Field, d.Message)
		}
		return b.String()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "valid: %d campaign(s), hash %s", len(r.Campaigns), r.Hash)
	for _, c := range r.Campaigns {
		state := "on"
		if !c.Enabled {
			state = "off"
		}
		fmt.Fprintf(&b, "\n  %-14s %-11s %-3s priority=%d placements=%v", c.ID, c.Kind, state, c.Priority, c.Placements)
	}
	return b.String()
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config.json>",
		Short: "Validate a campaign config document",
		Long: `Validate a store config document against the campaign schema and list the
campaigns it compiles to, in evaluation order.

Exits 1 when the document is rejected or any campaign entry fails the
schema. The engine skips such entries and keeps the rest.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	raw, err := os.ReadFile(path)
	if err != nil {
		return f.Fail(ExitCommandError, CodeIO, "cannot read config", err)
	}

	rep, err := compiler.CompileReport(raw)
	if err != nil {
		res := ValidationResult{Message: err.Error(), Field: "config"}
		var ce *compiler.CompileError
		if errors.As(err, &ce) {
			res.Field, res.Message = ce.Field, ce.Message
		}
		if werr := f.Success(res); werr != nil {
			return werr
		}
		return WrapExitError(ExitFailure, "config rejected", err)
	}
	camps := rep.Campaigns

	if len(rep.Dropped) > 0 {
		res := ValidationResult{Field: rep.Dropped[0].Field, Message: rep.Dropped[0].Message}
		for _, c := range camps {
			res.Campaigns = append(res.Campaigns, summarize(c))
		}
		for _, d := range rep.Dropped {
			res.Dropped = append(res.Dropped, DroppedEntry{Field: d.Field, Message: d.Message})
		}
		if werr := f.Success(res); werr != nil {
			return werr
		}
		return WrapExitError(ExitFailure, "config entries rejected", rep.Dropped[0])
	}

	hash, err := ir.ConfigHash(raw)
	if err != nil {
		return f.Fail(ExitCommandError, CodeInvalidConfig, "cannot hash config", err)
	}
	f.VerboseLog("compiled %d campaign(s) from %s", len(camps), path)

	res := ValidationResult{Valid: true, Hash: hash}
	for _, c := range camps {
		res.Campaigns = append(res.Campaigns, summarize(c))
	}
	return f.Success(res)
}
