package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/salesboost/internal/compiler"
	"github.com/roach88/salesboost/internal/configload"
	"github.com/roach88/salesboost/internal/store"
)

// CacheOptions holds flags shared by the cache subcommands.
type CacheOptions struct {
	*RootOptions
	Database string
	Endpoint string
}

// CacheEntry is one cached config document.
type CacheEntry struct {
	StoreID       string    `json:"storeId"`
	Hash          string    `json:"hash"`
	FetchedAt     time.Time `json:"fetchedAt"`
	EngineVersion string    `json:"engineVersion"`
	Bytes         int       `json:"bytes"`
	Campaigns     int       `json:"campaigns"`
	Dropped       int       `json:"dropped,omitempty"`
	Valid         bool      `json:"valid"`
}

// CacheListing is the output of cache list.
type CacheListing struct {
	Entries []CacheEntry `json:"entries"`
}

// Text implements Texter.
func (l CacheListing) Text() string {
	if len(l.Entries) == 0 {
		return "cache is empty"
	}
	lines := make([]string, 0, len(l.Entries))
	for _, e := range l.Entries {
		lines = append(lines, e.Text())
	}
	return strings.Join(lines, "\n")
}

// Text implements Texter.
func (e CacheEntry) Text() string {
	state := "ok"
	if !e.Valid {
		state = "invalid"
	}
	return fmt.Sprintf("%s  %s  %s  %d campaign(s)  %s",
		e.StoreID, e.Hash, e.FetchedAt.UTC().Format(time.RFC3339), e.Campaigns, state)
}

// NewCacheCommand creates the cache command group.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CacheOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the durable config cache",
		Long: `The cache keeps the last config document that compiled for each store.
The engine falls back to it when the config service is unreachable.`,
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "cache database (defaults to cache_db setting)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List cached stores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheList(opts, cmd)
		},
	}
	show := &cobra.Command{
		Use:   "show <store-id>",
		Short: "Print the cached document of a store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheShow(opts, args[0], cmd)
		},
	}
	clear := &cobra.Command{
		Use:   "clear <store-id>",
		Short: "Remove the cached document of a store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheClear(opts, args[0], cmd)
		},
	}
	warm := &cobra.Command{
		Use:   "warm <store-id>",
		Short: "Fetch the config of a store and cache it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheWarm(opts, args[0], cmd)
		},
	}
	warm.Flags().StringVar(&opts.Endpoint, "endpoint", "", "config endpoint (defaults to config_endpoint setting)")

	cmd.AddCommand(list, show, clear, warm)
	return cmd
}

// openCache resolves settings and opens the cache database.
func (o *CacheOptions) openCache(f *OutputFormatter) (*store.Store, Settings, error) {
	s, err := LoadSettings(o.Config)
	if err != nil {
		return nil, Settings{}, f.Fail(ExitCommandError, CodeInvalidArgs, "invalid settings", err)
	}
	setString(&s.CacheDB, o.Database)
	if s.CacheDB == "" {
		return nil, Settings{}, f.Fail(ExitCommandError, CodeInvalidArgs, "no cache database: set --db or cache_db", nil)
	}
	st, err := store.Open(s.CacheDB)
	if err != nil {
		return nil, Settings{}, f.Fail(ExitCommandError, CodeCacheError, "cannot open cache", err)
	}
	return st, s, nil
}

func entryOf(c store.CachedConfig) CacheEntry {
	e := CacheEntry{
		StoreID:       c.StoreID,
		Hash:          c.Hash,
		FetchedAt:     c.FetchedAt,
		EngineVersion: c.EngineVersion,
		Bytes:         len(c.Payload),
	}
	if rep, err := compiler.CompileReport(c.Payload); err == nil {
		e.Valid = len(rep.Dropped) == 0
		e.Campaigns = len(rep.Campaigns)
		e.Dropped = len(rep.Dropped)
	}
	return e
}

func runCacheList(opts *CacheOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	st, _, err := opts.openCache(f)
	if err != nil {
		return err
	}
	defer st.Close()

	configs, err := st.ListConfigs(cmd.Context())
	if err != nil {
		return f.Fail(ExitCommandError, CodeCacheError, "cannot list cache", err)
	}
	listing := CacheListing{Entries: []CacheEntry{}}
	for _, c := range configs {
		listing.Entries = append(listing.Entries, entryOf(c))
	}
	return f.Success(listing)
}

func runCacheShow(opts *CacheOptions, storeID string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	st, _, err := opts.openCache(f)
	if err != nil {
		return err
	}
	defer st.Close()

	c, ok, err := st.GetConfig(cmd.Context(), storeID)
	if err != nil {
		return f.Fail(ExitCommandError, CodeCacheError, "cannot read cache", err)
	}
	if !ok {
		return f.Fail(ExitFailure, CodeCacheError, fmt.Sprintf("no cached config for store %s", storeID), nil)
	}
	if f.Format == "json" {
		return f.Success(struct {
			CacheEntry
			Document string `json:"document"`
		}{entryOf(c), string(c.Payload)})
	}
	_, err = fmt.Fprintf(f.Writer, "%s\n%s\n", entryOf(c).Text(), c.Payload)
	return err
}

func runCacheClear(opts *CacheOptions, storeID string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	st, _, err := opts.openCache(f)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.DeleteConfig(cmd.Context(), storeID); err != nil {
		return f.Fail(ExitCommandError, CodeCacheError, "cannot clear cache", err)
	}
	return f.Success(fmt.Sprintf("cleared %s", storeID))
}

func runCacheWarm(opts *CacheOptions, storeID string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	st, s, err := opts.openCache(f)
	if err != nil {
		return err
	}
	defer st.Close()

	setString(&s.ConfigEndpoint, opts.Endpoint)
	if s.ConfigEndpoint == "" {
		return f.Fail(ExitCommandError, CodeInvalidArgs, "no config endpoint: set --endpoint or config_endpoint", nil)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	loader := configload.New(s.ConfigEndpoint, st, configload.WithTimeout(s.ConfigTimeout))
	res, err := loader.LoadResult(ctx, storeID)
	if err != nil {
		return f.Fail(ExitFailure, CodeUnavailable, "config unavailable", err)
	}
	if res.Source != configload.SourceNetwork {
		return f.Fail(ExitFailure, CodeUnavailable, "config service unreachable, cache unchanged", nil)
	}
	return f.Success(fmt.Sprintf("cached %s: %d campaign(s), hash %s", storeID, len(res.Campaigns), res.Hash))
}
