package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/salesboost/internal/analytics"
	"github.com/roach88/salesboost/internal/cart"
	"github.com/roach88/salesboost/internal/configload"
	"github.com/roach88/salesboost/internal/engine"
	"github.com/roach88/salesboost/internal/ir"
	"github.com/roach88/salesboost/internal/metrics"
	"github.com/roach88/salesboost/internal/page"
	"github.com/roach88/salesboost/internal/present"
	"github.com/roach88/salesboost/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	StoreID        string
	StorefrontURL  string
	ConfigEndpoint string
	CacheDB        string
	Product        string
	Clicks         []string
	Watch          bool
	Out            string

	// Signals stops a --watch run. Nil means SIGINT and SIGTERM.
	Signals <-chan os.Signal
}

// WidgetReport is one widget on the page after the run.
type WidgetReport struct {
	Widget string        `json:"widget"`
	State  present.State `json:"state,omitempty"`
}

// ClickReport is the result of one --click.
type ClickReport struct {
	Widget string `json:"widget"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

// RunResult is the output of run.
type RunResult struct {
	StoreID string            `json:"storeId"`
	Source  configload.Source `json:"source"`
	Ticks   int64             `json:"ticks"`
	Widgets []WidgetReport    `json:"widgets"`
	Clicks  []ClickReport     `json:"clicks,omitempty"`
	Cart    *ir.CartSnapshot  `json:"cart,omitempty"`
}

// Text implements Texter.
func (r RunResult) Text() string {
	lines := []string{fmt.Sprintf("store %s (%s config), %d tick(s)", r.StoreID, r.Source, r.Ticks)}
	for _, w := range r.Widgets {
		lines = append(lines, fmt.Sprintf("  widget %-24s %s", w.Widget, w.State))
	}
	for _, c := range r.Clicks {
		status := "verified"
		if !c.OK {
			status = "failed: " + c.Error
		}
		lines = append(lines, fmt.Sprintf("  click  %-24s %s", c.Widget, status))
	}
	if r.Cart != nil {
		lines = append(lines, fmt.Sprintf("  cart   %d line(s), subtotal %d", len(r.Cart.Items), r.Cart.Subtotal))
	}
	return strings.Join(lines, "\n")
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <page.html>",
		Short: "Run the engine against a storefront page",
		Long: `Load a storefront page, fetch the store config, read the live cart and
render the winning widget of every placement.

--click activates widgets after the first tick, verifying each add with a
fresh cart read. --watch keeps the engine reacting to cart and page changes
until interrupted.

Example:
  salesboost run page.html --storefront https://shop.example --config-endpoint https://admin.example/api/config
  salesboost run page.html -c salesboost.yaml --click b1@product --out rendered.html`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.StoreID, "store", "", "store id (defaults to the page's store id)")
	cmd.Flags().StringVar(&opts.StorefrontURL, "storefront", "", "storefront base URL serving /cart.json and /cart/add.json")
	cmd.Flags().StringVar(&opts.ConfigEndpoint, "config-endpoint", "", "config service endpoint")
	cmd.Flags().StringVar(&opts.CacheDB, "db", "", "config cache database")
	cmd.Flags().StringVar(&opts.Product, "product", "", "product id of the page")
	cmd.Flags().StringArrayVar(&opts.Clicks, "click", nil, "widget to activate, as <campaign>@<placement> (repeatable)")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "keep reacting until interrupted")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "write the rendered page to this file (- for stdout)")

	return cmd
}

func (o *RunOptions) settings() (Settings, error) {
	s, err := LoadSettings(o.Config)
	if err != nil {
		return Settings{}, err
	}
	setString(&s.StoreID, o.StoreID)
	setString(&s.StorefrontURL, o.StorefrontURL)
	setString(&s.ConfigEndpoint, o.ConfigEndpoint)
	setString(&s.CacheDB, o.CacheDB)
	setString(&s.PageProductID, o.Product)
	return s, nil
}

func runEngine(opts *RunOptions, pagePath string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	ctx := cmd.Context()

	s, err := opts.settings()
	if err != nil {
		return f.Fail(ExitCommandError, CodeInvalidArgs, "invalid settings", err)
	}
	if s.StorefrontURL == "" || s.ConfigEndpoint == "" {
		return f.Fail(ExitCommandError, CodeInvalidArgs, "storefront url and config endpoint are required", nil)
	}

	clicks := make([]ir.WidgetIdentity, 0, len(opts.Clicks))
	for _, key := range opts.Clicks {
		id, err := ir.ParseWidgetIdentity(key)
		if err != nil {
			return f.Fail(ExitCommandError, CodeInvalidArgs, "invalid --click", err)
		}
		clicks = append(clicks, id)
	}

	pf, err := os.Open(pagePath)
	if err != nil {
		return f.Fail(ExitCommandError, CodeIO, "cannot read page", err)
	}
	doc, err := page.Parse(pf, s.StorefrontURL)
	pf.Close()
	if err != nil {
		return f.Fail(ExitCommandError, CodeIO, "cannot parse page", err)
	}

	inst, err := Build(s, doc)
	if err != nil {
		return f.Fail(ExitCommandError, CodeInvalidArgs, "cannot build engine", err)
	}
	defer inst.Close()

	if err := inst.Engine.Start(ctx); err != nil {
		return f.Fail(ExitFailure, CodeUnavailable, "engine did not start", err)
	}
	f.VerboseLog("engine started for store %s", inst.Engine.StoreID())

	res := RunResult{StoreID: inst.Engine.StoreID(), Source: inst.Engine.ConfigSource()}
	failed := false
	for _, id := range clicks {
		report := ClickReport{Widget: id.Key(), OK: true}
		if err := inst.Engine.Activate(ctx, id); err != nil {
			report.OK, report.Error = false, err.Error()
			failed = true
		}
		res.Clicks = append(res.Clicks, report)
	}
	if len(clicks) > 0 {
		// The cart changed; re-evaluate before reporting.
		if err := inst.Engine.Tick(ctx); err != nil {
			slog.Warn("tick after clicks failed", "error", err)
		}
	}

	if opts.Watch {
		if err := watch(ctx, inst.Engine, opts.Signals); err != nil {
			return f.Fail(ExitCommandError, CodeIO, "reactivity loop failed", err)
		}
	}

	res.Ticks = inst.Engine.TickCount()
	res.Widgets = []WidgetReport{}
	for _, id := range inst.Engine.Widgets() {
		state, _ := inst.Engine.WidgetState(id)
		res.Widgets = append(res.Widgets, WidgetReport{Widget: id.Key(), State: state})
	}
	if snap, ok := inst.Engine.LastCart(); ok {
		res.Cart = &snap
	}

	if opts.Out != "" {
		if err := writePage(doc, opts.Out, cmd.OutOrStdout()); err != nil {
			return f.Fail(ExitCommandError, CodeIO, "cannot write page", err)
		}
	}
	if opts.Out != "-" {
		if err := f.Success(res); err != nil {
			return err
		}
	}
	if failed {
		return NewExitError(ExitFailure, "a widget action was not verified")
	}
	return nil
}

// watch runs the reactivity loop until a signal arrives.
func watch(ctx context.Context, e *engine.Engine, sigs <-chan os.Signal) error {
	if sigs == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(ch)
		sigs = ch
	}

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	select {
	case sig := <-sigs:
		slog.Info("stopping", "signal", sig)
		e.Stop()
		return <-done
	case err := <-done:
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
}

func writePage(doc *page.Document, path string, stdout io.Writer) error {
	if path == "-" {
		return doc.Render(stdout)
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := doc.Render(out); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Instance is an engine with the resources it owns.
type Instance struct {
	Engine   *engine.Engine
	Registry *prometheus.Registry

	closers []func()
}

// Close releases the cache, analytics client and metrics server.
func (i *Instance) Close() {
	for j := len(i.closers) - 1; j >= 0; j-- {
		i.closers[j]()
	}
	i.closers = nil
}

// Build wires an engine for doc from settings.
func Build(s Settings, doc *page.Document) (*Instance, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	inst := &Instance{Registry: prometheus.NewRegistry()}
	m := metrics.New(inst.Registry)

	client, err := cart.New(s.StorefrontURL, cart.WithTimeout(s.RequestTimeout))
	if err != nil {
		return nil, err
	}

	var cache configload.Cache
	if s.CacheDB != "" {
		st, err := store.Open(s.CacheDB)
		if err != nil {
			return nil, fmt.Errorf("open config cache: %w", err)
		}
		inst.closers = append(inst.closers, func() { st.Close() })
		cache = st
	}
	loader := configload.New(s.ConfigEndpoint, cache, configload.WithTimeout(s.ConfigTimeout))

	money, err := present.NewCurrencyFormatter(s.Currency, s.Locale)
	if err != nil {
		inst.Close()
		return nil, err
	}

	var sink analytics.Sink = analytics.Discard{}
	if s.AnalyticsEndpoint != "" {
		ac := analytics.New(s.AnalyticsEndpoint, analytics.WithMetrics(m))
		inst.closers = append(inst.closers, func() {
			ctx, cancel := context.WithTimeout(context.Background(), analytics.DefaultTimeout)
			defer cancel()
			_ = ac.Close(ctx)
		})
		sink = ac
	}

	if s.MetricsAddr != "" {
		srv := &http.Server{Addr: s.MetricsAddr, Handler: metrics.Handler(inst.Registry), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", "addr", s.MetricsAddr, "error", err)
			}
		}()
		inst.closers = append(inst.closers, func() { _ = srv.Close() })
	}

	opts := []engine.Option{
		engine.WithStoreID(s.StoreID),
		engine.WithPageProductID(ir.ID(s.PageProductID)),
		engine.WithRetryMax(s.RetryMax),
		engine.WithDebounce(s.Debounce),
		engine.WithMetrics(m),
		engine.WithSink(sink),
		engine.WithLayerOptions(
			present.WithSelectors(s.Placements),
			present.WithSettleDelay(s.SettleDelay),
			present.WithMoneyFormatter(money),
			present.WithDevice(s.Device),
		),
	}
	inst.Engine = engine.New(doc, loader, client, opts...)
	inst.closers = append(inst.closers, inst.Engine.Stop)
	return inst, nil
}
