// ABOUTME: compliancectl command line: authenticated requests, uploads, search, and polling
// ABOUTME: Each command wires the client through the cache, query, and mutation engines

package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/lmmcdev/compliance-frontend-sub001/apierror"
	"github.com/lmmcdev/compliance-frontend-sub001/auth"
	"github.com/lmmcdev/compliance-frontend-sub001/cache"
	"github.com/lmmcdev/compliance-frontend-sub001/cli/tui"
	"github.com/lmmcdev/compliance-frontend-sub001/client"
	"github.com/lmmcdev/compliance-frontend-sub001/config"
	"github.com/lmmcdev/compliance-frontend-sub001/logger"
	"github.com/lmmcdev/compliance-frontend-sub001/metrics"
	"github.com/lmmcdev/compliance-frontend-sub001/models"
	"github.com/lmmcdev/compliance-frontend-sub001/pagination"
	"github.com/lmmcdev/compliance-frontend-sub001/query"
	"github.com/lmmcdev/compliance-frontend-sub001/search"
)

// rootOptions carries the persistent flags shared by every command.
type rootOptions struct {
	configFile    string
	verbose       bool
	rolesRequired []string
}

func BuildCLI() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "compliancectl",
		Short: "Compliance dashboard API client",
		Long: `compliancectl talks to the compliance API the way the dashboard does:
- bearer tokens with automatic refresh-and-retry on 401
- local role gating before any request leaves the machine
- cached reads with staleness windows, debounced search, polling watches`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.verbose {
				logger.InitLevel(slog.LevelDebug)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "YAML config file (environment and .env are used when empty)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringSliceVar(&opts.rolesRequired, "roles-required", nil, "roles the token must hold before a request is sent")

	rootCmd.AddCommand(buildGetCommand(opts))
	rootCmd.AddCommand(buildWriteCommand(opts, http.MethodPost))
	rootCmd.AddCommand(buildWriteCommand(opts, http.MethodPut))
	rootCmd.AddCommand(buildDeleteCommand(opts))
	rootCmd.AddCommand(buildUploadCommand(opts))
	rootCmd.AddCommand(buildSearchCommand(opts))
	rootCmd.AddCommand(buildWatchCommand(opts))

	return rootCmd
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	if o.configFile != "" {
		return config.LoadFile(o.configFile)
	}
	return config.Load()
}

// buildClient assembles the authenticated client from config: transport
// (CA/proxy), token provider (refresh endpoint when configured, static token
// otherwise), and the metrics collector on the default registry.
func (o *rootOptions) buildClient(cfg *config.Config) *client.Client {
	httpClient := client.NewHTTPClient(client.TransportConfig{
		CACert:             cfg.CACert,
		InsecureSkipVerify: cfg.SkipSSLValidation,
		ProxyURL:           cfg.ProxyURL,
		Timeout:            cfg.RequestTimeout,
	})

	var provider auth.TokenProvider
	switch {
	case cfg.RefreshConfigured():
		provider = auth.NewRefreshTokenProvider(cfg.TokenURL, cfg.ClientID, cfg.ClientSecret, cfg.RefreshToken, httpClient)
	case cfg.AccessToken != "":
		provider = auth.NewStaticTokenProvider(cfg.AccessToken)
	default:
		slog.Warn("No credentials configured, authenticated requests will fail")
	}

	c := client.New(cfg.APIBaseURL, provider)
	c.SetHTTPClient(httpClient)
	c.SetTimeout(cfg.RequestTimeout)
	c.OnAuthLost(func(reason string) {
		slog.Warn("Session is no longer valid, sign in again", "reason", reason)
	})
	c.Instrument(metrics.NewCollector(nil))

	if cfg.AccessToken != "" {
		if cred, err := auth.FromToken(cfg.AccessToken); err == nil {
			c.SetCredential(cred)
		}
	}

	return c
}

func (o *rootOptions) requestOptions() *client.Options {
	return &client.Options{RequiredRoles: o.rolesRequired}
}

// signalContext returns a context cancelled by SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func buildGetCommand(opts *rootOptions) *cobra.Command {
	var page, pageSize int

	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "Fetch a resource",
		Long:  "Authenticated GET. With --page, the response is treated as a list envelope and a position line is printed to stderr.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd, opts, args[0], page, pageSize)
		},
	}

	cmd.Flags().IntVar(&page, "page", 0, "1-based page to fetch (0 = unpaginated)")
	cmd.Flags().IntVar(&pageSize, "page-size", pagination.DefaultPageSize, "items per page")

	return cmd
}

func runGet(cmd *cobra.Command, opts *rootOptions, path string, page, pageSize int) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	c := opts.buildClient(cfg)

	ctx, stop := signalContext()
	defer stop()

	req := client.Request{
		Method: http.MethodGet,
		Path:   path,
		Opts:   *opts.requestOptions(),
	}

	var window *pagination.Window
	if page > 0 {
		window = pagination.New(pageSize)
		req.Query = window.Query()
		// Bounds are only known after the server answers; send the
		// requested page as-is and reconcile below.
		req.Query.Set("page", strconv.Itoa(page))
	}

	res, err := c.Do(ctx, req)
	if err != nil {
		return err
	}

	if window == nil {
		printJSON(cmd.OutOrStdout(), res.Body)
		return nil
	}

	envelope, err := client.DecodeJSON[models.Page[json.RawMessage]](res)
	if err != nil {
		return err
	}

	printJSON(cmd.OutOrStdout(), res.Body)

	window.SetTotal(envelope.TotalCount)
	window.GoTo(page)
	fmt.Fprintln(cmd.ErrOrStderr(), window.PageInfo())
	if window.Page() != page {
		slog.Warn("Requested page is past the end", "requested", page, "last_page", window.Page())
	}
	return nil
}

// buildWriteCommand covers post and put: same shape, different verb.
func buildWriteCommand(opts *rootOptions, method string) *cobra.Command {
	var data, idempotencyKey string
	use := "post"
	if method == http.MethodPut {
		use = "put"
	}

	cmd := &cobra.Command{
		Use:   use + " <path>",
		Short: "Send a " + method + " request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := parsePayload(data)
			if err != nil {
				return err
			}
			return runWrite(cmd, opts, method, args[0], payload, idempotencyKey)
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body")
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "Idempotency-Key header for safe retries")

	return cmd
}

func buildDeleteCommand(opts *rootOptions) *cobra.Command {
	var idempotencyKey string
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <path>",
		Short: "Send a DELETE request",
		Long:  "Asks for confirmation before the request leaves the machine; --yes skips the prompt for scripts.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				confirmed, err := tui.ConfirmDelete(args[0])
				if err != nil {
					return err
				}
				if !confirmed {
					fmt.Fprintln(cmd.ErrOrStderr(), "Delete cancelled")
					return nil
				}
			}
			return runWrite(cmd, opts, http.MethodDelete, args[0], nil, idempotencyKey)
		},
	}

	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "Idempotency-Key header for safe retries")
	cmd.Flags().BoolVar(&yes, "yes", false, "skip the confirmation prompt")

	return cmd
}

func parsePayload(data string) (json.RawMessage, error) {
	if data == "" {
		return nil, nil
	}
	if !json.Valid([]byte(data)) {
		return nil, fmt.Errorf("--data is not valid JSON")
	}
	return json.RawMessage(data), nil
}

// runWrite executes the verb through a mutation, which is how the dashboard
// issues writes: a second invocation would supersede the first.
func runWrite(cmd *cobra.Command, opts *rootOptions, method, path string, payload json.RawMessage, idempotencyKey string) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	c := opts.buildClient(cfg)

	ctx, stop := signalContext()
	defer stop()

	reqOpts := opts.requestOptions()
	reqOpts.IdempotencyKey = idempotencyKey

	m := query.NewMutation(query.MutationOptions[json.RawMessage, json.RawMessage]{
		Do: func(ctx context.Context, in json.RawMessage) (json.RawMessage, error) {
			var res *client.Response
			var err error
			switch method {
			case http.MethodPost:
				res, err = c.Post(ctx, path, in, reqOpts)
			case http.MethodPut:
				res, err = c.Put(ctx, path, in, reqOpts)
			case http.MethodDelete:
				res, err = c.Delete(ctx, path, reqOpts)
			default:
				return nil, fmt.Errorf("unsupported method %s", method)
			}
			if err != nil {
				return nil, err
			}
			return json.RawMessage(res.Body), nil
		},
		OnSuccess: func(out json.RawMessage) {
			slog.Info("Request succeeded", "method", method, "path", path)
		},
		OnError: func(aerr *apierror.Error) {
			slog.Error("Request failed", "method", method, "path", path, "kind", aerr.Kind)
		},
	})
	defer m.Close()

	out, err := m.Mutate(ctx, payload)
	if err != nil {
		return err
	}
	if len(out) > 0 {
		printJSON(cmd.OutOrStdout(), out)
	}
	return nil
}

func buildUploadCommand(opts *rootOptions) *cobra.Command {
	var fields map[string]string

	cmd := &cobra.Command{
		Use:   "upload <path> <file>",
		Short: "Upload a file as multipart/form-data",
		Long:  "Uploads a file with progress logging. Extra form fields go in with --field key=value.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd, opts, args[0], args[1], fields)
		},
	}

	cmd.Flags().StringToStringVar(&fields, "field", nil, "additional form fields (key=value)")

	return cmd
}

func runUpload(cmd *cobra.Command, opts *rootOptions, path, filePath string, fields map[string]string) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	c := opts.buildClient(cfg)

	ctx, stop := signalContext()
	defer stop()

	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	lastLogged := -1
	res, err := c.Upload(ctx, path, client.Upload{
		FileName: filepath.Base(filePath),
		Content:  f,
		Fields:   fields,
		OnProgress: func(percent int) {
			// Whole percentages already, but only log every tenth.
			if percent == 100 || percent/10 > lastLogged/10 {
				lastLogged = percent
				slog.Info("Upload progress", "percent", percent)
			}
		},
	}, opts.requestOptions())
	if err != nil {
		return err
	}

	slog.Info("Upload complete", "file", filepath.Base(filePath), "status", res.Status)
	if len(res.Body) > 0 {
		printJSON(cmd.OutOrStdout(), res.Body)
	}
	return nil
}

func buildSearchCommand(opts *rootOptions) *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "search <path>",
		Short: "Search interactively",
		Long: `Opens a search box wired like the dashboard's: every keystroke feeds the
debounce, and only the settled term is fetched. With --plain, terms are read
from stdin one per line instead; a blank line exits.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if plain {
				return runSearchPlain(cmd, opts, args[0])
			}
			return runSearchTUI(cmd, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "line mode: read terms from stdin, print results to stdout")

	return cmd
}

// searchFetch builds the term fetch both search modes share: a GET with the
// term in the q parameter.
func searchFetch(c *client.Client, opts *rootOptions, path string) func(ctx context.Context, term string) (json.RawMessage, error) {
	return func(ctx context.Context, term string) (json.RawMessage, error) {
		res, err := c.Do(ctx, client.Request{
			Method: http.MethodGet,
			Path:   path,
			Query:  url.Values{"q": []string{term}},
			Opts:   *opts.requestOptions(),
		})
		if err != nil {
			return nil, err
		}
		return json.RawMessage(res.Body), nil
	}
}

func runSearchTUI(cmd *cobra.Command, opts *rootOptions, path string) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	c := opts.buildClient(cfg)

	store := cache.New(cfg.CacheTTL)
	store.Instrument(metrics.NewCollector(nil))
	defer store.Close()

	feed := tui.NewFeed[search.State[json.RawMessage]]()

	s := search.New(search.Options[json.RawMessage]{
		KeyPrefix: path,
		Store:     store,
		TTL:       cfg.CacheTTL,
		MinLength: cfg.SearchMinLength,
		Debounce:  cfg.SearchDebounce,
		Fetch:     searchFetch(c, opts, path),
		OnChange: func(state search.State[json.RawMessage]) {
			feed.Push(state)
		},
	})
	defer s.Close()

	p := tea.NewProgram(
		tui.NewSearch(s, feed, path, cfg.SearchMinLength),
		tea.WithAltScreen(),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()),
	)
	_, err = p.Run()
	return err
}

func runSearchPlain(cmd *cobra.Command, opts *rootOptions, path string) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	c := opts.buildClient(cfg)

	ctx, stop := signalContext()
	defer stop()

	store := cache.New(cfg.CacheTTL)
	store.Instrument(metrics.NewCollector(nil))
	defer store.Close()

	printer := &snapshotPrinter{out: cmd.OutOrStdout()}

	s := search.New(search.Options[json.RawMessage]{
		KeyPrefix: path,
		Store:     store,
		TTL:       cfg.CacheTTL,
		MinLength: cfg.SearchMinLength,
		Debounce:  cfg.SearchDebounce,
		Fetch:     searchFetch(c, opts, path),
		OnChange: func(state search.State[json.RawMessage]) {
			printer.print(state.Result)
		},
	})
	defer s.Close()

	fmt.Fprintf(cmd.ErrOrStderr(), "Searching %s; type a term and press enter, blank line exits.\n", path)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := scanner.Text()
		if line == "" {
			break
		}
		s.SetQuery(line)
	}
	// Let an in-flight debounce window settle before tearing down.
	time.Sleep(cfg.SearchDebounce + 100*time.Millisecond)
	return scanner.Err()
}

func buildWatchCommand(opts *rootOptions) *cobra.Command {
	var interval time.Duration
	var plain bool

	cmd := &cobra.Command{
		Use:   "watch <path>",
		Short: "Poll a resource and show changes",
		Long: `Fetches on an interval through the query cache. The default view refreshes
in place; --plain prints each new result to stdout instead. Serves /metrics
when METRICS_PORT is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				return fmt.Errorf("--interval must be positive, got %s", interval)
			}
			if plain {
				return runWatchPlain(cmd, opts, args[0], interval)
			}
			return runWatchTUI(cmd, opts, args[0], interval)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "polling interval")
	cmd.Flags().BoolVar(&plain, "plain", false, "print each new result to stdout instead of the refreshing view")

	return cmd
}

// watchFetch builds the poll fetch both watch modes share.
func watchFetch(c *client.Client, opts *rootOptions, path string) func(ctx context.Context) (json.RawMessage, error) {
	return func(ctx context.Context) (json.RawMessage, error) {
		res, err := c.Get(ctx, path, opts.requestOptions())
		if err != nil {
			return nil, err
		}
		return json.RawMessage(res.Body), nil
	}
}

func runWatchTUI(cmd *cobra.Command, opts *rootOptions, path string, interval time.Duration) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	c := opts.buildClient(cfg)

	if cfg.MetricsEnabled() {
		go func() {
			slog.Info("Metrics listening", "port", cfg.MetricsPort)
			if err := metrics.StartServer(cfg.MetricsPort); err != nil {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	store := cache.New(cfg.CacheTTL)
	store.Instrument(metrics.NewCollector(nil))
	defer store.Close()

	feed := tui.NewFeed[query.Snapshot[json.RawMessage]]()

	engine := query.NewEngine(query.Options[json.RawMessage]{
		Key:          path,
		Store:        store,
		TTL:          cfg.CacheTTL,
		PollInterval: interval,
		Fetch:        watchFetch(c, opts, path),
		OnChange: func(snap query.Snapshot[json.RawMessage]) {
			feed.Push(snap)
		},
	})
	defer engine.Close()

	// Start blocks on the first fetch; run it aside so the screen comes up
	// on the loading state instead of a frozen terminal.
	go engine.Start()

	p := tea.NewProgram(
		tui.NewWatch(path, interval, feed, engine.Refetch),
		tea.WithAltScreen(),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()),
	)
	_, err = p.Run()
	return err
}

func runWatchPlain(cmd *cobra.Command, opts *rootOptions, path string, interval time.Duration) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	c := opts.buildClient(cfg)

	ctx, stop := signalContext()
	defer stop()

	if cfg.MetricsEnabled() {
		go func() {
			slog.Info("Metrics listening", "port", cfg.MetricsPort)
			if err := metrics.StartServer(cfg.MetricsPort); err != nil {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	store := cache.New(cfg.CacheTTL)
	store.Instrument(metrics.NewCollector(nil))
	defer store.Close()

	printer := &snapshotPrinter{out: cmd.OutOrStdout()}

	engine := query.NewEngine(query.Options[json.RawMessage]{
		Key:          path,
		Store:        store,
		TTL:          cfg.CacheTTL,
		PollInterval: interval,
		Fetch:        watchFetch(c, opts, path),
		OnChange: func(snap query.Snapshot[json.RawMessage]) {
			printer.print(snap)
		},
	})
	defer engine.Close()

	slog.Info("Watching", "path", path, "interval", interval)
	engine.Start()

	<-ctx.Done()
	slog.Info("Stopping watch")
	return nil
}

// snapshotPrinter prints each newly fetched payload exactly once and each
// failure exactly once, keyed by fetch time and error identity.
type snapshotPrinter struct {
	mu      sync.Mutex
	out     io.Writer
	lastAt  time.Time
	lastErr *apierror.Error
}

func (p *snapshotPrinter) print(snap query.Snapshot[json.RawMessage]) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if snap.Err != nil && snap.Err != p.lastErr {
		p.lastErr = snap.Err
		slog.Error("Fetch failed", "kind", snap.Err.Kind, "error", snap.Err)
	}
	if snap.Data != nil && snap.LastFetchedAt.After(p.lastAt) {
		p.lastAt = snap.LastFetchedAt
		printJSON(p.out, *snap.Data)
	}
}

func printJSON(w io.Writer, body []byte) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err != nil {
		fmt.Fprintf(w, "%s\n", body)
		return
	}
	fmt.Fprintf(w, "%s\n", buf.String())
}
