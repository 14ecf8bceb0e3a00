package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/InvariantDynamics/blog-automation-console/core/pkg/console"
	clog "github.com/InvariantDynamics/blog-automation-console/core/pkg/log"
	"github.com/InvariantDynamics/blog-automation-console/core/pkg/tui"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	configPath := flag.String("config", "", "path to a YAML config file (defaults to $BLOGCONSOLE_CONFIG)")
	headless := flag.Bool("headless", false, "submit once and print the log stream instead of starting the terminal UI")
	sheetID := flag.String("sheet", "", "Google Sheet ID, overrides the configured default")
	flag.Parse()

	cfg, err := console.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		return 1
	}

	logOut, closeLog, err := logOutput(cfg.LogPath, *headless)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
		return 1
	}
	defer closeLog()
	clog.Configure(clog.Config{Level: cfg.LogLevel, Output: logOut})

	return run(cfg, *headless, *sheetID)
}

func run(cfg console.Config, headless bool, sheetID string) int {
	logger := clog.WithComponent("main")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var registry *prometheus.Registry
	var metrics *console.Metrics
	if cfg.MetricsAddr != "" {
		registry = prometheus.NewRegistry()
		metrics = console.NewMetrics(registry)
	}

	client, err := cfg.Client(metrics)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build client: %v\n", err)
		return 1
	}
	transport, err := cfg.NewTransport(client)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build transport: %v\n", err)
		return 1
	}

	form := cfg.Form.Form()
	if sheetID != "" {
		form.SpreadsheetID = sheetID
	}
	form.WordPressPassword = os.Getenv("BLOGCONSOLE_WORDPRESS_PASSWORD")

	opts := console.Options{
		Client:     client,
		Transport:  transport,
		Metrics:    metrics,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
	}
	if headless {
		opts.OnFragment = printFragment(os.Stdout)
	}
	c, err := console.New(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize console: %v\n", err)
		return 1
	}
	defer c.Close()

	logger.Info().
		Str(clog.FieldURL, cfg.BaseURL).
		Str(clog.FieldTransport, transport.Name()).
		Str("auth", string(cfg.Auth.Mode)).
		Str("metrics", displayOrNone(cfg.MetricsAddr)).
		Bool("headless", headless).
		Msg("blogconsole starting")

	g, gctx := errgroup.WithContext(ctx)
	if registry != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics listener: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	exitCode := 0
	g.Go(func() error {
		defer stop()
		if headless {
			exitCode = runHeadless(gctx, c, form)
			return nil
		}
		return runTUI(gctx, tui.NewModel(c, form))
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("blogconsole exited with error")
		fmt.Fprintf(os.Stderr, "blogconsole: %v\n", err)
		return 1
	}
	return exitCode
}

func runTUI(ctx context.Context, model tui.Model) error {
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	_, err := program.Run()
	if err != nil && errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("tui exited with error: %w", err)
	}
	return nil
}

func logOutput(path string, headless bool) (io.Writer, func(), error) {
	if path != "" {
		f, err := clog.OpenFile(path)
		if err != nil {
			return nil, func() {}, err
		}
		return f, func() { _ = f.Close() }, nil
	}
	if headless {
		return os.Stderr, func() {}, nil
	}
	return io.Discard, func() {}, nil
}

func displayOrNone(value string) string {
	if value == "" {
		return "<none>"
	}
	return value
}
