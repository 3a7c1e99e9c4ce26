package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"mailtriage/internal/checkpoint"
	"mailtriage/internal/config"
	"mailtriage/internal/model"
	"mailtriage/internal/provider"
	"mailtriage/internal/provider/gmailprov"
	"mailtriage/internal/provider/imapprov"
	"mailtriage/internal/provider/outlookprov"
	"mailtriage/internal/rules"
	"mailtriage/internal/runner"
	"mailtriage/pkg/db"
	"mailtriage/pkg/logger"
	"mailtriage/pkg/mq"
	"mailtriage/pkg/redisclient"
	"mailtriage/pkg/util"
)

const usage = `Usage: triage <command> [flags]

Commands:
  label     classify the inbox and apply labels, folders and stars
  summary   classify without applying anything and print a report
  check     verify provider connectivity and state store health

Run "triage <command> -h" for command flags.`

func main() {
	// Missing .env is fine; real deployments use the environment.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "label":
		err = runLabel(os.Args[2:])
	case "summary":
		err = runSummary(os.Args[2:])
	case "check":
		err = runCheck(os.Args[2:])
	case "-h", "--help", "help":
		fmt.Println(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n%s\n", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type commonFlags struct {
	configPath string
	provider   string
	verbose    bool
}

func addCommon(fs *flag.FlagSet) *commonFlags {
	cf := &commonFlags{}
	fs.StringVar(&cf.configPath, "config", "", "path to config file (YAML)")
	fs.StringVar(&cf.provider, "provider", "", "mail provider: gmail, imap or outlook")
	fs.BoolVar(&cf.verbose, "verbose", false, "debug logging")
	return cf
}

func runLabel(args []string) error {
	fs := flag.NewFlagSet("label", flag.ExitOnError)
	cf := addCommon(fs)
	query := fs.String("query", "", "provider-native search query")
	limit := fs.Int("limit", 0, "max messages to process this run (0 = all)")
	job := fs.String("job", "inbox", "checkpoint job name")
	dryRun := fs.Bool("dry-run", false, "classify and log without writing anything")
	vipOnly := fs.Bool("vip-only", false, "only process messages from VIP senders")
	removeLabel := fs.String("remove-label", "", "retire this label from re-triaged messages")
	resetState := fs.Bool("reset", false, "discard the job's checkpoint and start over")
	fs.Parse(args)

	cfg, log, err := loadConfig(cf)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, cancel := signalContext(log)
	defer cancel()

	if cfg.Metrics.Addr != "" {
		go serveMetrics(cfg.Metrics.Addr, log)
	}

	r, prov, store, cleanup, err := buildRunner(ctx, cfg, cf, log)
	if err != nil {
		return err
	}
	defer cleanup()

	opts := runner.Options{
		Job:         *job,
		RunID:       uuid.NewString(),
		Query:       resolveQuery(cfg, prov.Name(), *query),
		Limit:       *limit,
		PageSize:    cfg.BatchSize,
		DryRun:      *dryRun || cfg.DryRun,
		VIPOnly:     *vipOnly,
		RemoveLabel: *removeLabel,
	}
	runLog := logger.WithRun(log, opts.RunID, prov.Name(), opts.Job)

	if *resetState {
		key := checkpoint.Key{Provider: prov.Name(), Job: opts.Job}
		if err := store.Clear(ctx, key); err != nil {
			return fmt.Errorf("failed to reset checkpoint: %w", err)
		}
		runLog.Info("Checkpoint cleared")
	}

	result, err := r.Run(ctx, opts)
	printResult(result, opts.DryRun)
	return err
}

func runSummary(args []string) error {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	cf := addCommon(fs)
	query := fs.String("query", "", "provider-native search query")
	limit := fs.Int("limit", 500, "max messages to scan (0 = all)")
	fs.Parse(args)

	cfg, log, err := loadConfig(cf)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, cancel := signalContext(log)
	defer cancel()

	r, prov, _, cleanup, err := buildRunner(ctx, cfg, cf, log)
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := r.Summarize(ctx, resolveQuery(cfg, prov.Name(), *query), *limit, cfg.BatchSize)
	if err != nil {
		return err
	}
	fmt.Print(report.Render(cfg.BuildTiers()))
	return nil
}

func runCheck(args []string) error {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	cf := addCommon(fs)
	fs.Parse(args)

	cfg, log, err := loadConfig(cf)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	names := enabledProviders(cfg, cf.provider)
	if len(names) == 0 {
		return fmt.Errorf("no providers enabled")
	}

	failed := 0
	for _, name := range names {
		if err := checkProvider(ctx, cfg, name, log); err != nil {
			fmt.Printf("%s: %v\n", name, err)
			failed++
			continue
		}
		fmt.Printf("%s: ok\n", name)
	}

	store, cleanup, err := buildStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("state store: %w", err)
	}
	defer cleanup()
	if _, err := store.Load(ctx, checkpoint.Key{Provider: names[0], Job: "inbox"}); err != nil {
		return fmt.Errorf("state store read: %w", err)
	}
	fmt.Printf("state store (%s): ok\n", cfg.State.Backend)

	if failed > 0 {
		return fmt.Errorf("%d of %d providers unhealthy", failed, len(names))
	}
	return nil
}

// enabledProviders resolves the check targets: an explicit -provider flag
// names one, otherwise every provider enabled in the config.
func enabledProviders(cfg *config.Config, override string) []string {
	if override != "" {
		return []string{override}
	}
	var names []string
	if cfg.Gmail.Enabled {
		names = append(names, "gmail")
	}
	if cfg.IMAP.Enabled {
		names = append(names, "imap")
	}
	if cfg.Outlook.Enabled {
		names = append(names, "outlook")
	}
	return names
}

func checkProvider(ctx context.Context, cfg *config.Config, name string, log *zap.Logger) error {
	prov, err := buildProvider(cfg, name, log)
	if err != nil {
		return err
	}
	if err := prov.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer prov.Close()
	if err := prov.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	return nil
}

func loadConfig(cf *commonFlags) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cf.configPath)
	if err != nil {
		return nil, nil, err
	}
	log := logger.New(cf.verbose || cfg.Verbose)
	return cfg, log, nil
}

// buildRunner assembles the provider, rule engine, state store and the
// optional redis and rabbitmq attachments into a ready Runner.
func buildRunner(ctx context.Context, cfg *config.Config, cf *commonFlags, log *zap.Logger) (*runner.Runner, provider.Provider, checkpoint.Store, func(), error) {
	table, err := cfg.BuildTable()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("invalid rules: %w", err)
	}
	vips, err := cfg.BuildRegistry()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("invalid vip senders: %w", err)
	}

	prov, err := buildProvider(cfg, cf.provider, log)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if err := prov.Connect(ctx); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("provider connect: %w", err)
	}

	store, storeCleanup, err := buildStore(ctx, cfg, log)
	if err != nil {
		prov.Close()
		return nil, nil, nil, nil, err
	}

	r := runner.New(prov, rules.NewClassifier(table, vips), cfg.BuildEscalator(), cfg.BuildTiers(), store, log)

	var pub *mq.Publisher
	if cfg.MQ.URL != "" {
		pub, err = mq.NewPublisher(cfg.MQ.URL)
		if err != nil {
			// The mailbox work matters more than the event stream.
			log.Warn("RabbitMQ unavailable, events disabled", zap.Error(err))
		} else {
			r.WithPublisher(pub)
		}
	}

	if cfg.Redis.Addr != "" {
		rdb, err := redisclient.New(cfg.Redis)
		if err != nil {
			log.Warn("Redis unavailable, dedup disabled", zap.Error(err))
		} else {
			r.WithDeduper(util.NewDeduper(rdb, 30*24*time.Hour, log))
		}
	}

	cleanup := func() {
		if pub != nil {
			pub.Close()
		}
		prov.Close()
		storeCleanup()
	}
	return r, prov, store, cleanup, nil
}

func buildProvider(cfg *config.Config, override string, log *zap.Logger) (provider.Provider, error) {
	name := cfg.DefaultProvider
	if override != "" {
		name = override
	}
	switch name {
	case "gmail":
		return gmailprov.New(gmailprov.Config{
			ClientID:     cfg.Gmail.ClientID,
			ClientSecret: cfg.Gmail.ClientSecret,
			AccessToken:  cfg.Gmail.AccessToken,
			RefreshToken: cfg.Gmail.RefreshToken,
		}, log), nil
	case "imap":
		return imapprov.New(imapprov.Config{
			Host:          cfg.IMAP.Host,
			Port:          cfg.IMAP.Port,
			Username:      cfg.IMAP.User,
			Password:      cfg.IMAP.Password,
			Mailbox:       cfg.IMAP.Mailbox,
			ArchiveFolder: cfg.IMAP.ArchiveFolder,
			StartTLS:      cfg.IMAP.StartTLS,
		}, log), nil
	case "outlook":
		return outlookprov.New(outlookprov.Config{
			AccessToken: cfg.Outlook.AccessToken,
			BaseURL:     cfg.Outlook.BaseURL,
		}, log), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (want gmail, imap or outlook)", name)
	}
}

// resolveQuery falls back to the provider's configured default listing
// query when no -query flag was given.
func resolveQuery(cfg *config.Config, providerName, flagQuery string) string {
	if flagQuery != "" {
		return flagQuery
	}
	if providerName == "gmail" {
		return cfg.Gmail.DefaultQuery
	}
	return ""
}

func buildStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (checkpoint.Store, func(), error) {
	switch cfg.State.Backend {
	case "", "file":
		store, err := checkpoint.NewFileStore(cfg.State.Dir, log)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	case "postgres":
		pool, err := db.NewConnection(cfg.DB, log)
		if err != nil {
			return nil, nil, err
		}
		store, err := checkpoint.NewPostgresStore(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown state backend %q", cfg.State.Backend)
	}
}

func signalContext(log *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info("Shutting down, finishing current page", zap.String("signal", sig.String()))
		cancel()
	}()
	return ctx, cancel
}

func serveMetrics(addr string, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Info("Serving metrics", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warn("Metrics server stopped", zap.Error(err))
	}
}

func printResult(result *model.ProcessingResult, dryRun bool) {
	if result == nil {
		return
	}
	mode := ""
	if dryRun {
		mode = " (dry run)"
	}
	fmt.Printf("Processed %d messages%s: %d applied, %d failed, %d skipped\n",
		result.Processed, mode, result.Succeeded, result.Failed, result.Skipped)
	for label, n := range result.LabelCounts {
		fmt.Printf("  %-24s %d\n", label, n)
	}
}
