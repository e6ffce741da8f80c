package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	zaplogfmt "github.com/sykesm/zap-logfmt"
	"github.com/thecodeteam/goodbye"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/simplesurance/tapmerge/internal/autosquash"
	"github.com/simplesurance/tapmerge/internal/cfg"
	"github.com/simplesurance/tapmerge/internal/git"
	"github.com/simplesurance/tapmerge/internal/githubclt"
	"github.com/simplesurance/tapmerge/internal/logfields"
	"github.com/simplesurance/tapmerge/internal/manifest"
	"github.com/simplesurance/tapmerge/internal/mergebot"
	github_prov "github.com/simplesurance/tapmerge/internal/provider/github"
)

const appName = "tapmerge"

var logger *zap.Logger

// Version is set via a ldflag on compilation
var Version = "unknown"

const EventChannelBufferSize = 1024

func exitOnErr(msg string, err error) {
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, "ERROR:", msg+", error:", err.Error())
	os.Exit(1)
}

func panicHandler() {
	if r := recover(); r != nil {
		logger.Info(
			"panic caught, terminating gracefully",
			zap.String("panic", fmt.Sprintf("%v", r)),
			zap.StackSkip("stacktrace", 1),
		)

		ctx, cancelFn := context.WithTimeout(context.Background(), time.Minute)
		defer cancelFn()

		goodbye.Exit(ctx, 1)
	}
}

func startHTTPServer(listenAddr string, mux *http.ServeMux) {
	httpServer := http.Server{
		Addr:    listenAddr,
		Handler: mux,
	}

	goodbye.Register(func(context.Context, os.Signal) {
		const shutdownTimeout = 30 * time.Second
		ctx, cancelFn := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelFn()

		logger.Debug(
			"terminating http server",
			logfields.Event("http_server_terminating"),
			zap.Duration("shutdown_timeout", shutdownTimeout),
		)

		err := httpServer.Shutdown(ctx)
		if err != nil {
			logger.Warn(
				"shutting down http server failed",
				logfields.Event("http_server_termination_failed"),
				zap.Error(err),
			)
		}
	})

	go func() {
		defer panicHandler()

		logger.Info(
			"http server started",
			logfields.Event("http_server_started"),
			zap.String("listenAddr", listenAddr),
		)

		err := httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("http server terminated", logfields.Event("http_server_terminated"))
			return
		}

		logger.Fatal(
			"http server terminated unexpectedly",
			logfields.Event("http_server_terminated_unexpectedly"),
			zap.Error(err),
		)
	}()
}

type arguments struct {
	Verbose     *bool
	ConfigFile  *string
	ShowVersion *bool
	PullRequest *int
	Repository  *string
}

var args arguments

const defConfigFile = "/etc/tapmerge/config.toml"

func mustParseCommandlineParams() {
	args = arguments{
		Verbose: pflag.BoolP(
			"verbose",
			"v",
			false,
			"enable verbose logging",
		),
		ConfigFile: pflag.StringP(
			"cfg-file",
			"c",
			defConfigFile,
			"path to the tapmerge configuration file",
		),
		ShowVersion: pflag.Bool(
			"version",
			false,
			"print the version and exit",
		),
		PullRequest: pflag.IntP(
			"pull-request",
			"p",
			0,
			"merge a single pull request and exit instead of running as webhook service",
		),
		Repository: pflag.String(
			"repository",
			"",
			"owner/name of the repository of --pull-request, defaults to the first configured repository",
		),
	}

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTION]\nMerge pull requests into a manifest repository, one commit per changed file.\n", appName)
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		pflag.PrintDefaults()
	}

	pflag.Parse()
}

func mustParseCfg() *cfg.Config {
	// we use exitOnErr in this function instead of logger.Fatal() because
	// the logger is not initialized yet

	file, err := os.Open(*args.ConfigFile)
	exitOnErr("could not open configuration file", err)
	defer file.Close()

	config, err := cfg.Load(file)
	if err != nil {
		exitOnErr(fmt.Sprintf("could not load configuration file: %s", *args.ConfigFile), err)
	}

	return config
}

func initLogFmtLogger(config *cfg.Config, logLevel zapcore.Level) *zap.Logger {
	cfg := zapEncoderConfig(config)

	logger := zap.New(zapcore.NewCore(
		zaplogfmt.NewEncoder(cfg),
		os.Stdout,
		logLevel),
	)

	return logger
}

func zapEncoderConfig(config *cfg.Config) zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()

	cfg.LevelKey = "loglevel"
	cfg.TimeKey = config.LogTimeKey
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.StringDurationEncoder

	return cfg
}

func mustInitZapFormatLogger(config *cfg.Config, logLevel zapcore.Level) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Sampling = nil
	cfg.EncoderConfig = zapEncoderConfig(config)
	cfg.OutputPaths = []string{"stdout"}
	cfg.Encoding = config.LogFormat
	cfg.Level = zap.NewAtomicLevelAt(logLevel)

	logger, err := cfg.Build()
	exitOnErr("could not initialize logger", err)

	return logger
}

func mustInitLogger(config *cfg.Config) {
	var logLevel zapcore.Level
	if *args.Verbose {
		logLevel = zapcore.DebugLevel
	} else {
		if err := (&logLevel).Set(config.LogLevel); err != nil {
			fmt.Fprintf(os.Stderr, "can not set log level to %q: %s\n", config.LogLevel, err)
			os.Exit(2)
		}
	}

	switch config.LogFormat {
	case "logfmt":
		logger = initLogFmtLogger(config, logLevel)
	case "console", "json":
		logger = mustInitZapFormatLogger(config, logLevel)
	default:
		fmt.Fprintf(os.Stderr, "unsupported log-format argument: %q\n", config.LogFormat)
		os.Exit(2)
	}

	logger = logger.Named("main")
	zap.ReplaceGlobals(logger)

	goodbye.Register(func(context.Context, os.Signal) {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "flushing logs failed: %s\n", err)
		}
	})
}

func hide(in string) string {
	if in == "" {
		return in
	}

	return "**hidden**"
}

func cfgRepositories(config *cfg.Config) []mergebot.Repository {
	result := make([]mergebot.Repository, 0, len(config.Repositories))

	for _, repo := range config.Repositories {
		result = append(result, mergebot.Repository{
			Owner:          repo.Owner,
			RepositoryName: repo.RepositoryName,
		})
	}

	return result
}

func oneShotRepository(config *cfg.Config) mergebot.Repository {
	if *args.Repository == "" {
		if len(config.Repositories) == 0 {
			exitOnErr("can not determine repository", errors.New("--repository is unset and the config file defines no repository"))
		}

		return mergebot.Repository{
			Owner:          config.Repositories[0].Owner,
			RepositoryName: config.Repositories[0].RepositoryName,
		}
	}

	owner, name, found := strings.Cut(*args.Repository, "/")
	if !found || owner == "" || name == "" {
		exitOnErr("could not parse --repository argument", fmt.Errorf("expected owner/name, got: %q", *args.Repository))
	}

	return mergebot.Repository{Owner: owner, RepositoryName: name}
}

func main() {
	defer panicHandler()

	defer goodbye.Exit(context.Background(), 1)
	goodbye.Notify(context.Background())

	mustParseCommandlineParams()

	if *args.ShowVersion {
		fmt.Printf("%s %s\n", appName, Version)
		os.Exit(0) // nolint:gocritic // defer functions won't run
	}

	config := mustParseCfg()

	mustInitLogger(config)

	githubClient := githubclt.New(config.GithubAPIToken)

	gitClient := git.New(
		config.Git.Directory,
		git.WithCommitter(config.Git.CommitterName, config.Git.CommitterEmail),
	)

	trigger, err := mergebot.NewTrigger(config.Merge.FilterQuery)
	exitOnErr(fmt.Sprintf("could not parse filter query from configuration file: %s", *args.ConfigFile), err)

	logger.Info(
		"loaded cfg file",
		logfields.Event("cfg_loaded"),
		zap.String("cfg_file", *args.ConfigFile),
		zap.String("http_server_listen_addr", config.HTTPListenAddr),
		zap.String("github_webhook_endpoint", config.HTTPGithubWebhookEndpoint),
		zap.String("github_webhook_secret", hide(config.GithubWebHookSecret)),
		zap.String("github_api_token", hide(config.GithubAPIToken)),
		zap.String("git_directory", config.Git.Directory),
		zap.String("trigger_label", config.Merge.TriggerLabel),
		zap.String("log_format", config.LogFormat),
		zap.String("log_time_key", config.LogTimeKey),
		zap.String("log_level", config.LogLevel),
	)

	goodbye.Register(func(_ context.Context, sig os.Signal) {
		logger.Info(fmt.Sprintf("terminating, received signal %s", sig.String()))
	})

	eventChan := make(chan *github_prov.Event, EventChannelBufferSize)

	bot := mergebot.New(&mergebot.Config{
		GithubClient: githubClient,
		GitClient:    gitClient,
		Resolver:     manifest.NewResolver(),
		EventChan:    eventChan,
		Retryer:      mergebot.NewRetryer(),
		Repositories: cfgRepositories(config),
		TriggerLabel: config.Merge.TriggerLabel,
		Trigger:      trigger,
		Remote:       config.Git.Remote,
		Squash: autosquash.Config{
			FormulaDir:               config.Merge.FormulaDir,
			CaskDir:                  config.Merge.CaskDir,
			Reason:                   config.Merge.Reason,
			ResolveConflictsManually: config.Merge.ResolveConflictsManually,
		},
	})

	if *args.PullRequest > 0 {
		repo := oneShotRepository(config)

		err := bot.RunMerge(context.Background(), repo, *args.PullRequest)
		exitOnErr(fmt.Sprintf("merging pull request %d failed", *args.PullRequest), err)

		goodbye.Exit(context.Background(), 0)
		return
	}

	if config.HTTPListenAddr == "" {
		fmt.Fprintln(os.Stderr, "http_server_listen_addr must be defined in the config file")
		os.Exit(1)
	}

	if len(config.Repositories) == 0 {
		fmt.Fprintf(os.Stderr, "ERROR: config file %s does not define any repositories, nothing to do\n", *args.ConfigFile)
		os.Exit(1)
	}

	mux := http.NewServeMux()

	gh := github_prov.New(
		[]chan<- *github_prov.Event{eventChan},
		github_prov.WithPayloadSecret(config.GithubWebHookSecret),
	)

	mux.HandleFunc(config.HTTPGithubWebhookEndpoint, gh.HTTPHandler)
	logger.Info(
		"registered github webhook event http endpoint",
		logfields.Event("github_http_handler_registered"),
		zap.String("endpoint", config.HTTPGithubWebhookEndpoint),
	)

	metricsEndpoint := config.HTTPMetricsEndpoint
	if metricsEndpoint == "" {
		metricsEndpoint = "/metrics"
	}

	mux.Handle(metricsEndpoint, promhttp.Handler())
	logger.Info(
		"registered metrics http endpoint",
		logfields.Event("metrics_http_handler_registered"),
		zap.String("endpoint", metricsEndpoint),
	)

	bot.Start()

	startHTTPServer(config.HTTPListenAddr, mux)

	select {} // TODO: refactor this, allow clean shutdown
}
