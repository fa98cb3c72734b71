package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsrekognition "github.com/aws/aws-sdk-go-v2/service/rekognition"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dayfusion/liveness-gateway/internal/dotenv"
	"github.com/dayfusion/liveness-gateway/pkg/gateway/config"
	gatewayserver "github.com/dayfusion/liveness-gateway/pkg/gateway/server"
	"github.com/dayfusion/liveness-gateway/pkg/verify/history"
	"github.com/dayfusion/liveness-gateway/pkg/verify/providers/docanalyzer"
	"github.com/dayfusion/liveness-gateway/pkg/verify/providers/rekognition"
	"github.com/dayfusion/liveness-gateway/pkg/verify/providers/s3store"
)

type gatewayDeps struct {
	loadConfig   func() (config.Config, error)
	buildOptions func(ctx context.Context, cfg config.Config, logger *slog.Logger) (gatewayserver.Options, func(), error)
	newGateway   func(config.Config, gatewayserver.Options, *slog.Logger) *gatewayserver.Server
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultGatewayDeps() gatewayDeps {
	return gatewayDeps{
		loadConfig:   config.LoadFromEnv,
		buildOptions: buildOptions,
		newGateway:   gatewayserver.New,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

// buildOptions constructs the production collaborators: Rekognition for
// scoring, face matching and remote liveness, S3 for artifacts, plus the
// optional analyzer backend and sqlite history archive.
func buildOptions(ctx context.Context, cfg config.Config, logger *slog.Logger) (gatewayserver.Options, func(), error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return gatewayserver.Options{}, nil, fmt.Errorf("load aws config: %w", err)
	}

	rek := rekognition.New(awsrekognition.NewFromConfig(awsCfg), logger)
	store := s3store.New(awss3.NewFromConfig(awsCfg), cfg.S3Bucket, cfg.S3Prefix, logger)

	opts := gatewayserver.Options{
		Scorer:   rek,
		Uploader: store,
		Liveness: rek,
		Matcher:  rek,
	}

	if analyzer := docanalyzer.New(cfg.AnalyzerBaseURL, cfg.AnalyzerAPIKey); analyzer.Configured() {
		opts.Analyzer = analyzer
	}

	cleanup := func() {}
	if cfg.HistoryPath != "" {
		archive, err := history.Open(cfg.HistoryPath)
		if err != nil {
			return gatewayserver.Options{}, nil, fmt.Errorf("open history archive: %w", err)
		}
		opts.History = archive
		cleanup = func() { _ = archive.Close() }
	}

	return opts, cleanup, nil
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}
}

func runGateway(ctx context.Context, logger *slog.Logger, deps gatewayDeps) error {
	if deps.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
	}
	if deps.buildOptions == nil {
		return errors.New("missing buildOptions dependency")
	}
	if deps.newGateway == nil {
		return errors.New("missing newGateway dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	opts, cleanup, err := deps.buildOptions(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build collaborators: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	gw := deps.newGateway(cfg, opts, logger)
	httpSrv := buildHTTPServer(cfg, gw.Handler())

	logger.Info("starting gateway",
		"addr", cfg.Addr,
		"auth_mode", cfg.AuthMode,
		"require_remote", cfg.RequireRemote,
		"history_enabled", cfg.HistoryPath != "")

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	gw.SetDraining(true)
	if warned := gw.WarnSessions("draining", "gateway is shutting down"); warned > 0 {
		logger.Info("warned live sessions", "count", warned)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer waitCancel()
	if !gw.WaitSessions(waitCtx) {
		if canceled := gw.CancelSessions(); canceled > 0 {
			logger.Warn("canceled live sessions at shutdown", "count", canceled)
		}
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("gateway stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps gatewayDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if err := dotenv.LoadFile(".env"); err != nil {
		fmt.Fprintf(stderr, "liveness-gateway: %v\n", err)
		return 1
	}

	if err := runGateway(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "liveness-gateway: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultGatewayDeps()))
}
