package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/stamp-dispenser/internal/application"
	"github.com/eugenenazirov/stamp-dispenser/internal/config"
	"github.com/eugenenazirov/stamp-dispenser/internal/dispenser"
	"github.com/eugenenazirov/stamp-dispenser/internal/logging"
	"github.com/eugenenazirov/stamp-dispenser/internal/storage"
)

var signalNotify = signal.Notify

func main() {
	kingpinApp := kingpin.New("stamp-dispenser", "Stamp Dispenser - determines the fewest stamps needed to fill a postage request")
	configFile := kingpinApp.Flag("config", "Path to YAML configuration file").String()
	denominationsStr := kingpinApp.Flag("denominations", "Comma-separated denominations, must include 1").String()
	logLevel := kingpinApp.Flag("log-level", "Log level (debug, info, warn, error)").String()

	serveCmd := kingpinApp.Command("serve", "Run the HTTP API").Default()
	port := serveCmd.Flag("port", "HTTP port exposed by the service").String()
	maxRequestFlag := serveCmd.Flag("max-request", "Largest request accepted by the API").Default("0").Int()
	rateLimitRPSFlag := serveCmd.Flag("rate-limit-rps", "Requests per second allowed (set 0 to disable)").Default("-1").Float64()
	rateLimitBurstFlag := serveCmd.Flag("rate-limit-burst", "Burst capacity for rate limiter (set 0 to disable)").Default("-1").Int()
	redisAddr := serveCmd.Flag("redis-addr", "Redis address for the result cache (in-memory cache when empty)").String()

	dispenseCmd := kingpinApp.Command("dispense", "Print the fewest stamps for a single request as JSON")
	request := dispenseCmd.Arg("request", "Total value of the stamps to dispense").Required().Int()

	checkCmd := kingpinApp.Command("check", "Run the built-in self-check and exit")

	command := kingpin.MustParse(kingpinApp.Parse(os.Args[1:]))

	// check runs without loading configuration.
	if command == checkCmd.FullCommand() {
		os.Exit(checkExitCode(*logLevel))
	}

	overrides := &config.CLIOverrides{
		ConfigFile: *configFile,
	}

	if *denominationsStr != "" {
		overrides.DenominationsStr = denominationsStr
	}

	if *logLevel != "" {
		overrides.LogLevel = logLevel
	}

	if *port != "" {
		overrides.Port = port
	}

	if *maxRequestFlag > 0 {
		overrides.MaxRequest = maxRequestFlag
	}

	if *rateLimitRPSFlag >= 0 {
		overrides.RateLimitRPS = rateLimitRPSFlag
	}

	if *rateLimitBurstFlag >= 0 {
		overrides.RateLimitBurst = rateLimitBurstFlag
	}

	if *redisAddr != "" {
		overrides.RedisAddr = redisAddr
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	switch command {
	case dispenseCmd.FullCommand():
		if err := runDispense(os.Stdout, cfg.InitialDenominations, *request, cfg.MaxRequest); err != nil {
			logger.Fatal("dispense failed", zap.Int("request", *request), zap.Error(err))
		}
	default:
		runServer(cfg, logger)
	}
}

func runServer(cfg config.Config, logger *zap.Logger) {
	app, err := application.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("failed to release resources", zap.Error(err))
		}
	}()

	if err := app.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	shutdown(app.Server(), cfg.ShutdownGracePeriod, logger)
}

// checkExitCode runs the self-check with a logger at logLevel and returns the process exit status.
func checkExitCode(logLevel string) int {
	logger, err := logging.New(logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return 1
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := runCheck(logger); err != nil {
		return 1
	}
	return 0
}

func runCheck(logger *zap.Logger) error {
	if err := dispenser.SelfCheck(); err != nil {
		logger.Error("self-check failed", zap.Error(err))
		return err
	}
	logger.Info("self-check passed")
	return nil
}

// runDispense solves one request and writes the result to w as JSON.
// Requests above maxRequest are rejected, as the API does.
func runDispense(w io.Writer, denominations []int, request, maxRequest int) error {
	if request > maxRequest {
		return fmt.Errorf("%w: %d > %d", dispenser.ErrRequestTooLarge, request, maxRequest)
	}
	normalized, err := storage.Normalize(denominations)
	if err != nil {
		return err
	}
	d, err := dispenser.New(normalized)
	if err != nil {
		return err
	}
	result, err := d.Dispense(request)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func shutdown(server *http.Server, timeout time.Duration, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}
