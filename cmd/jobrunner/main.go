// Command jobrunner executes a single background job and exits.
// The exit status is non-zero when the job fails.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/app"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/config"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/logging"
)

func main() {
	configPath := flag.String("config", getEnv("CONFIG_PATH", "/app/config/config.yaml"), "path to the YAML config file")
	jobName := flag.String("job", "", "job to run: sync, commissions, payouts, cleanup, cache-purge")
	timeout := flag.Duration("timeout", 15*time.Minute, "abort the job after this long")
	flag.Parse()

	appConfig, err := config.LoadConfig(*configPath)
	if err != nil {
		logging.Logger.WithError(err).Fatal("Failed to load config")
	}
	appConfig.ApplyEnv()
	logging.InitLogger(appConfig.Logging)
	log := logging.ForComponent("jobrunner").WithField("job", *jobName)

	if *jobName == "" {
		flag.Usage()
		os.Exit(2)
	}

	a, err := app.NewApp(appConfig)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize application")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)

	start := time.Now()
	runErr := a.RunJob(ctx, *jobName)
	stop()
	cancel()
	a.Close()

	if runErr != nil {
		log.WithError(runErr).WithField("duration", time.Since(start).String()).Error("Job failed")
		os.Exit(1)
	}
	log.WithField("duration", time.Since(start).String()).Info("Job finished")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
