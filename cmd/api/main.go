package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/app"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/config"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/logging"
)

func main() {
	configPath := getEnv("CONFIG_PATH", "/app/config/config.yaml")
	appConfig, err := config.LoadConfig(configPath)
	if err != nil {
		logging.Logger.Warnf("Failed to load config from %s: %v. Using defaults.", configPath, err)
		appConfig = config.DefaultConfig()
	}
	appConfig.ApplyEnv()
	logging.InitLogger(appConfig.Logging)
	log := logging.ForComponent("api")
	log.Infof("Loaded configuration from %s", configPath)

	if appConfig.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	a, err := app.NewApp(appConfig)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize application")
	}
	defer a.Close()

	appScheduler, err := a.NewScheduler()
	if err != nil {
		log.WithError(err).Fatal("Failed to configure scheduler")
	}
	appScheduler.Start()
	defer appScheduler.Stop()

	srv := &http.Server{
		Addr:              ":" + appConfig.Server.Port,
		Handler:           a.Router(appScheduler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("Server starting on port %s", appConfig.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server forced to shut down")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
