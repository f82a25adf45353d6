package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/config"
)

// Logger is the process-wide logger
var Logger = logrus.New()

// InitLogger configures level and output format from config
func InitLogger(cfg config.LoggingConfig) {
	Logger.SetOutput(os.Stdout)

	levelStr := strings.ToLower(cfg.Level)
	if levelStr == "" {
		levelStr = "info"
	}
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		Logger.Warnf("Invalid log level '%s', defaulting to INFO", levelStr)
		level = logrus.InfoLevel
	}
	Logger.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		Logger.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	Logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

// ForComponent returns an entry tagged with the component name
func ForComponent(name string) *logrus.Entry {
	return Logger.WithField("component", name)
}
