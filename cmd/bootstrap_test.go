package cmd

import (
	"testing"

	"github.com/vibast-solutions/ms-go-market-auth/config"

	"github.com/sirupsen/logrus"
)

func TestConfigureLogging(t *testing.T) {
	t.Cleanup(func() {
		logrus.SetLevel(logrus.InfoLevel)
		logrus.SetFormatter(&logrus.TextFormatter{})
	})

	cfg := &config.Config{Log: config.LogConfig{Level: "debug", Format: "json"}}
	if err := configureLogging(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if logrus.GetLevel() != logrus.DebugLevel {
		t.Fatalf("expected debug level, got %v", logrus.GetLevel())
	}
	if _, ok := logrus.StandardLogger().Formatter.(*logrus.JSONFormatter); !ok {
		t.Fatalf("expected json formatter, got %T", logrus.StandardLogger().Formatter)
	}

	if err := configureLogging(&config.Config{Log: config.LogConfig{Level: "loud", Format: "text"}}); err == nil {
		t.Fatalf("expected invalid level error")
	}
	if err := configureLogging(&config.Config{Log: config.LogConfig{Level: "info", Format: "xml"}}); err == nil {
		t.Fatalf("expected invalid format error")
	}
}
