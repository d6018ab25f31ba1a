package logger

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"time"

	"github.com/mazungumzo-chat-go/internal/config"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger creates a new logger instance
func NewLogger(cfg *config.LoggingConfig) (*logrus.Logger, error) {
	logger := logrus.New()

	// Set log level
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)

	// Set formatter
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
			FullTimestamp:   true,
		})
	}

	// Set output
	switch cfg.Output {
	case "stdout":
		logger.SetOutput(os.Stdout)
	case "file":
		// Create log directory if it doesn't exist
		logDir := filepath.Dir(cfg.File.Path)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, err
		}

		// Use lumberjack for log rotation
		logger.SetOutput(&lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSize, // megabytes
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAge, // days
			Compress:   true,
		})
	default:
		logger.SetOutput(os.Stdout)
	}

	return logger, nil
}

// Pseudonymizer produces short, stable aliases for user identifiers so logs
// can be correlated across restarts without carrying the raw id.
type Pseudonymizer struct {
	key []byte
}

// NewPseudonymizer creates a pseudonymizer with the given key. An empty key
// still yields deterministic aliases, just without a secret.
func NewPseudonymizer(key string) *Pseudonymizer {
	return &Pseudonymizer{key: []byte(key)}
}

// Alias returns an HMAC-SHA256 based alias, truncated to 8 hex characters.
func (p *Pseudonymizer) Alias(userID string) string {
	mac := hmac.New(sha256.New, p.key)
	mac.Write([]byte(userID))
	return hex.EncodeToString(mac.Sum(nil))[:8]
}

// WithUser adds the pseudonymized user id and platform to log entries.
func WithUser(logger *logrus.Logger, p *Pseudonymizer, userID, platform string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"user":     p.Alias(userID),
		"platform": platform,
	})
}

// LogCrisisDetection records a crisis determination. Always logged at Warn so
// interventions are visible at the default level.
func LogCrisisDetection(logger *logrus.Logger, p *Pseudonymizer, userID string, confidence float64, keywords []string) {
	logger.WithFields(logrus.Fields{
		"user":       p.Alias(userID),
		"confidence": confidence,
		"keywords":   keywords,
	}).Warn("Crisis indicators detected")
}

// LogAPICall records an outbound API call with its duration.
func LogAPICall(logger *logrus.Logger, service, endpoint, status string, duration time.Duration) {
	logger.WithFields(logrus.Fields{
		"service":     service,
		"endpoint":    endpoint,
		"status":      status,
		"duration_ms": duration.Milliseconds(),
	}).Info("API call completed")
}
