// Package logger configures the process-wide logrus logger from the logging
// section of the configuration.
package logger

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Setup sets the level and formatter of the standard logger. Format is
// "json" or "text".
func Setup(level, format string) error {
	return configure(logrus.StandardLogger(), level, format)
}

func configure(l *logrus.Logger, level, format string) error {
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	l.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "", "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("invalid log format %q (expected json or text)", format)
	}
	return nil
}

// Writer routes gin's own output through logrus at debug level.
func Writer() io.Writer {
	return logrus.StandardLogger().WriterLevel(logrus.DebugLevel)
}

// RequestLogger logs one line per request with the correlation id.
func RequestLogger(correlationKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := logrus.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"client":  c.ClientIP(),
			"latency": time.Since(start).String(),
		})
		if id := c.GetString(correlationKey); id != "" {
			entry = entry.WithField("correlation_id", id)
		}
		if len(c.Errors) > 0 {
			entry.WithError(c.Errors.Last()).Warn("request failed")
			return
		}
		entry.Debug("request handled")
	}
}
