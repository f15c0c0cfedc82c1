package config

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"floracore/internal/core"
)

// Logger builds a logrus logger from the log options.
func (c *Config) Logger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Log.LogrusLevel())
	if c.Log.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

// LogrusLevel maps the configured level name onto a logrus level.
func (l LogOptions) LogrusLevel() logrus.Level {
	switch l.Level {
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// NewCoreLogger adapts a logrus logger to the service logging hook.
func NewCoreLogger(log logrus.FieldLogger) core.Logger {
	return coreLogger{log: log}
}

// NewAuditRecorder adapts a logrus logger to the service audit sink,
// emitting one structured line per audited operation.
func NewAuditRecorder(log logrus.FieldLogger) core.AuditRecorder {
	return auditRecorder{log: log}
}

type auditRecorder struct {
	log logrus.FieldLogger
}

func (a auditRecorder) Record(_ context.Context, entry core.AuditEntry) {
	fields := logrus.Fields{
		"operation": entry.Operation,
		"entity":    entry.Entity,
		"action":    entry.Action,
		"status":    entry.Status,
		"duration":  entry.Duration,
	}
	if entry.EntityID != "" {
		fields["entity_id"] = entry.EntityID
	}
	if entry.Error != "" {
		fields["error"] = entry.Error
	}
	a.log.WithFields(fields).Info("audit")
}

type coreLogger struct {
	log logrus.FieldLogger
}

func (l coreLogger) Debug(msg string, keysAndValues ...any) {
	l.log.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l coreLogger) Info(msg string, keysAndValues ...any) {
	l.log.WithFields(fields(keysAndValues)).Info(msg)
}

func (l coreLogger) Warn(msg string, keysAndValues ...any) {
	l.log.WithFields(fields(keysAndValues)).Warn(msg)
}

func (l coreLogger) Error(msg string, keysAndValues ...any) {
	l.log.WithFields(fields(keysAndValues)).Error(msg)
}

// fields pairs up keysAndValues; non-string keys are stringified and a
// dangling trailing value is dropped.
func fields(keysAndValues []any) logrus.Fields {
	out := make(logrus.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		out[key] = keysAndValues[i+1]
	}
	return out
}
