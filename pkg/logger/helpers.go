package logger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LogRequest logs an outbound HTTP request
func LogRequest(l Logger, method, url string, statusCode int, duration time.Duration) {
	fields := map[string]interface{}{
		"method":      method,
		"url":         url,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}

	switch {
	case statusCode >= 500 || statusCode == 0:
		l.ErrorWithFields("HTTP request failed", fields)
	case statusCode >= 400:
		l.WarnWithFields("HTTP request client error", fields)
	default:
		l.DebugWithFields("HTTP request completed", fields)
	}
}

// LogPageCommitted logs a page that has been persisted to the record cache
func LogPageCommitted(l Logger, jobID, collection string, pageRecords int, processed int64, hasMore bool) {
	l.InfoWithFields("Page committed", map[string]interface{}{
		"job_id":       jobID,
		"collection":   collection,
		"page_records": pageRecords,
		"processed":    processed,
		"has_more":     hasMore,
	})
}

// LogJobTransition logs a job status change
func LogJobTransition(l Logger, jobID, collection, from, to string, err error) {
	fields := map[string]interface{}{
		"job_id":     jobID,
		"collection": collection,
		"from":       from,
		"to":         to,
	}
	if err != nil {
		l.WithError(err).WarnWithFields("Job transition", fields)
		return
	}
	l.InfoWithFields("Job transition", fields)
}

// LogComponentStart logs when a component starts
func LogComponentStart(l Logger, component string, config map[string]interface{}) {
	l.WithField("component", component).InfoWithFields("Component started", config)
}

// LogComponentStop logs when a component stops
func LogComponentStop(l Logger, component, reason string) {
	l.WithFields(map[string]interface{}{
		"component": component,
		"reason":    reason,
	}).Info("Component stopped")
}

// NewNopLogger creates a logger that discards everything
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger                               { return nil }
