// Package logger provides structured logging for custsync.
//
// It wraps zerolog behind the Logger interface so components take a Logger
// instead of a concrete zerolog value, and tests can swap in a TestLogger to
// assert on emitted messages.
//
//	err := logger.Initialize(&cfg.Logging)
//	log := logger.GetLogger().WithField("component", "pager")
//	log.InfoWithFields("Page committed", map[string]interface{}{
//	    "collection": "customers",
//	    "processed":  500,
//	})
package logger
