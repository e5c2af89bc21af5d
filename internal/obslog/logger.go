// Package obslog provides the orchestrator's structured logger: a
// correlation-id-scoped wrapper over go-kit/log with URL redaction,
// generalized from per-HTTP-request logging to per-pipeline and
// per-command logging.
package obslog

import (
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-kit/log"
	kitlog "github.com/go-kit/log"
	"github.com/patrickmn/go-cache"
)

var loggerCache *cache.Cache
var defaultLoggerCacheExpiry = 6 * time.Hour

func init() {
	loggerCache = cache.New(defaultLoggerCacheExpiry, 10*time.Minute)
}

// AddContext permanently attaches keyvals to the logger for a given
// correlation id (request_id or pipeline_id). Subsequent Log calls for
// that id will include this context.
func AddContext(correlationID string, keyvals ...interface{}) {
	logger := kitlog.With(getLogger(correlationID), redactKeyvals(keyvals...)...)
	if err := loggerCache.Replace(correlationID, logger, defaultLoggerCacheExpiry); err != nil {
		_ = logger.Log("msg", "error replacing logger in cache: "+err.Error())
	}
}

func Log(correlationID string, message string, keyvals ...interface{}) {
	_ = kitlog.With(getLogger(correlationID), "msg", message).Log(redactKeyvals(keyvals...)...)
}

// LogNoID logs when no correlation id is available (startup, shutdown,
// background loops). Use sparingly and put as much context as possible
// directly in the message.
func LogNoID(message string, keyvals ...interface{}) {
	_ = kitlog.With(newLogger(), "msg", message).Log(redactKeyvals(keyvals...)...)
}

func LogError(correlationID string, message string, err error, keyvals ...interface{}) {
	msgLogger := kitlog.With(getLogger(correlationID), "msg", message)
	errLogger := kitlog.With(msgLogger, "err", err.Error())
	_ = errLogger.Log(redactKeyvals(keyvals...)...)
}

func getLogger(correlationID string) kitlog.Logger {
	logger, found := loggerCache.Get(correlationID)
	if found {
		return logger.(kitlog.Logger)
	}

	l := kitlog.With(newLogger(), "correlation_id", correlationID)
	if err := loggerCache.Add(correlationID, l, defaultLoggerCacheExpiry); err != nil {
		_ = l.Log("msg", "error adding logger to cache", "correlation_id", correlationID, "err", err.Error())
	}
	return l
}

func newLogger() kitlog.Logger {
	l := kitlog.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	return kitlog.With(l, "ts", kitlog.DefaultTimestampUTC)
}

func redactKeyvals(keyvals ...interface{}) []interface{} {
	var res []interface{}
	for i := range keyvals {
		if i%2 == 1 {
			k, v := keyvals[i-1], keyvals[i]
			res = append(res, k)
			switch s := v.(type) {
			case string:
				res = append(res, RedactURL(s))
			case url.URL:
				res = append(res, s.Redacted())
			case *url.URL:
				if s != nil {
					res = append(res, s.Redacted())
				}
			default:
				res = append(res, v)
			}
		}
	}
	return res
}

func RedactURL(str string) string {
	strLower := strings.ToLower(str)
	if !strings.HasPrefix(strLower, "http") && !strings.HasPrefix(strLower, "unix") {
		return str
	}
	u, err := url.Parse(str)
	if err != nil {
		return "REDACTED"
	}
	return u.Redacted()
}
