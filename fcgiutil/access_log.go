package fcgiutil

import (
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kstash/gofcgisrv/fcgi"
)

// AccessLogger writes one structured log line per completed request,
// adapted from the reverse-proxy access logger this module's runtime is
// descended from: gated by a config flag, fields attached with
// logrus.WithFields rather than string formatting.
type AccessLogger struct {
	enabled bool
	logger  *logrus.Logger
}

// NewAccessLogger constructs a logger that only emits when enabled is
// true, so call sites can leave it wired unconditionally.
func NewAccessLogger(enabled bool, logger *logrus.Logger) *AccessLogger {
	return &AccessLogger{enabled: enabled, logger: logger}
}

// RequestID returns a fresh correlation id for a request's lifetime. It
// is generated once per request (typically right after AcceptRequests
// returns it) and threaded through every log line the worker emits for
// that request, including the one LogCompletion writes.
func RequestID() string {
	return uuid.NewString()
}

// LogCompletion logs one finished request. env is the request's
// environment (fcgi.Request.Env()); status and bodySize describe the
// response the worker produced. route, if non-empty, is the
// application-level route the request was dispatched to (distinct from
// the raw REQUEST_URI, which is logged verbatim).
func (a *AccessLogger) LogCompletion(requestID string, key fcgi.RequestKey, env map[string]string, route string, status int, bodySize int) {
	if !a.enabled {
		return
	}

	method := env["REQUEST_METHOD"]
	uri := env["REQUEST_URI"]
	var query string
	if q := env["QUERY_STRING"]; q != "" {
		if values, err := url.ParseQuery(q); err == nil {
			query = values.Encode()
		} else {
			query = q
		}
	}

	a.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"conn":       key.ConnID,
		"fcgi_id":    key.FcgiID,
		"method":     method,
		"uri":        uri,
		"query":      query,
		"route":      route,
		"status":     status,
		"size":       bodySize,
	}).Info("access")
}

// LogAborted logs a request whose front-end connection went away, or
// that the peer explicitly sent ABORT_REQUEST for, before the worker
// finished producing a response.
func (a *AccessLogger) LogAborted(requestID string, key fcgi.RequestKey, env map[string]string) {
	if !a.enabled {
		return
	}
	a.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"conn":       key.ConnID,
		"fcgi_id":    key.FcgiID,
		"method":     env["REQUEST_METHOD"],
		"uri":        env["REQUEST_URI"],
	}).Warn("access aborted")
}

// StripQueryString returns uri with any "?..." suffix removed, used
// when a log field should carry only the path.
func StripQueryString(uri string) string {
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		return uri[:i]
	}
	return uri
}
