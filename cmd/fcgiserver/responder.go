package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kstash/gofcgisrv/fcgi"
	"github.com/kstash/gofcgisrv/fcgiutil"
)

// StaticResponder answers Responder requests by serving files from a
// document root, the FastCGI-server-side analogue of the static-folder
// handling the teacher's http_server.go performs on the HTTP side: a
// request's SCRIPT_NAME is resolved against DocRoot and the file's
// content is streamed back as STDOUT, or a 404 if it doesn't exist.
type StaticResponder struct {
	docRoot      string
	app          string
	monitor      *Monitor
	accessLogger *fcgiutil.AccessLogger
	logger       *logrus.Logger
}

// NewStaticResponder constructs a StaticResponder rooted at docRoot.
func NewStaticResponder(docRoot, app string, monitor *Monitor, accessLogger *fcgiutil.AccessLogger, logger *logrus.Logger) *StaticResponder {
	return &StaticResponder{
		docRoot:      docRoot,
		app:          app,
		monitor:      monitor,
		accessLogger: accessLogger,
		logger:       logger,
	}
}

// Serve runs until iface reports it is closed, repeatedly accepting
// batches of requests and handling each in its own goroutine rather than
// a fixed worker pool.
func (s *StaticResponder) Serve(iface *fcgi.Interface) {
	for {
		reqs, err := iface.AcceptRequests()
		if err != nil {
			s.logger.Infof("accept loop stopping: %v", err)
			return
		}
		for _, r := range reqs {
			go s.handle(r)
		}
	}
}

func (s *StaticResponder) handle(r *fcgi.Request) {
	start := time.Now()
	requestID := fcgiutil.RequestID()
	env := r.Env()

	if r.AbortStatus() {
		s.accessLogger.LogAborted(requestID, r.Key(), env)
		_ = r.Complete(1)
		s.observe(start, fcgi.StatusRequestComplete)
		return
	}

	status, contentType, body := s.resolve(env)
	response := append([]byte(responseHeader(status, contentType)), body...)

	appStatus := uint32(0)
	if _, err := r.WriteStdout(response); err != nil {
		s.logger.Debugf("request %s: write failed: %v", requestID, err)
		appStatus = 1
	}
	if err := r.Complete(appStatus); err != nil {
		s.logger.Debugf("request %s: complete failed: %v", requestID, err)
	}

	s.observe(start, fcgi.StatusRequestComplete)
	s.accessLogger.LogCompletion(requestID, r.Key(), env, fcgiutil.StripQueryString(env["REQUEST_URI"]), status, len(body))
}

func (s *StaticResponder) observe(start time.Time, protoStatus fcgi.ProtocolStatus) {
	s.monitor.RequestDurationHistogram.
		WithLabelValues(s.app, fcgi.RoleResponder.String(), fmt.Sprintf("%d", protoStatus)).
		Observe(time.Since(start).Seconds())
}

func (s *StaticResponder) resolve(env map[string]string) (status int, contentType string, body []byte) {
	name := env["SCRIPT_NAME"]
	if name == "" {
		name = "/"
	}
	if strings.HasSuffix(name, "/") {
		name += "index.html"
	}

	cleaned := filepath.Clean("/" + name)
	full := filepath.Join(s.docRoot, cleaned)
	if !strings.HasPrefix(full, filepath.Clean(s.docRoot)+string(filepath.Separator)) {
		return 403, "text/plain; charset=utf-8", []byte("forbidden")
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return 404, "text/plain; charset=utf-8", []byte("not found")
	}

	ct := mime.TypeByExtension(filepath.Ext(full))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return 200, ct, data
}

func responseHeader(status int, contentType string) string {
	return fmt.Sprintf("Status: %d\r\nContent-Type: %s\r\n\r\n", status, contentType)
}
