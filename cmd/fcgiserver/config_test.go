package main

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/kstash/gofcgisrv/fcgi"
)

func testFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String(ParamNetwork, "unix", "")
	flags.String(ParamSocket, "/tmp/fcgi.sock", "")
	flags.String(ParamDocRoot, "/var/www", "")
	flags.String(ParamApp, "fcgiserver", "")
	flags.String(ParamRole, "responder", "")
	flags.Int(ParamMaxConns, 128, "")
	flags.Int(ParamMaxReqs, 1, "")
	flags.Duration(ParamWriteTimeout, 30*time.Second, "")
	flags.String(ParamWebServerAddrs, "", "")
	flags.String(ParamMetricsAddr, ":9090", "")
	flags.Bool(ParamAccessLog, false, "")
	flags.Bool(ParamVerbose, false, "")
	return flags
}

func TestLoadConfigDefaults(t *testing.T) {
	flags := testFlagSet()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	config, err := LoadConfig(flags, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if config.Network != "unix" {
		t.Errorf("Network = %q, want unix", config.Network)
	}
	if config.MaxConns != 128 {
		t.Errorf("MaxConns = %d, want 128", config.MaxConns)
	}
	if config.WriteTimeout != 30*time.Second {
		t.Errorf("WriteTimeout = %v, want 30s", config.WriteTimeout)
	}
	if config.AccessLog != false {
		t.Errorf("AccessLog = %v, want false", config.AccessLog)
	}
}

func TestLoadConfigCustomValues(t *testing.T) {
	flags := testFlagSet()
	_ = flags.Set(ParamNetwork, "tcp")
	_ = flags.Set(ParamSocket, "127.0.0.1:9000")
	_ = flags.Set(ParamRole, "filter")
	_ = flags.Set(ParamMaxReqs, "8")
	_ = flags.Set(ParamAccessLog, "true")

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	config, err := LoadConfig(flags, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if config.Network != "tcp" {
		t.Errorf("Network = %q, want tcp", config.Network)
	}
	if config.Socket != "127.0.0.1:9000" {
		t.Errorf("Socket = %q, want 127.0.0.1:9000", config.Socket)
	}
	if config.MaxReqs != 8 {
		t.Errorf("MaxReqs = %d, want 8", config.MaxReqs)
	}
	if config.AccessLog != true {
		t.Errorf("AccessLog = %v, want true", config.AccessLog)
	}
}

func TestConfigRole(t *testing.T) {
	cases := []struct {
		in   string
		want fcgi.Role
	}{
		{"responder", fcgi.RoleResponder},
		{"authorizer", fcgi.RoleAuthorizer},
		{"filter", fcgi.RoleFilter},
		{"", fcgi.RoleResponder},
		{"bogus", fcgi.RoleResponder},
	}
	for _, c := range cases {
		config := &Config{Role: c.in}
		if got := config.role(); got != c.want {
			t.Errorf("Config{Role: %q}.role() = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestIgnoreError(t *testing.T) {
	if got := ignoreError("hello", nil); got != "hello" {
		t.Errorf("ignoreError string = %q, want hello", got)
	}
	if got := ignoreError(42, nil); got != 42 {
		t.Errorf("ignoreError int = %d, want 42", got)
	}
	if got := ignoreError(true, io.EOF); got != true {
		t.Errorf("ignoreError with error = %v, want true", got)
	}
}
