package main

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/kstash/gofcgisrv/fcgi"
)

const (
	ParamSocket         = "socket"
	ParamNetwork        = "network"
	ParamDocRoot        = "doc-root"
	ParamApp            = "app"
	ParamRole           = "role"
	ParamMaxConns       = "max-conns"
	ParamMaxReqs        = "max-reqs"
	ParamWriteTimeout   = "write-timeout"
	ParamWebServerAddrs = "web-server-addrs"
	ParamMetricsAddr    = "metrics-addr"
	ParamAccessLog      = "access-log"
	ParamVerbose        = "verbose"
)

// Config mirrors the teacher's flat, pflag-populated Config struct
// (config.go), generalized from an HTTP-to-PHP-FPM proxy's settings to
// a FastCGI Responder's.
type Config struct {
	Network        string // "unix" or "tcp"
	Socket         string // path (unix) or host:port (tcp)
	DocRoot        string // filesystem root the demo responder serves from
	App            string // application name, used as a metric label
	Role           string // "responder", "authorizer", or "filter"
	MaxConns       int
	MaxReqs        int
	WriteTimeout   time.Duration
	WebServerAddrs string // raw FCGI_WEB_SERVER_ADDRS-style allowlist
	MetricsAddr    string // empty disables the metrics server
	AccessLog      bool
	Verbose        bool

	logger *log.Logger
}

// DefineParams registers every flag DefineParams's teacher counterpart
// registers the HTTP-proxy equivalent of, generalized to this runtime's
// settings.
func DefineParams(cmd *cobra.Command) {
	cmd.PersistentFlags().String(ParamNetwork, "unix", `Listener network: "unix" or "tcp"`)
	cmd.PersistentFlags().StringP(ParamSocket, "s", "/run/fcgiserver.sock", "Unix socket path, or host:port for tcp")
	cmd.PersistentFlags().StringP(ParamDocRoot, "d", "", "Document root the demo responder serves files from")
	cmd.PersistentFlags().String(ParamApp, "fcgiserver", "Application name (metrics label)")
	cmd.PersistentFlags().String(ParamRole, "responder", "FastCGI role to accept: responder, authorizer, or filter")
	cmd.PersistentFlags().Int(ParamMaxConns, 128, "Maximum simultaneous connections")
	cmd.PersistentFlags().Int(ParamMaxReqs, 1, "Maximum concurrent requests multiplexed per connection")
	cmd.PersistentFlags().Duration(ParamWriteTimeout, 30*time.Second, "Per-write timeout [10s, 30s, 1m]")
	cmd.PersistentFlags().String(ParamWebServerAddrs, "", "Comma-separated allowed peer IPs (FCGI_WEB_SERVER_ADDRS style); empty allows any")
	cmd.PersistentFlags().String(ParamMetricsAddr, ":9090", "Address to serve /metrics on; empty disables it")
	cmd.PersistentFlags().Bool(ParamAccessLog, false, "Enable access logging")
	cmd.PersistentFlags().BoolP(ParamVerbose, "v", false, "Print debug output")

	_ = cmd.MarkPersistentFlagRequired(ParamDocRoot)
}

// LoadConfig reads every flag into a Config, exactly as the teacher's
// LoadConfig does for its own flag set.
func LoadConfig(set *pflag.FlagSet, logger *log.Logger) (*Config, error) {
	timeout, err := set.GetDuration(ParamWriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("could not load %q: %w", ParamWriteTimeout, err)
	}

	return &Config{
		Network:        ignoreError(set.GetString(ParamNetwork)),
		Socket:         ignoreError(set.GetString(ParamSocket)),
		DocRoot:        ignoreError(set.GetString(ParamDocRoot)),
		App:            ignoreError(set.GetString(ParamApp)),
		Role:           ignoreError(set.GetString(ParamRole)),
		MaxConns:       ignoreError(set.GetInt(ParamMaxConns)),
		MaxReqs:        ignoreError(set.GetInt(ParamMaxReqs)),
		WriteTimeout:   timeout,
		WebServerAddrs: ignoreError(set.GetString(ParamWebServerAddrs)),
		MetricsAddr:    ignoreError(set.GetString(ParamMetricsAddr)),
		AccessLog:      ignoreError(set.GetBool(ParamAccessLog)),
		Verbose:        ignoreError(set.GetBool(ParamVerbose)),

		logger: logger,
	}, nil
}

// LogConfig prints every setting at startup, matching the teacher's
// LogConfig's one-line-per-field shape.
func (c *Config) LogConfig() {
	c.logger.Infof("[CONFIG] Network: %s", c.Network)
	c.logger.Infof("[CONFIG] Socket: %s", c.Socket)
	c.logger.Infof("[CONFIG] DocRoot: %s", c.DocRoot)
	c.logger.Infof("[CONFIG] App: %s", c.App)
	c.logger.Infof("[CONFIG] Role: %s", c.Role)
	c.logger.Infof("[CONFIG] MaxConns: %d", c.MaxConns)
	c.logger.Infof("[CONFIG] MaxReqs: %d", c.MaxReqs)
	c.logger.Infof("[CONFIG] WriteTimeout: %s", c.WriteTimeout)
	c.logger.Infof("[CONFIG] WebServerAddrs: %s", c.WebServerAddrs)
	c.logger.Infof("[CONFIG] MetricsAddr: %s", c.MetricsAddr)
	c.logger.Infof("[CONFIG] AccessLog: %t", c.AccessLog)
	c.logger.Infof("[CONFIG] Verbose: %t", c.Verbose)
}

// role resolves the configured role name to an fcgi.Role, defaulting to
// Responder for an empty or unrecognized value.
func (c *Config) role() fcgi.Role {
	switch c.Role {
	case "authorizer":
		return fcgi.RoleAuthorizer
	case "filter":
		return fcgi.RoleFilter
	default:
		return fcgi.RoleResponder
	}
}

func ignoreError[K string | bool | int | []string](value K, _ error) K {
	return value
}
