package main

import (
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kstash/gofcgisrv/fcgi"
	"github.com/kstash/gofcgisrv/fcgiutil"
)

func main() {
	logger := log.New()
	logger.SetFormatter(&log.JSONFormatter{})
	logger.SetLevel(log.DebugLevel)

	rootCmd := &cobra.Command{
		Use:   "fcgiserver",
		Short: "FastCGI Responder server",
		Long:  `Long description`,
		Run: func(cmd *cobra.Command, args []string) {
			config, err := LoadConfig(cmd.PersistentFlags(), logger)
			if err != nil {
				logger.Fatalf("could not load config: %s", err)
			}
			logger.SetLevel(log.InfoLevel)
			if config.Verbose {
				logger.SetLevel(log.DebugLevel)
			}
			config.LogConfig()

			allowedPeers, err := fcgiutil.ParseAllowedPeers(config.WebServerAddrs)
			if err != nil {
				logger.Fatalf("could not parse %s: %s", ParamWebServerAddrs, err)
			}

			ln, err := listen(config.Network, config.Socket)
			if err != nil {
				logger.Fatalf("could not listen on %s %q: %s", config.Network, config.Socket, err)
			}

			iface, err := fcgi.New(ln, fcgi.Config{
				Role:                     config.role(),
				MaxConnections:           config.MaxConns,
				MaxRequestsPerConnection: config.MaxReqs,
				WriteTimeout:             config.WriteTimeout,
				AllowedPeers:             allowedPeers,
			})
			if err != nil {
				logger.Fatalf("could not create FastCGI interface: %s", err)
			}

			monitor := NewMonitor(config.App, iface, logger)
			accessLogger := fcgiutil.NewAccessLogger(config.AccessLog, logger)
			responder := NewStaticResponder(config.DocRoot, config.App, monitor, accessLogger, logger)

			metricsSrv := NewMetricsServer(config.MetricsAddr, monitor, logger)
			if metricsSrv != nil {
				metricsSrv.Start()
			}

			go responder.Serve(iface)
			logger.Info("Server Started")

			done := make(chan os.Signal, 1)
			signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
			<-done
			logger.Info("Server Stopped")

			if metricsSrv != nil {
				metricsSrv.Shutdown()
			}
			if err := iface.Close(); err != nil {
				logger.Errorf("interface close: %v", err)
			}

			logger.Info("Server Exited Properly")
		},
	}

	DefineParams(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		logger.Fatalf("could not run root command")
	}
}
