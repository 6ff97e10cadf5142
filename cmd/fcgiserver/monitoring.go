package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/kstash/gofcgisrv/fcgi"
)

var buckets = []float64{0.010, 0.025, 0.050, 0.100, 0.250, 0.500, 1.000, 2.500, 5.000, 10.000}

// Monitor wraps a private prometheus.Registry, exactly as the
// teacher's monitoring.go does, with the HTTP/FPM duration histograms
// replaced by a request-duration histogram and a connection-count gauge that make
// sense for a FastCGI runtime instead of an HTTP-to-FPM proxy.
type Monitor struct {
	Registry *prometheus.Registry

	RequestDurationHistogram *prometheus.HistogramVec
	ConnectionGauge          prometheus.GaugeFunc
}

// NewMonitor constructs a Monitor whose ConnectionGauge reads iface's
// live connection count on every scrape.
func NewMonitor(app string, iface *fcgi.Interface, logger *logrus.Logger) *Monitor {
	reg := prometheus.NewRegistry()
	monitor := &Monitor{
		Registry: reg,
		RequestDurationHistogram: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fcgi_request_duration_seconds",
			Help:    "Duration of a single FastCGI request, from assignment to completion",
			Buckets: buckets,
		}, []string{"app", "role", "protocol_status"}),
	}
	monitor.ConnectionGauge = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "fcgi_connections",
		Help: "Connections currently tracked by the interface, open or dummy",
		ConstLabels: prometheus.Labels{
			"app": app,
		},
	}, func() float64 {
		return float64(iface.ConnectionCount())
	})

	reg.MustRegister(monitor.RequestDurationHistogram)
	reg.MustRegister(monitor.ConnectionGauge)

	logger.Debugf("Monitor initialized")

	return monitor
}
