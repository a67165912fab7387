package remote

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/delta10/globe-layers/internal/wms"
)

const (
	outcomeReady     = "ready"
	outcomeTransport = "transport_error"
	outcomeParse     = "parse_error"
	outcomeOther     = "error"
)

var (
	capabilitiesFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "globe_layers_capabilities_fetch_total",
			Help: "Number of capabilities documents retrieved for remote layers by outcome.",
		},
		[]string{"outcome"},
	)

	layersReady = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "globe_layers_remote_layers_ready",
			Help: "Number of remote layers whose configuration has arrived.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		capabilitiesFetchTotal,
		layersReady,
	)
}

func outcome(err error) string {
	var transportErr *wms.TransportError
	var parseErr *wms.ParseError

	switch {
	case errors.As(err, &transportErr):
		return outcomeTransport
	case errors.As(err, &parseErr):
		return outcomeParse
	default:
		return outcomeOther
	}
}
