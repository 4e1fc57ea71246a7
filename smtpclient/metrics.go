package smtpclient

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/alexisbouchez/mailer.go"
)

var (
	metricHandshake = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailer_smtpclient_handshake_total",
			Help: "SMTP client session handshakes. Result values: ok, protocol, transport, insecure, canceled, error.",
		},
		[]string{"result"},
	)
	metricSend = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailer_smtpclient_send_total",
			Help: "SMTP client message sends. Result values: ok, invalid, protocol, transport, closed, canceled, error.",
		},
		[]string{"result"},
	)
	metricSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mailer_smtpclient_send_duration_seconds",
			Help:    "Time spent on the wire per message, from MAIL FROM to the drain round.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.100, 0.5, 1, 5, 10, 30, 60},
		},
	)
	metricGateWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mailer_smtpclient_gate_wait_seconds",
			Help:    "Time a send waited for the connection to become free.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.100, 0.5, 1, 5, 10, 30},
		},
	)
)

// resultLabel maps an error onto a bounded metric label value.
func resultLabel(err error) string {
	var (
		pe *mailer.ProtocolError
		te *mailer.TransportError
		ve *mailer.ValidationError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &ve):
		return "invalid"
	case errors.Is(err, mailer.ErrInsecureConnection):
		return "insecure"
	case errors.Is(err, ErrClosed):
		return "closed"
	case errors.As(err, &pe):
		return "protocol"
	case errors.As(err, &te):
		return "transport"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
