package smtpclient

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/rs/zerolog"
)

// DefaultDrainLimit bounds how many stray replies a drain round skips
// before giving up.
const DefaultDrainLimit = 32

// Option configures a Client.
type Option func(*options)

type options struct {
	dialer     *net.Dialer
	timeout    time.Duration
	localName  string
	tlsConfig  *tls.Config
	logger     zerolog.Logger
	drainLimit int
}

func defaultOptions() options {
	return options{
		dialer:     &net.Dialer{},
		timeout:    30 * time.Second,
		logger:     zerolog.Nop(),
		drainLimit: DefaultDrainLimit,
	}
}

// WithDialer sets a custom net.Dialer for the connection.
func WithDialer(d *net.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithTimeout bounds the whole handshake: dial, greeting, EHLO, STARTTLS,
// AUTH and the drain round.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithLocalName sets the hostname sent in EHLO, overriding Config.LocalName.
func WithLocalName(name string) Option {
	return func(o *options) { o.localName = name }
}

// WithTLSConfig sets the TLS configuration for STARTTLS and implicit TLS.
func WithTLSConfig(c *tls.Config) Option {
	return func(o *options) { o.tlsConfig = c }
}

// WithLogger sets the structured logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithDrainLimit sets how many non-250 replies a drain round tolerates.
func WithDrainLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.drainLimit = n
		}
	}
}
