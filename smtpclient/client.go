package smtpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/docker/go-units"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/alexisbouchez/mailer.go"
	"github.com/alexisbouchez/mailer.go/internal/envelope"
	"github.com/alexisbouchez/mailer.go/internal/gate"
	"github.com/alexisbouchez/mailer.go/internal/textproto"
)

var (
	// ErrClosed is returned by Send once Close has been called.
	ErrClosed = errors.New("smtpclient: client closed")
	// ErrBroken is wrapped by the error every Send returns after an earlier
	// send failed in a way that left the connection unusable.
	ErrBroken = errors.New("smtpclient: connection abandoned")
)

// Credentials are the AUTH LOGIN username and password.
type Credentials struct {
	Username string
	Password string
}

// Config describes the server and session parameters.
type Config struct {
	// Hostname of the SMTP server. Also the TLS ServerName and the default
	// EHLO identity.
	Hostname string
	// Port defaults to 25, or 465 when TLS is set.
	Port int
	// TLS dials with implicit TLS instead of upgrading via STARTTLS.
	TLS bool
	// LocalName is sent in EHLO. Defaults to Hostname.
	LocalName string
	// Auth enables AUTH LOGIN when non-nil.
	Auth *Credentials
	// AllowInsecure permits AUTH over a connection that is not encrypted.
	AllowInsecure bool
}

// Addr returns host:port with the port default applied.
func (c Config) Addr() string {
	port := c.Port
	if port == 0 {
		port = 25
		if c.TLS {
			port = 465
		}
	}
	return net.JoinHostPort(c.Hostname, strconv.Itoa(port))
}

// State is a step of the session handshake.
type State int32

const (
	StateConnecting State = iota
	StateAwaitingGreeting
	StateNegotiatingFeatures
	StateUpgradingTLS
	StateAuthenticating
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAwaitingGreeting:
		return "awaiting-greeting"
	case StateNegotiatingFeatures:
		return "negotiating-features"
	case StateUpgradingTLS:
		return "upgrading-tls"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Client sends messages over one SMTP connection. The session handshake
// runs in the background from construction; Send calls from any number of
// goroutines are queued and put on the wire one at a time, in call order.
type Client struct {
	cfg       Config
	opts      options
	addr      string
	localName string
	log       zerolog.Logger

	// Written by the handshake goroutine before ready is closed.
	conn     *textproto.Conn
	secure   bool
	features mailer.Features
	readyErr error

	ready  chan struct{}
	state  atomic.Int32
	gate   *gate.Gate
	cancel context.CancelFunc

	// Guarded by gate.
	broken error

	connOnce sync.Once
	connErr  error

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

type dialFunc func(ctx context.Context) (net.Conn, error)

// New dials the server described by cfg and starts the session handshake.
// It returns immediately; use Ready to wait for the outcome. ctx bounds the
// handshake only.
func New(ctx context.Context, cfg Config, opts ...Option) *Client {
	c := newClient(cfg, opts)
	return c.start(ctx, func(ctx context.Context) (net.Conn, error) {
		if cfg.TLS {
			d := &tls.Dialer{NetDialer: c.opts.dialer, Config: c.tlsConfig()}
			return d.DialContext(ctx, "tcp", c.addr)
		}
		return c.opts.dialer.DialContext(ctx, "tcp", c.addr)
	})
}

// NewClient runs the session handshake over an established connection
// whose greeting has not been read yet. A *tls.Conn counts as secure.
func NewClient(conn net.Conn, cfg Config, opts ...Option) *Client {
	c := newClient(cfg, opts)
	return c.start(context.Background(), func(context.Context) (net.Conn, error) {
		return conn, nil
	})
}

func newClient(cfg Config, opts []Option) *Client {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	localName := o.localName
	if localName == "" {
		localName = cfg.LocalName
	}
	if localName == "" {
		localName = cfg.Hostname
	}
	if localName == "" {
		localName = "localhost"
	}

	addr := cfg.Addr()
	return &Client{
		cfg:       cfg,
		opts:      o,
		addr:      addr,
		localName: localName,
		log:       o.logger.With().Str("component", "smtpclient").Str("server", addr).Logger(),
		ready:     make(chan struct{}),
		gate:      gate.New(),
	}
}

func (c *Client) start(ctx context.Context, dial dialFunc) *Client {
	ctx, c.cancel = context.WithCancel(ctx)
	go c.run(ctx, dial)
	return c
}

func (c *Client) run(ctx context.Context, dial dialFunc) {
	defer close(c.ready)

	err := c.handshake(ctx, dial)
	metricHandshake.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		c.readyErr = err
		c.setState(StateFailed)
		if c.conn != nil {
			c.conn.Close()
		}
		c.log.Warn().Err(err).Msg("handshake failed")
		return
	}

	c.setState(StateReady)
	c.log.Debug().
		Bool("tls", c.secure).
		Strs("features", c.features.Keywords()).
		Msg("session ready")
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
	c.log.Debug().Stringer("state", s).Msg("handshake state")
}

func (c *Client) tlsConfig() *tls.Config {
	if c.opts.tlsConfig == nil {
		return &tls.Config{ServerName: c.cfg.Hostname}
	}
	cfg := c.opts.tlsConfig.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = c.cfg.Hostname
	}
	return cfg
}

// Ready blocks until the handshake has finished and returns its error.
func (c *Client) Ready(ctx context.Context) error {
	select {
	case <-c.ready:
		return c.readyErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current handshake state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Features returns the extensions advertised in the first EHLO reply, or
// nil before the handshake has negotiated them.
func (c *Client) Features() mailer.Features {
	select {
	case <-c.ready:
		return c.features
	default:
		return nil
	}
}

// IsTLS reports whether the session is encrypted. It is false until the
// handshake has finished.
func (c *Client) IsTLS() bool {
	select {
	case <-c.ready:
		return c.secure
	default:
		return false
	}
}

// IsSending reports whether a message transaction currently holds the
// connection.
func (c *Client) IsSending() bool {
	return c.gate.Busy()
}

// Idle returns a channel that is closed once no send is running or queued.
func (c *Client) Idle() <-chan struct{} {
	return c.gate.Idle()
}

// Send validates req, waits for the handshake, then delivers the message
// once every earlier Send has finished. A send rejected by the server
// leaves the client usable for the next one. A failed handshake, or a send
// that failed on the connection itself, fails every later Send.
func (c *Client) Send(ctx context.Context, req *mailer.SendRequest) (err error) {
	defer func() { metricSend.WithLabelValues(resultLabel(err)).Inc() }()

	if c.closed.Load() {
		return ErrClosed
	}
	if err := req.Validate(); err != nil {
		return err
	}
	if err := c.Ready(ctx); err != nil {
		return err
	}

	log := c.log.With().Str("txn", uuid.NewString()).Logger()
	steps := envelope.Build(req)
	logRequest(log, req)

	queued := time.Now()
	err = c.gate.Do(ctx, func() error {
		metricGateWait.Observe(time.Since(queued).Seconds())
		if c.closed.Load() {
			return ErrClosed
		}
		start := time.Now()
		defer func() { metricSendDuration.Observe(time.Since(start).Seconds()) }()
		return c.transact(ctx, log, steps)
	})
	if err != nil {
		log.Warn().Err(err).Msg("send failed")
		return err
	}
	log.Info().Msg("message accepted")
	return nil
}

func logRequest(log zerolog.Logger, req *mailer.SendRequest) {
	var size int
	for _, a := range req.Attachments {
		size += len(a.Content)
	}
	log.Debug().
		Str("from", req.From.Mail).
		Int("recipients", len(req.Recipients())).
		Int("parts", len(req.MIMEContent)).
		Int("attachments", len(req.Attachments)).
		Str("attachment_size", units.HumanSize(float64(size))).
		Msg("queued message")
}

// transact runs one message transaction. The caller holds the gate.
//
// A rejected command leaves the session usable after RSET. Any other
// failure, including the end of ctx, may leave replies unread on the wire,
// so the connection is closed and every later Send fails with the same
// error.
func (c *Client) transact(ctx context.Context, log zerolog.Logger, steps []envelope.Step) error {
	if c.broken != nil {
		return c.broken
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.conn.SetDeadlineFromContext(ctx)
	defer c.conn.SetDeadlineFromContext(context.Background())
	stop := context.AfterFunc(ctx, func() { c.conn.NetConn().SetDeadline(time.Now()) })
	defer stop()

	err := c.exchange(log, steps)
	if err == nil {
		err = c.drain()
		if err != nil {
			c.abandon(log, err)
		}
		return err
	}
	if !rejected(err) {
		c.abandon(log, err)
	}
	return err
}

// exchange writes the steps and checks each expected reply.
func (c *Client) exchange(log zerolog.Logger, steps []envelope.Step) error {
	var dw *textproto.DotWriter
	for _, s := range steps {
		var err error
		switch s.Op {
		case envelope.OpCommand:
			err = c.writeLine(s.Line)
		case envelope.OpLine:
			err = dataErr(dw.WriteLine(s.Line))
		case envelope.OpBlock:
			if _, err = dw.Write(s.Block); err == nil {
				err = dw.EndLine()
			}
			err = dataErr(err)
		case envelope.OpEnd:
			log.Trace().Str("line", s.Line).Msg("C:")
			err = dataErr(dw.Close())
		}
		if err != nil {
			return err
		}
		if !s.ExpectsReply() {
			continue
		}

		if _, err := c.expect(s.Expect); err != nil {
			if s.Op == envelope.OpCommand && rejected(err) {
				if rerr := c.reset(log); rerr != nil {
					c.abandon(log, rerr)
				}
			}
			return err
		}
		if s.Expect == mailer.ReplyStartMailInput {
			dw = c.conn.DotWriter()
		}
	}
	return nil
}

func dataErr(err error) error {
	if err == nil {
		return nil
	}
	return &mailer.TransportError{Op: "write data", Err: err}
}

// rejected reports whether err is a server reply refusing the current
// command while keeping the session open. 421 announces that the server is
// closing the channel (RFC 5321 §3.8).
func rejected(err error) bool {
	var pe *mailer.ProtocolError
	return errors.As(err, &pe) && !pe.Empty() && pe.Code != mailer.ReplyServiceNotAvail
}

// reset aborts a rejected transaction so the next send starts clean.
func (c *Client) reset(log zerolog.Logger) error {
	_, err := c.cmd("RSET", mailer.ReplyOK)
	if err != nil {
		log.Warn().Err(err).Msg("RSET failed")
	}
	return err
}

// abandon closes a connection whose reply stream can no longer be trusted.
// The caller holds the gate.
func (c *Client) abandon(log zerolog.Logger, cause error) {
	if c.broken != nil {
		return
	}
	c.broken = &mailer.TransportError{Op: "session", Err: fmt.Errorf("%w: %w", ErrBroken, cause)}
	log.Warn().Err(cause).Msg("closing connection after failed send")
	c.closeConn()
}

// closeConn closes the network connection once.
func (c *Client) closeConn() error {
	c.connOnce.Do(func() { c.connErr = c.conn.Close() })
	return c.connErr
}

// Close ends the session. QUIT is sent only when no transaction holds the
// connection. Pending and future sends fail with ErrClosed or a transport
// error.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.cancel()
		<-c.ready
		if c.readyErr != nil {
			return
		}
		if c.gate.TryAcquire() {
			defer c.gate.Release()
			if c.broken != nil {
				return
			}
			c.conn.SetDeadlineFromContext(context.Background())
			c.conn.NetConn().SetDeadline(time.Now().Add(5 * time.Second))
			if _, err := c.cmd("QUIT", mailer.ReplyServiceClosing); err != nil {
				c.log.Debug().Err(err).Msg("QUIT failed")
			}
		}
		c.closeErr = c.closeConn()
	})
	return c.closeErr
}

// writeLine sends one command line.
func (c *Client) writeLine(line string) error {
	c.log.Trace().Str("line", line).Msg("C:")
	if err := c.conn.WriteLine(line); err != nil {
		return &mailer.TransportError{Op: "write", Err: err}
	}
	return nil
}

// writeSecret sends a credential line without logging it.
func (c *Client) writeSecret(line string) error {
	c.log.Trace().Str("line", "<redacted>").Msg("C:")
	if err := c.conn.WriteLine(line); err != nil {
		return &mailer.TransportError{Op: "write", Err: err}
	}
	return nil
}

// read reads one reply. A connection closed before a reply arrived yields
// a nil reply and a nil error.
func (c *Client) read() (*mailer.Reply, error) {
	reply, err := c.conn.ReadReply()
	if errors.Is(err, io.EOF) {
		c.log.Trace().Msg("S: <eof>")
		return nil, nil
	}
	if err != nil {
		return nil, &mailer.TransportError{Op: "read reply", Err: err}
	}
	c.log.Trace().Int("code", int(reply.Code)).Str("text", reply.Text()).Msg("S:")
	return reply, nil
}

// expect reads one reply and checks its code.
func (c *Client) expect(code mailer.ReplyCode) (*mailer.Reply, error) {
	reply, err := c.read()
	if err != nil {
		return nil, err
	}
	if err := mailer.AssertCode(reply, code); err != nil {
		return reply, err
	}
	return reply, nil
}

// cmd sends line and expects code in the reply.
func (c *Client) cmd(line string, code mailer.ReplyCode) (*mailer.Reply, error) {
	if err := c.writeLine(line); err != nil {
		return nil, err
	}
	return c.expect(code)
}

// drain sends NOOP and skips replies until a 250 arrives, at most
// drainLimit replies.
func (c *Client) drain() error {
	if err := c.writeLine("NOOP"); err != nil {
		return err
	}
	var last *mailer.Reply
	for i := 0; i < c.opts.drainLimit; i++ {
		reply, err := c.read()
		if err != nil {
			return err
		}
		if reply == nil || reply.Code == mailer.ReplyOK {
			return mailer.AssertCode(reply, mailer.ReplyOK)
		}
		c.log.Debug().Int("code", int(reply.Code)).Msg("skipping stray reply")
		last = reply
	}
	return mailer.AssertCode(last, mailer.ReplyOK)
}
