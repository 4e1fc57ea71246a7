package smtpclient

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"io"
	"math/big"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alexisbouchez/mailer.go/internal/textproto"
)

// generateTestCert creates a self-signed TLS certificate for testing.
func generateTestCert(t *testing.T) tls.Certificate {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "fake.example.com"},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"fake.example.com", "localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}

	certBytes, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}

	return tls.Certificate{
		Certificate: [][]byte{certBytes},
		PrivateKey:  key,
	}
}

// fakeServer is a scripted SMTP server on one end of a net.Pipe. It records
// every line the client sends, DATA body lines included, so tests can
// assert the exact wire order.
type fakeServer struct {
	t *testing.T

	greeting   string
	startTLS   *tls.Config
	authOK     bool
	rcptReply  map[string]string
	noopStray  []string
	closeAfter string
	holdRcpt   chan struct{}
	holdData   chan struct{}

	mu     sync.Mutex
	events []string
	done   chan struct{}
}

func newFakeServer(t *testing.T) *fakeServer {
	return &fakeServer{
		t:         t,
		greeting:  "220 fake.example.com ESMTP ready",
		authOK:    true,
		rcptReply: map[string]string{},
		done:      make(chan struct{}),
	}
}

// withSTARTTLS advertises STARTTLS and upgrades with a self-signed cert.
func (s *fakeServer) withSTARTTLS() *fakeServer {
	s.startTLS = &tls.Config{Certificates: []tls.Certificate{generateTestCert(s.t)}}
	return s
}

// start runs the server and returns the client end of the pipe.
func (s *fakeServer) start() net.Conn {
	server, client := net.Pipe()
	s.t.Cleanup(func() {
		client.Close()
		server.Close()
		<-s.done
	})
	go s.serve(server)
	return client
}

// listen serves a single connection on a TCP loopback listener and returns
// the port.
func (s *fakeServer) listen() int {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		s.t.Fatal(err)
	}
	s.t.Cleanup(func() {
		ln.Close()
		<-s.done
	})
	go func() {
		nc, err := ln.Accept()
		if err != nil {
			close(s.done)
			return
		}
		s.serve(nc)
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

func (s *fakeServer) record(line string) {
	s.mu.Lock()
	s.events = append(s.events, line)
	s.mu.Unlock()
}

// lines returns a copy of everything the client sent so far.
func (s *fakeServer) lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

// commands returns the recorded lines outside DATA bodies.
func (s *fakeServer) commands() []string {
	var out []string
	inData := false
	for _, l := range s.lines() {
		switch {
		case inData && l == ".":
			inData = false
			out = append(out, l)
		case inData:
		case l == "DATA":
			inData = true
			out = append(out, l)
		default:
			out = append(out, l)
		}
	}
	return out
}

// bodies returns the DATA bodies received, one per message, unstuffed.
func (s *fakeServer) bodies() [][]string {
	var (
		out    [][]string
		cur    []string
		inData bool
	)
	for _, l := range s.lines() {
		switch {
		case l == "DATA":
			inData, cur = true, nil
		case inData && l == ".":
			inData = false
			out = append(out, cur)
		case inData:
			cur = append(cur, strings.TrimPrefix(l, "."))
		}
	}
	return out
}

func (s *fakeServer) serve(nc net.Conn) {
	defer close(s.done)
	defer nc.Close()

	conn := textproto.NewConn(nc)
	secure := false

	if s.greeting == "" {
		// Stay silent until the client hangs up.
		io.Copy(io.Discard, nc)
		return
	}
	if conn.WriteLine(s.greeting) != nil || !strings.HasPrefix(s.greeting, "220") {
		return
	}

	for {
		line, err := conn.ReadLine(4096)
		if err != nil {
			return
		}
		s.record(line)
		if s.closeAfter != "" && strings.HasPrefix(line, s.closeAfter) {
			return
		}

		verb := strings.ToUpper(strings.Fields(line + " ")[0])
		switch verb {
		case "EHLO":
			ext := []string{"250-fake.example.com greets you", "250-SIZE 10485760"}
			if s.startTLS != nil && !secure {
				ext = append(ext, "250-STARTTLS")
			}
			ext = append(ext, "250 AUTH LOGIN")
			for _, l := range ext {
				conn.WriteLine(l)
			}
		case "STARTTLS":
			if s.startTLS == nil || secure {
				conn.WriteLine("502 5.5.1 not supported")
				continue
			}
			conn.WriteLine("220 2.0.0 go ahead")
			tlsConn := tls.Server(nc, s.startTLS)
			if err := tlsConn.Handshake(); err != nil {
				return
			}
			conn.ReplaceConn(tlsConn)
			secure = true
		case "AUTH":
			conn.WriteLine("334 VXNlcm5hbWU6")
			user, err := conn.ReadLine(4096)
			if err != nil {
				return
			}
			s.record(user)
			conn.WriteLine("334 UGFzc3dvcmQ6")
			pass, err := conn.ReadLine(4096)
			if err != nil {
				return
			}
			s.record(pass)
			if s.authOK {
				conn.WriteLine("235 2.7.0 Authentication successful")
			} else {
				conn.WriteLine("535 5.7.8 Authentication credentials invalid")
			}
		case "MAIL":
			conn.WriteLine("250 2.1.0 OK")
		case "RCPT":
			if s.holdRcpt != nil {
				<-s.holdRcpt
			}
			reply := "250 2.1.5 OK"
			for addr, r := range s.rcptReply {
				if strings.Contains(line, "<"+addr+">") {
					reply = r
				}
			}
			conn.WriteLine(reply)
		case "DATA":
			conn.WriteLine("354 End data with <CR><LF>.<CR><LF>")
			for {
				l, err := conn.ReadLine(4096)
				if err != nil {
					return
				}
				s.record(l)
				if l == "." {
					break
				}
			}
			if s.holdData != nil {
				<-s.holdData
			}
			conn.WriteLine("250 2.0.0 Ok: queued")
		case "NOOP":
			for _, l := range s.noopStray {
				conn.WriteLine(l)
			}
			conn.WriteLine("250 2.0.0 OK")
		case "RSET":
			conn.WriteLine("250 2.0.0 OK")
		case "QUIT":
			conn.WriteLine("221 2.0.0 Bye")
			return
		default:
			conn.WriteLine("500 5.5.2 unrecognized command")
		}
	}
}
