// Package testutil provides an in-memory IMAP server for tests.
package testutil

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	giimapserver "github.com/emersion/go-imap/v2/imapserver"
	giimapmemserver "github.com/emersion/go-imap/v2/imapserver/imapmemserver"
)

const (
	Username = "user@example.com"
	Password = "password"
)

// Mailboxes created on every test server.
var Mailboxes = []string{"INBOX", "Sent"}

// Message is appended to Mailbox before the server starts.
type Message struct {
	Mailbox string
	From    string
	To      string
	Cc      string
	Subject string
	Body    string
	Time    time.Time
	// RawHeader replaces the generated Date header.
	RawHeader string
}

// Raw renders the message as RFC 5322 text.
func (m Message) Raw() string {
	builder := &strings.Builder{}
	builder.WriteString("From: " + m.From + "\r\n")
	builder.WriteString("To: " + m.To + "\r\n")
	if m.Cc != "" {
		builder.WriteString("Cc: " + m.Cc + "\r\n")
	}
	builder.WriteString("Subject: " + m.Subject + "\r\n")
	if m.RawHeader != "" {
		builder.WriteString(m.RawHeader)
	} else {
		builder.WriteString("Date: " + m.Time.Format(time.RFC1123Z) + "\r\n")
	}
	builder.WriteString("\r\n")
	builder.WriteString(m.Body)
	builder.WriteString("\r\n")
	return builder.String()
}

// IMAPServer is a running in-memory server.
type IMAPServer struct {
	Addr string
	// ClientTLS trusts the server's self-signed certificate.
	ClientTLS *tls.Config
}

// StartIMAPServer serves messages over TLS on a loopback port until the
// test ends.
func StartIMAPServer(t *testing.T, messages []Message) IMAPServer {
	t.Helper()

	tlsConfig := serverTLSConfig(t)
	mem := giimapmemserver.New()
	user := giimapmemserver.NewUser(Username, Password)
	mem.AddUser(user)

	for _, mailbox := range Mailboxes {
		if err := user.Create(mailbox, nil); err != nil {
			t.Fatalf("create mailbox %q: %v", mailbox, err)
		}
	}

	for _, msg := range messages {
		if _, err := user.Append(msg.Mailbox, newLiteral(msg.Raw()), &imap.AppendOptions{Time: msg.Time}); err != nil {
			t.Fatalf("append message: %v", err)
		}
	}

	server := giimapserver.New(&giimapserver.Options{
		NewSession: func(*giimapserver.Conn) (giimapserver.Session, *giimapserver.GreetingData, error) {
			return mem.NewSession(), nil, nil
		},
		TLSConfig:    tlsConfig,
		InsecureAuth: true,
	})

	ln, err := tls.Listen("tcp", "127.0.0.1:0", tlsConfig)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()

	t.Cleanup(func() {
		_ = server.Close()
		_ = ln.Close()
		select {
		case <-errCh:
		default:
		}
	})

	return IMAPServer{
		Addr:      ln.Addr().String(),
		ClientTLS: &tls.Config{InsecureSkipVerify: true},
	}
}

// Port returns the listening port.
func (s IMAPServer) Port() string {
	_, port, _ := net.SplitHostPort(s.Addr)
	return port
}

type literalReader struct {
	*bytes.Reader
	size int64
}

func newLiteral(raw string) imap.LiteralReader {
	buf := []byte(raw)
	return &literalReader{
		Reader: bytes.NewReader(buf),
		size:   int64(len(buf)),
	}
}

func (lr *literalReader) Size() int64 {
	return lr.size
}

func serverTLSConfig(t *testing.T) *tls.Config {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		t.Fatalf("generate serial: %v", err)
	}

	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName: "localhost",
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create cert: %v", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{{
			Certificate: [][]byte{der},
			PrivateKey:  key,
		}},
		NextProtos: []string{"imap"},
	}
}
