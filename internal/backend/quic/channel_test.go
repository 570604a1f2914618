package quic_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/binary"
	"encoding/json"
	"encoding/pem"
	"io"
	"math/big"
	"net"
	"testing"
	"time"

	quicgo "github.com/quic-go/quic-go"
	"github.com/stretchr/testify/require"

	"github.com/angular/tactical/internal/backend"
	"github.com/angular/tactical/internal/backend/quic"
	"github.com/angular/tactical/internal/log"
)

// generateServerTLSConfig mints a short-lived self-signed certificate, the
// same shape the teacher's generateTLSConfig helpers use for local QUIC
// test servers.
func generateServerTLSConfig(t *testing.T) *tls.Config {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{Organization: []string{"Tactical"}},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	require.NoError(t, err)

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"tactical"},
	}
}

// dialTestChannel starts a local QUIC listener, dials a Channel against it,
// and returns that Channel along with the server-side stream the listener
// accepted — the raw end tests use to drive the wire protocol directly
// without going through a second Channel.
func dialTestChannel(t *testing.T) (*quic.Channel, *quicgo.Stream) {
	t.Helper()

	udpConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)

	ln, err := quicgo.Listen(udpConn, generateServerTLSConfig(t), &quicgo.Config{MaxIdleTimeout: 10 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	streamCh := make(chan *quicgo.Stream, 1)
	go func() {
		conn, err := ln.Accept(context.Background())
		if err != nil {
			return
		}
		stream, err := conn.AcceptStream(context.Background())
		if err != nil {
			return
		}
		streamCh <- stream
	}()

	tlsConfig := &tls.Config{InsecureSkipVerify: true, NextProtos: []string{"tactical"}}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ch, err := quic.Dial(ctx, ln.Addr().String(), tlsConfig, log.New(log.LevelSilent))
	require.NoError(t, err)

	var stream *quicgo.Stream
	select {
	case stream = <-streamCh:
	case <-time.After(5 * time.Second):
		t.Fatal("server never accepted client stream")
	}
	return ch, stream
}

func readServerFrame(t *testing.T, stream *quicgo.Stream) map[string]any {
	t.Helper()
	var header [8]byte
	_, err := io.ReadFull(stream, header[:])
	require.NoError(t, err)
	n := binary.BigEndian.Uint64(header[:])
	payload := make([]byte, n)
	_, err = io.ReadFull(stream, payload)
	require.NoError(t, err)
	var env map[string]any
	require.NoError(t, json.Unmarshal(payload, &env))
	return env
}

func writeServerFrame(t *testing.T, stream *quicgo.Stream, env map[string]any) {
	t.Helper()
	payload, err := json.Marshal(env)
	require.NoError(t, err)
	var header [8]byte
	binary.BigEndian.PutUint64(header[:], uint64(len(payload)))
	_, err = stream.Write(header[:])
	require.NoError(t, err)
	_, err = stream.Write(payload)
	require.NoError(t, err)
}

func TestRequestSendsRequestFrame(t *testing.T) {
	ch, stream := dialTestChannel(t)
	defer ch.Close()

	require.NoError(t, ch.Request("mykey"))

	env := readServerFrame(t, stream)
	require.Equal(t, "request", env["type"])
	require.Equal(t, "mykey", env["key"])
}

func TestMutateSendsMutateFrame(t *testing.T) {
	ch, stream := dialTestChannel(t)
	defer ch.Close()

	require.NoError(t, ch.Mutate("mykey", "base1", map[string]any{"v": float64(1)}, nil))

	env := readServerFrame(t, stream)
	require.Equal(t, "mutate", env["type"])
	require.Equal(t, "mykey", env["key"])
	require.Equal(t, "base1", env["base"])
}

func TestServerDataFrameDeliveredToChannel(t *testing.T) {
	ch, stream := dialTestChannel(t)
	defer ch.Close()

	writeServerFrame(t, stream, map[string]any{
		"type":    "data",
		"key":     "mykey",
		"version": "v1.0",
		"data":    map[string]any{"v": float64(2)},
	})

	select {
	case frame := <-ch.Data():
		require.Equal(t, "mykey", frame.Key)
		require.Equal(t, "v1.0", frame.Version)
	case <-time.After(5 * time.Second):
		t.Fatal("data frame not delivered")
	}
}

func TestServerFailedFrameDeliveredToChannel(t *testing.T) {
	ch, stream := dialTestChannel(t)
	defer ch.Close()

	writeServerFrame(t, stream, map[string]any{
		"type":   "failed",
		"key":    "mykey",
		"reason": "rejected",
	})

	select {
	case frame := <-ch.Failed():
		require.Equal(t, "mykey", frame.Key)
		require.Equal(t, "rejected", frame.Reason)
	case <-time.After(5 * time.Second):
		t.Fatal("failed frame not delivered")
	}
}

func TestCloseStopsOutboundSends(t *testing.T) {
	ch, _ := dialTestChannel(t)
	require.NoError(t, ch.Close())

	require.Error(t, ch.Request("mykey"))
}

var _ backend.Channel = (*quic.Channel)(nil)
