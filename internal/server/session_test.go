package server

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wsecho/pkg/frame"
	"wsecho/pkg/handshake"
)

const testKey = "dGhlIHNhbXBsZSBub25jZQ=="

func upgradeRequest(key string) string {
	var sb strings.Builder
	sb.WriteString("GET / HTTP/1.1\r\nHost: localhost:8010\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n")
	if key != "" {
		sb.WriteString("Sec-WebSocket-Key: " + key + "\r\n")
	}
	sb.WriteString("Sec-WebSocket-Version: 13\r\n\r\n")
	return sb.String()
}

func clientFrame(t *testing.T, fin bool, op frame.Opcode, payload string) []byte {
	t.Helper()
	raw, err := frame.EncodeFrame(&frame.Frame{
		Fin:     fin,
		Opcode:  op,
		Masked:  true,
		Key:     [4]byte{0xde, 0xad, 0xbe, 0xef},
		Payload: []byte(payload),
	})
	require.NoError(t, err)
	return raw
}

// memConn feeds a canned client stream and records everything written.
type memConn struct {
	in  io.Reader
	out bytes.Buffer
}

func (c *memConn) Read(p []byte) (int, error)  { return c.in.Read(p) }
func (c *memConn) Write(p []byte) (int, error) { return c.out.Write(p) }

// replies splits server output into the handshake response lines and the
// decoded reply texts.
func replies(t *testing.T, out []byte) ([]string, []string) {
	t.Helper()
	br := bufio.NewReader(bytes.NewReader(out))
	lines, err := handshake.ReadLines(br)
	require.NoError(t, err)

	var texts []string
	dec := frame.NewDecoder(br, 0)
	for {
		msg, err := dec.ReadMessage()
		if err == io.EOF {
			return lines, texts
		}
		require.NoError(t, err)
		text, err := msg.Text()
		require.NoError(t, err)
		texts = append(texts, text)
	}
}

func TestSessionEchoThenClose(t *testing.T) {
	var in bytes.Buffer
	in.WriteString(upgradeRequest(testKey))
	in.Write(clientFrame(t, true, frame.OpText, "hello"))
	in.Write(clientFrame(t, false, frame.OpText, "frag"))
	in.Write(clientFrame(t, true, frame.OpContinuation, "mented"))
	in.Write(clientFrame(t, true, frame.OpText, "close"))
	in.Write(clientFrame(t, true, frame.OpText, "never read"))

	var stats Stats
	conn := &memConn{in: &in}
	sess := NewSession(conn, SessionConfig{Stats: &stats})
	require.Equal(t, StateAwaitingHandshake, sess.State())

	require.NoError(t, sess.Run())
	assert.Equal(t, StateClosed, sess.State())

	lines, texts := replies(t, conn.out.Bytes())
	assert.Equal(t, []string{
		"HTTP/1.1 101 Switching Protocols",
		"Upgrade: websocket",
		"Connection: Upgrade",
		"Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=",
	}, lines)
	assert.Equal(t, []string{"Echo: hello", "Echo: fragmented", "Closing connection. Good bye ;>"}, texts)

	snap := stats.Snapshot()
	assert.Equal(t, uint64(3), snap.MessagesIn)
	assert.Equal(t, uint64(3), snap.MessagesOut)
	assert.Equal(t, uint64(len("hello")+len("fragmented")+len("close")), snap.BytesIn)
}

func TestSessionCustomResponder(t *testing.T) {
	var in bytes.Buffer
	in.WriteString(upgradeRequest(testKey))
	in.Write(clientFrame(t, true, frame.OpText, "abc"))
	in.Write(clientFrame(t, true, frame.OpText, "quit"))

	conn := &memConn{in: &in}
	sess := NewSession(conn, SessionConfig{
		Responder: ResponderFunc(func(text string) (string, bool) {
			return strings.ToUpper(text), text == "quit"
		}),
	})
	require.NoError(t, sess.Run())

	_, texts := replies(t, conn.out.Bytes())
	assert.Equal(t, []string{"ABC", "QUIT"}, texts)
}

func TestSessionMissingKeyWritesNothing(t *testing.T) {
	conn := &memConn{in: strings.NewReader(upgradeRequest(""))}
	sess := NewSession(conn, SessionConfig{})

	err := sess.Run()
	assert.ErrorIs(t, err, handshake.ErrMissingHeader)
	assert.Zero(t, conn.out.Len(), "no partial write on a failed handshake")
	assert.Equal(t, StateClosed, sess.State())
}

func TestSessionTruncatedHandshake(t *testing.T) {
	conn := &memConn{in: strings.NewReader("GET / HTTP/1.1\r\nSec-WebSocket-Key: x\r\n")}
	err := NewSession(conn, SessionConfig{}).Run()
	assert.ErrorIs(t, err, handshake.ErrStreamTruncated)
	assert.Zero(t, conn.out.Len())
}

func TestSessionCleanDisconnect(t *testing.T) {
	var in bytes.Buffer
	in.WriteString(upgradeRequest(testKey))
	in.Write(clientFrame(t, true, frame.OpText, "only"))

	conn := &memConn{in: &in}
	err := NewSession(conn, SessionConfig{}).Run()
	assert.ErrorIs(t, err, io.EOF)

	_, texts := replies(t, conn.out.Bytes())
	assert.Equal(t, []string{"Echo: only"}, texts)
}

func TestSessionErrors(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		max   int64
		want  error
	}{
		{
			name:  "invalid utf-8",
			input: clientFrame(t, true, frame.OpText, "\xff\xfe"),
			want:  frame.ErrEncodingViolation,
		},
		{
			name:  "truncated frame",
			input: clientFrame(t, true, frame.OpText, "cut short")[:6],
			want:  frame.ErrStreamTruncated,
		},
		{
			name:  "message too large",
			input: clientFrame(t, true, frame.OpText, strings.Repeat("x", 200)),
			max:   100,
			want:  frame.ErrMessageTooLarge,
		},
		{
			name:  "bad 64-bit length",
			input: []byte{0x81, 0xFF, 0x80, 0, 0, 0, 0, 0, 0, 1},
			want:  frame.ErrProtocolViolation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := append([]byte(upgradeRequest(testKey)), tt.input...)
			conn := &memConn{in: bytes.NewReader(in)}
			sess := NewSession(conn, SessionConfig{MaxMessageSize: tt.max})

			err := sess.Run()
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, StateClosed, sess.State())

			_, texts := replies(t, conn.out.Bytes())
			assert.Empty(t, texts)
		})
	}
}

func TestSessionIdleTimeout(t *testing.T) {
	client, srv := net.Pipe()
	defer client.Close()

	sess := NewSession(srv, SessionConfig{IdleTimeout: 50 * time.Millisecond})
	done := make(chan error, 1)
	go func() {
		done <- sess.Run()
		srv.Close()
	}()

	_, err := client.Write([]byte(upgradeRequest(testKey)))
	require.NoError(t, err)
	br := bufio.NewReader(client)
	lines, err := handshake.ReadLines(br)
	require.NoError(t, err)
	require.Equal(t, "HTTP/1.1 101 Switching Protocols", lines[0])

	select {
	case err := <-done:
		assert.ErrorIs(t, err, os.ErrDeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not time out")
	}
}

func TestSessionOverPipe(t *testing.T) {
	client, srv := net.Pipe()
	defer client.Close()

	sess := NewSession(srv, SessionConfig{})
	done := make(chan error, 1)
	go func() {
		done <- sess.Run()
		srv.Close()
	}()

	_, err := client.Write([]byte(upgradeRequest(testKey)))
	require.NoError(t, err)
	br := bufio.NewReader(client)
	_, err = handshake.ReadLines(br)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return sess.State() == StateEstablished }, time.Second, 5*time.Millisecond)

	dec := frame.NewDecoder(br, 0)
	for _, m := range []string{"ping", "close"} {
		_, err = client.Write(clientFrame(t, true, frame.OpText, m))
		require.NoError(t, err)
		msg, err := dec.ReadMessage()
		require.NoError(t, err)
		if m == "close" {
			assert.Equal(t, "Closing connection. Good bye ;>", string(msg.Payload))
		} else {
			assert.Equal(t, "Echo: ping", string(msg.Payload))
		}
	}

	require.NoError(t, <-done)
	_, err = dec.ReadMessage()
	assert.ErrorIs(t, err, io.EOF)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "awaiting-handshake", StateAwaitingHandshake.String())
	assert.Equal(t, "established", StateEstablished.String())
	assert.Equal(t, "closed", StateClosed.String())
}
