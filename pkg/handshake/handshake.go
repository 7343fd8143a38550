// Package handshake implements the server half of the HTTP upgrade that
// precedes framed messaging: parsing the request header lines and building
// the 101 response from the client's Sec-WebSocket-Key.
package handshake

import (
	"crypto/sha1"
	"encoding/base64"
	"net/textproto"
	"strings"

	"github.com/pkg/errors"
)

// GUID is appended to the client key before hashing. It is fixed by the
// protocol.
const GUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

var (
	ErrMissingHeader   = errors.New("handshake: missing Sec-WebSocket-Key header")
	ErrHeaderTooLarge  = errors.New("handshake: request header too large")
	ErrStreamTruncated = errors.New("handshake: stream ended before end of request")
)

// Request is a parsed upgrade request. Header keys are canonicalised once
// at parse time; repeated headers keep every value in arrival order.
type Request struct {
	// RequestLine is the leading "GET /path HTTP/1.1" line, if one was sent.
	RequestLine string
	Header      textproto.MIMEHeader
}

// ParseRequest builds a Request from raw header lines. A first line that
// does not look like "Name: Value" is taken as the request line; later
// lines without a colon are ignored.
func ParseRequest(lines []string) *Request {
	req := &Request{Header: make(textproto.MIMEHeader, len(lines))}
	for i, line := range lines {
		name, value, ok := strings.Cut(line, ":")
		if !ok || (i == 0 && strings.Contains(line, " HTTP/")) {
			if i == 0 {
				req.RequestLine = line
			}
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		req.Header.Add(name, strings.TrimSpace(value))
	}
	return req
}

// Key returns the first Sec-WebSocket-Key value.
func (r *Request) Key() (string, error) {
	key := r.Header.Get("Sec-WebSocket-Key")
	if key == "" {
		return "", ErrMissingHeader
	}
	return key, nil
}

// AcceptKey derives the Sec-WebSocket-Accept token for a client key.
func AcceptKey(clientKey string) string {
	sum := sha1.Sum([]byte(clientKey + GUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Response builds the complete 101 response for req. Nothing is returned
// unless the whole response could be built, so a failed handshake never
// results in a partial write.
func Response(req *Request) ([]byte, error) {
	key, err := req.Key()
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("HTTP/1.1 101 Switching Protocols\r\n")
	sb.WriteString("Upgrade: websocket\r\n")
	sb.WriteString("Connection: Upgrade\r\n")
	sb.WriteString("Sec-WebSocket-Accept: ")
	sb.WriteString(AcceptKey(key))
	sb.WriteString("\r\n\r\n")
	return []byte(sb.String()), nil
}

// Respond parses lines and returns the 101 response for them.
func Respond(lines []string) ([]byte, error) {
	return Response(ParseRequest(lines))
}
