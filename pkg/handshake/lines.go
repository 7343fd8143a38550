package handshake

import (
	"bufio"
	"bytes"
	"io"

	"github.com/pkg/errors"
)

const (
	maxLines   = 100
	maxLineLen = 8 << 10
)

// ReadLines reads CRLF- or LF-terminated lines from br until an empty line.
// The empty line is consumed but not returned. br keeps any bytes that
// follow it, so the same reader must be handed to the frame decoder.
func ReadLines(br *bufio.Reader) ([]string, error) {
	var lines []string
	for {
		line, err := readLine(br)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errors.Wrapf(ErrStreamTruncated, "after %d lines", len(lines))
			}
			return nil, err
		}
		if line == "" {
			return lines, nil
		}
		if len(lines) == maxLines {
			return nil, ErrHeaderTooLarge
		}
		lines = append(lines, line)
	}
}

// readLine returns one line without its terminator. The length cap is
// checked on every buffered chunk, so an unterminated line is rejected
// after roughly maxLineLen bytes.
func readLine(br *bufio.Reader) (string, error) {
	var line []byte
	for {
		chunk, err := br.ReadSlice('\n')
		if len(line)+len(chunk) > maxLineLen+2 {
			return "", ErrHeaderTooLarge
		}
		line = append(line, chunk...)
		if err == bufio.ErrBufferFull {
			continue
		}
		if err != nil {
			if err == io.EOF {
				return "", io.EOF
			}
			return "", errors.Wrap(err, "handshake: reading request")
		}
		break
	}
	line = bytes.TrimSuffix(line, []byte("\n"))
	line = bytes.TrimSuffix(line, []byte("\r"))
	if len(line) > maxLineLen {
		return "", ErrHeaderTooLarge
	}
	return string(line), nil
}
