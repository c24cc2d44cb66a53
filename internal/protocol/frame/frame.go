package frame

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

var (
	ErrFrameTooLarge    = errors.New("frame: line exceeds limit")
	ErrEmbeddedNewline  = errors.New("frame: payload contains a line break")
	ErrTruncated        = errors.New("frame: connection closed mid-line")
	ErrEmptyPayloadSent = errors.New("frame: empty payload")
)

// Limits constrains line decode/encode memory use.
type Limits struct {
	MaxLineBytes int
}

func DefaultLimits() Limits {
	return Limits{MaxLineBytes: 1024 * 1024}
}

// ReadFrame reads one newline-terminated line and returns it without the
// terminator. A trailing carriage return is dropped.
func ReadFrame(r *bufio.Reader, limits Limits) (string, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		line = append(line, chunk...)
		if limits.MaxLineBytes > 0 && len(line) > limits.MaxLineBytes+1 {
			return "", ErrFrameTooLarge
		}
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return "", ErrTruncated
		}
		return "", err
	}
	s := strings.TrimSuffix(string(line), "\n")
	s = strings.TrimSuffix(s, "\r")
	if limits.MaxLineBytes > 0 && len(s) > limits.MaxLineBytes {
		return "", ErrFrameTooLarge
	}
	return s, nil
}

// WriteFrame writes payload followed by a single newline.
func WriteFrame(w io.Writer, payload string, limits Limits) error {
	if payload == "" {
		return ErrEmptyPayloadSent
	}
	if strings.ContainsAny(payload, "\r\n") {
		return ErrEmbeddedNewline
	}
	if limits.MaxLineBytes > 0 && len(payload) > limits.MaxLineBytes {
		return ErrFrameTooLarge
	}
	_, err := io.WriteString(w, payload+"\n")
	return err
}

// Flatten joins a multi-line script into one line, trimming each line and
// dropping blanks, so it can travel as a single frame.
func Flatten(script string) string {
	lines := strings.Split(script, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, " ")
}
