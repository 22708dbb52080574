// Package protocol implements the Content-Length frame codec.
//
// It solves TCP's sticky packet problem with header-based length framing:
// the sender declares the exact byte count of the JSON body, the receiver
// reads headers until a blank line, then reads exactly that many bytes.
//
// Frame format:
//
//	Content-Length: <decimal byte count>\r\n
//	\r\n
//	<JSON body, exactly Content-Length bytes>
//
// Bare "\n" line endings are accepted on decode. Header lines other than
// Content-Length are tolerated and ignored. Length framing is used instead
// of newline-delimited JSON because a JSON body may legally contain embedded
// newlines; the declared length is unambiguous regardless of body content.
package protocol

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// MaxFrameSize caps the declared body length. A peer announcing more than
// this is treated as a framing violation rather than an allocation request.
const MaxFrameSize = 16 << 20

const headerContentLength = "content-length"

// NewReader wraps a stream for Decode. Decode needs buffered line reads;
// callers must reuse one reader per connection so no buffered bytes are lost.
func NewReader(r io.Reader) *bufio.Reader {
	return bufio.NewReader(r)
}

// FramingError reports a malformed or truncated frame: a missing, non-numeric,
// or negative Content-Length, or a stream that closed before the declared byte
// count arrived. It is always fatal to the connection, never to the process.
type FramingError struct {
	Reason string
	Err    error
}

func (e *FramingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("framing error: %s: %v", e.Reason, e.Err)
	}
	return "framing error: " + e.Reason
}

func (e *FramingError) Unwrap() error { return e.Err }

// Encode writes one complete frame to w. The Content-Length value is always
// computed from len(payload), never supplied by the caller, so the header can
// never disagree with the body.
//
// The caller must hold a write lock if multiple goroutines share the same
// writer, otherwise frames will interleave and corrupt the stream.
func Encode(w io.Writer, payload []byte) error {
	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(payload))
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	return nil
}

// Decode reads one complete frame from r and returns the body bytes.
//
// It reads header lines until a blank line, parses Content-Length, then uses
// io.ReadFull to read exactly that many body bytes. A clean end of stream
// before any header byte returns io.EOF untouched, so the connection loop can
// distinguish an orderly close from a truncated frame; every other shortfall
// is a *FramingError.
func Decode(r *bufio.Reader) ([]byte, error) {
	length := -1
	first := true
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if err == io.EOF && first && line == "" {
				return nil, io.EOF
			}
			return nil, &FramingError{Reason: "stream closed mid-header", Err: err}
		}
		first = false

		// Accept both \r\n and bare \n terminators.
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break // end of headers
		}

		key, value, found := strings.Cut(line, ":")
		if !found {
			continue // tolerated for future extensibility
		}
		if strings.ToLower(strings.TrimSpace(key)) != headerContentLength {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return nil, &FramingError{Reason: fmt.Sprintf("non-numeric Content-Length %q", strings.TrimSpace(value))}
		}
		if n < 0 {
			return nil, &FramingError{Reason: fmt.Sprintf("negative Content-Length %d", n)}
		}
		length = n
	}

	if length < 0 {
		return nil, &FramingError{Reason: "missing Content-Length header"}
	}
	if length > MaxFrameSize {
		return nil, &FramingError{Reason: fmt.Sprintf("declared length %d exceeds limit %d", length, MaxFrameSize)}
	}

	// Read exactly length bytes. ReadFull guarantees no partial reads slip
	// through as a short body.
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, &FramingError{Reason: fmt.Sprintf("stream closed before %d body bytes arrived", length), Err: err}
	}
	return body, nil
}
