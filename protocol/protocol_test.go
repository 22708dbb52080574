package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payloads := []string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize"}`,
		`{"jsonrpc":"2.0","id":2,"result":{"text":"line one\nline two"}}`, // embedded newline
		`{}`,
		``,
	}

	var buf bytes.Buffer
	for _, p := range payloads {
		if err := Encode(&buf, []byte(p)); err != nil {
			t.Fatal(err)
		}
	}

	r := bufio.NewReader(&buf)
	for _, want := range payloads {
		got, err := Decode(r)
		if err != nil {
			t.Fatalf("decode %q: %v", want, err)
		}
		if string(got) != want {
			t.Fatalf("round trip mismatch: sent %q, got %q", want, got)
		}
	}

	// Stream drained: next read is a clean EOF.
	if _, err := Decode(r); err != io.EOF {
		t.Fatalf("expect io.EOF on drained stream, got %v", err)
	}
}

func TestEncodeHeaderFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, []byte("abc")); err != nil {
		t.Fatal(err)
	}
	want := "Content-Length: 3\r\n\r\nabc"
	if buf.String() != want {
		t.Fatalf("wire format mismatch:\nwant %q\ngot  %q", want, buf.String())
	}
}

func TestDecodeAcceptsBareNewlines(t *testing.T) {
	raw := "Content-Length: 2\n\nhi"
	got, err := Decode(bufio.NewReader(strings.NewReader(raw)))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hi" {
		t.Fatalf("expect hi, got %q", got)
	}
}

func TestDecodeIgnoresUnknownHeaders(t *testing.T) {
	raw := "X-Custom: whatever\r\nContent-Type: application/json\r\nContent-Length: 4\r\n\r\nbody"
	got, err := Decode(bufio.NewReader(strings.NewReader(raw)))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "body" {
		t.Fatalf("expect body, got %q", got)
	}
}

func TestDecodeHeaderCaseInsensitive(t *testing.T) {
	raw := "content-length: 2\r\n\r\nok"
	got, err := Decode(bufio.NewReader(strings.NewReader(raw)))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "ok" {
		t.Fatalf("expect ok, got %q", got)
	}
}

func TestDecodeFramingErrors(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"missing length", "X-Other: 1\r\n\r\nbody"},
		{"non-numeric length", "Content-Length: ten\r\n\r\nbody"},
		{"negative length", "Content-Length: -1\r\n\r\n"},
		{"truncated body", "Content-Length: 100\r\n\r\nshort"},
		{"truncated headers", "Content-Length: 5\r\n"},
		{"oversize length", fmt.Sprintf("Content-Length: %d\r\n\r\n", MaxFrameSize+1)},
	}

	for _, tc := range cases {
		_, err := Decode(bufio.NewReader(strings.NewReader(tc.raw)))
		var fe *FramingError
		if !errors.As(err, &fe) {
			t.Fatalf("%s: expect FramingError, got %v", tc.name, err)
		}
	}
}

func TestDecodeCleanEOF(t *testing.T) {
	_, err := Decode(bufio.NewReader(strings.NewReader("")))
	if err != io.EOF {
		t.Fatalf("expect io.EOF on empty stream, got %v", err)
	}
}

func TestLengthComputedFromPayload(t *testing.T) {
	// The header must always equal the true byte length, including for
	// multi-byte runes.
	payload := []byte(`{"text":"héllo"}`)
	var buf bytes.Buffer
	if err := Encode(&buf, payload); err != nil {
		t.Fatal(err)
	}
	want := fmt.Sprintf("Content-Length: %d", len(payload))
	if !strings.HasPrefix(buf.String(), want) {
		t.Fatalf("expect header %q in %q", want, buf.String())
	}
}
