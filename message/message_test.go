package message

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestRequestRoundTrip(t *testing.T) {
	req := NewRequest(IntID(7), "tools/call", map[string]any{
		"name":      "search_file",
		"arguments": map[string]any{"words": "MCP"},
	})

	data, err := Marshal(req)
	if err != nil {
		t.Fatal(err)
	}

	decoded, err := ParseRequest(data)
	if err != nil {
		t.Fatalf("round-trip parse failed: %v", err)
	}
	if !decoded.ID.Equal(req.ID) {
		t.Fatalf("id mismatch: sent %s, got %s", req.ID, decoded.ID)
	}
	if decoded.Method != req.Method {
		t.Fatalf("method mismatch: sent %s, got %s", req.Method, decoded.Method)
	}
	if decoded.Params["name"] != "search_file" {
		t.Fatalf("params lost in round trip: %v", decoded.Params)
	}
}

func TestSuccessResponseRoundTrip(t *testing.T) {
	resp, err := NewResponse(StringID("abc"), map[string]any{"answer": 42})
	if err != nil {
		t.Fatal(err)
	}

	data, err := Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}

	decoded, err := ParseResponse(data)
	if err != nil {
		t.Fatalf("round-trip parse failed: %v", err)
	}
	if !decoded.ID.Equal(StringID("abc")) {
		t.Fatalf("id mismatch: got %s", decoded.ID)
	}
	var result map[string]any
	if err := json.Unmarshal(decoded.Result, &result); err != nil {
		t.Fatal(err)
	}
	if result["answer"] != float64(42) {
		t.Fatalf("result mismatch: %v", result)
	}
}

func TestErrorResponseRoundTrip(t *testing.T) {
	resp := NewErrorResponsef(IntID(3), CodeMethodNotFound, "method not found: %s", "nope")

	data, err := Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}

	decoded, err := ParseResponse(data)
	if err != nil {
		t.Fatalf("round-trip parse failed: %v", err)
	}
	if decoded.Error == nil {
		t.Fatal("expect error member")
	}
	if decoded.Error.Code != CodeMethodNotFound {
		t.Fatalf("expect code %d, got %d", CodeMethodNotFound, decoded.Error.Code)
	}
	if decoded.Error.Message != "method not found: nope" {
		t.Fatalf("unexpected message: %s", decoded.Error.Message)
	}
	if len(decoded.Result) != 0 {
		t.Fatal("error response must not carry a result")
	}
}

func TestParseRequestRejectsMissingMethod(t *testing.T) {
	req, err := ParseRequest([]byte(`{"jsonrpc":"2.0","id":1}`))
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("expect ProtocolError, got %v", err)
	}
	if perr.Field != "method" {
		t.Fatalf("expect error naming field method, got %q", perr.Field)
	}
	// The partially decoded request keeps the id, so the caller can answer.
	if req == nil || !req.ID.Equal(IntID(1)) {
		t.Fatal("expect partially decoded request with its id")
	}
}

func TestParseRequestRejectsWrongVersion(t *testing.T) {
	_, err := ParseRequest([]byte(`{"jsonrpc":"1.0","id":1,"method":"ping"}`))
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("expect ProtocolError, got %v", err)
	}
	if perr.Field != "jsonrpc" {
		t.Fatalf("expect error naming field jsonrpc, got %q", perr.Field)
	}
}

func TestParseRequestRejectsInvalidJSON(t *testing.T) {
	_, err := ParseRequest([]byte(`{"jsonrpc":`))
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expect ParseError, got %v", err)
	}
}

func TestParseResponseMutualExclusion(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"neither", `{"jsonrpc":"2.0","id":1}`},
		{"both", `{"jsonrpc":"2.0","id":1,"result":{},"error":{"code":-1,"message":"x"}}`},
	}
	for _, tc := range cases {
		_, err := ParseResponse([]byte(tc.body))
		var perr *ProtocolError
		if !errors.As(err, &perr) {
			t.Fatalf("%s: expect ProtocolError, got %v", tc.name, err)
		}
	}
}

func TestIDForms(t *testing.T) {
	var req Request
	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":"token-9","method":"ping"}`), &req); err != nil {
		t.Fatal(err)
	}
	if !req.ID.Equal(StringID("token-9")) {
		t.Fatalf("string id lost: %s", req.ID)
	}

	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":12,"method":"ping"}`), &req); err != nil {
		t.Fatal(err)
	}
	n, ok := req.ID.Int64()
	if !ok || n != 12 {
		t.Fatalf("integer id lost: %s", req.ID)
	}

	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":null,"method":"shutdown"}`), &req); err != nil {
		t.Fatal(err)
	}
	if !req.ID.IsNull() {
		t.Fatalf("null id lost: %s", req.ID)
	}

	// 7 and "7" are different ids.
	if IntID(7).Equal(StringID("7")) {
		t.Fatal("integer and string ids must not compare equal")
	}
	if IntID(7).Key() == StringID("7").Key() {
		t.Fatal("integer and string ids must not share a map key")
	}
}
