// Package main provides a TCP server for AtlasDB.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/nickyhof/AtlasDB/db"
)

// Request is one query from the client. Params are passed to Execute
// untouched, so an INSERT's row arrives as its raw JSON object.
type Request struct {
	Query  string            `json:"query"`
	Params []json.RawMessage `json:"params,omitempty"`
}

// Args converts the request params into Execute arguments.
func (r Request) Args() []any {
	args := make([]any, len(r.Params))
	for i, param := range r.Params {
		args[i] = param
	}
	return args
}

// AuthResponse is the single row returned by a successful AUTH command.
type AuthResponse struct {
	Authenticated bool   `json:"authenticated"`
	Identity      string `json:"identity"`
	Session       string `json:"session"`
	ExpiresIn     int    `json:"expires_in,omitempty"`
}

// EncodeResponse serializes a Result to JSON with a newline.
func EncodeResponse(result db.Result) ([]byte, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// DecodeRequest parses one request line. A line that is not a JSON object
// is taken as a bare query without params.
func DecodeRequest(line []byte) (Request, error) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Request{Query: string(trimmed)}, nil
	}

	var req Request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return Request{}, err
	}
	if strings.TrimSpace(req.Query) == "" {
		return Request{}, errors.New("request has no query")
	}
	return req, nil
}
