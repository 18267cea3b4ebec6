package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// envelope is the HTTP API response body.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (s *MCPServer) get(path string, query url.Values) (string, bool) {
	return s.call(http.MethodGet, path+"?"+query.Encode(), nil)
}

func (s *MCPServer) post(path string, body any) (string, bool) {
	return s.call(http.MethodPost, path, body)
}

func (s *MCPServer) delete(path string, query url.Values) (string, bool) {
	return s.call(http.MethodDelete, path+"?"+query.Encode(), nil)
}

// call performs one API request and renders the result as tool text.
// The bool reports a failed call.
func (s *MCPServer) call(method, path string, body any) (string, bool) {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Sprintf("Error encoding request: %v", err), true
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, s.apiURL+path, payload)
	if err != nil {
		return fmt.Sprintf("Error creating request: %v", err), true
	}
	req.SetBasicAuth(s.apiUsername, s.apiPassword)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Sprintf("Error making request: %v", err), true
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Sprintf("Error reading response: %v", err), true
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return string(raw), resp.StatusCode >= 400
	}
	if !env.Success {
		if len(env.Data) > 0 {
			return fmt.Sprintf("API Error: %s\n%s", env.Error, env.Data), true
		}
		return "API Error: " + env.Error, true
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, env.Data, "", "  "); err != nil {
		return string(env.Data), false
	}
	return pretty.String(), false
}
