package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tazhate/freebusy/internal/logging"
)

// MCPServer exposes the freebusy HTTP API as MCP tools over stdio.
type MCPServer struct {
	apiURL      string
	apiUsername string
	apiPassword string
	client      *http.Client
	log         zerolog.Logger
}

func NewMCPServer(log zerolog.Logger) *MCPServer {
	apiURL := os.Getenv("FREEBUSY_API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}
	return &MCPServer{
		apiURL:      strings.TrimRight(apiURL, "/"),
		apiUsername: os.Getenv("FREEBUSY_API_USERNAME"),
		apiPassword: os.Getenv("FREEBUSY_API_PASSWORD"),
		client:      &http.Client{Timeout: 30 * time.Second},
		log:         log,
	}
}

// Run serves newline-delimited JSON-RPC requests from r until EOF.
func (s *MCPServer) Run(r io.Reader, w io.Writer) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		var req JSONRPCRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			s.log.Warn().Err(err).Msg("parse request")
			continue
		}
		if req.ID == nil && strings.HasPrefix(req.Method, "notifications/") {
			continue
		}

		out, err := json.Marshal(s.handle(req))
		if err != nil {
			s.log.Error().Err(err).Str("method", req.Method).Msg("encode response")
			continue
		}
		fmt.Fprintln(w, string(out))
	}
	if err := sc.Err(); err != nil {
		s.log.Error().Err(err).Msg("read request")
	}
}

func (s *MCPServer) handle(req JSONRPCRequest) JSONRPCResponse {
	switch req.Method {
	case "initialize":
		return reply(req, InitializeResult{
			ProtocolVersion: protocolVersion,
			Capabilities:    map[string]any{"tools": map[string]any{}},
			ServerInfo:      serverInfo{Name: "freebusy-mcp", Version: "1.0.0"},
		})
	case "initialized":
		return reply(req, nil)
	case "tools/list":
		list := make([]Tool, 0, len(tools))
		for _, t := range tools {
			list = append(list, t.Tool)
		}
		return reply(req, ToolsListResult{Tools: list})
	case "tools/call":
		var params ToolCallParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return replyError(req, codeInvalidParams, "Invalid params")
		}
		tool, ok := findTool(params.Name)
		if !ok {
			return reply(req, textResult("Unknown tool: "+params.Name, true))
		}
		s.log.Debug().Str("tool", params.Name).Msg("tool call")
		return reply(req, textResult(tool.call(s, params.Arguments)))
	default:
		return replyError(req, codeMethodNotFound, "Method not found")
	}
}

func main() {
	// stdout carries the protocol; logs go to stderr
	log := logging.New(os.Getenv("LOG_LEVEL"), os.Stderr, false)
	NewMCPServer(log).Run(os.Stdin, os.Stdout)
}
