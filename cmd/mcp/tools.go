package main

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const timeHelp = "minutes since the Unix epoch or YYYY-MM-DDTHH:MM (UTC)"

// args are the arguments of one tool call.
type args map[string]any

func (a args) str(name string) string {
	switch v := a[name].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		// JSON numbers decode as float64; keep large instants out of e-notation.
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

type toolHandler func(s *MCPServer, a args) (string, bool)

type toolDef struct {
	Tool
	call toolHandler
}

func object(required []string, props map[string]Property) InputSchema {
	return InputSchema{Type: "object", Properties: props, Required: required}
}

var userProp = Property{Type: "string", Description: "Username"}

var tools = []toolDef{
	{
		Tool: Tool{
			Name:        "freebusy_list_events",
			Description: "List a user's events sorted by end time.",
			InputSchema: object([]string{"user"}, map[string]Property{"user": userProp}),
		},
		call: func(s *MCPServer, a args) (string, bool) {
			return s.get("/api/events", url.Values{"user": {a.str("user")}})
		},
	},
	{
		Tool: Tool{
			Name:        "freebusy_add_event",
			Description: "Add an event. Rejected if it overlaps an existing event of the same user.",
			InputSchema: object([]string{"user", "name", "start", "end"}, map[string]Property{
				"user":  userProp,
				"name":  {Type: "string", Description: "Event name"},
				"start": {Type: "string", Description: "Start, " + timeHelp},
				"end":   {Type: "string", Description: "End (exclusive), " + timeHelp},
				"days":  {Type: "string", Description: "Optional weekdays, comma separated: mon,tue,wed,thur,fri,sat,sun"},
			}),
		},
		call: func(s *MCPServer, a args) (string, bool) {
			body := map[string]any{
				"user":  a.str("user"),
				"name":  a.str("name"),
				"start": a.str("start"),
				"end":   a.str("end"),
			}
			if days := a.str("days"); days != "" {
				body["days"] = strings.Split(days, ",")
			}
			return s.post("/api/events", body)
		},
	},
	{
		Tool: Tool{
			Name:        "freebusy_delete_event",
			Description: "Delete one of a user's events by ID.",
			InputSchema: object([]string{"user", "event_id"}, map[string]Property{
				"user":     userProp,
				"event_id": {Type: "string", Description: "Event ID (number)"},
			}),
		},
		call: func(s *MCPServer, a args) (string, bool) {
			return s.delete("/api/event/"+url.PathEscape(a.str("event_id")), url.Values{"user": {a.str("user")}})
		},
	},
	{
		Tool: Tool{
			Name:        "freebusy_free_time",
			Description: "Find windows in which all given users are free.",
			InputSchema: object([]string{"users", "from", "to"}, map[string]Property{
				"users": {Type: "string", Description: "Comma separated usernames"},
				"from":  {Type: "string", Description: "Range start, " + timeHelp},
				"to":    {Type: "string", Description: "Range end, " + timeHelp},
			}),
		},
		call: func(s *MCPServer, a args) (string, bool) {
			return s.get("/api/free", url.Values{
				"users": {a.str("users")},
				"from":  {a.str("from")},
				"to":    {a.str("to")},
			})
		},
	},
	{
		Tool: Tool{
			Name:        "freebusy_list_friends",
			Description: "List a user's friends.",
			InputSchema: object([]string{"user"}, map[string]Property{"user": userProp}),
		},
		call: func(s *MCPServer, a args) (string, bool) {
			return s.get("/api/friends", url.Values{"user": {a.str("user")}})
		},
	},
}

func findTool(name string) (toolDef, bool) {
	for _, t := range tools {
		if t.Name == name {
			return t, true
		}
	}
	return toolDef{}, false
}
