package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/securebank/fraudcall/internal/agent"
	"github.com/securebank/fraudcall/internal/fraud"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("key", srv.URL+"/v1", "test-model", fraud.ToolDefinitions())
}

func TestGenerate_TextReply(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if _, ok := req["tools"]; !ok {
			t.Errorf("expected tools advertised in request")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"  Hello Jane.  "}}]}`))
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	reply, err := c.Generate(ctx, []agent.Turn{
		{Role: agent.RoleSystem, Text: "sys"},
		{Role: agent.RoleUser, Text: "hi"},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if reply.Text != "Hello Jane." {
		t.Fatalf("text mismatch: %q", reply.Text)
	}
	if len(reply.ToolCalls) != 0 {
		t.Fatalf("unexpected tool calls")
	}
}

func TestGenerate_ToolCallReply(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"finish_reason":"tool_calls","message":{"role":"assistant","content":"","tool_calls":[{"id":"call_1","type":"function","function":{"name":"load_fraud_case","arguments":"{\"username\":\"Jane Doe\"}"}}]}}]}`))
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	reply, err := c.Generate(ctx, []agent.Turn{{Role: agent.RoleUser, Text: "Jane Doe"}})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(reply.ToolCalls) != 1 {
		t.Fatalf("expected one tool call, got %d", len(reply.ToolCalls))
	}
	tc := reply.ToolCalls[0]
	if tc.ID != "call_1" || tc.Name != "load_fraud_case" {
		t.Fatalf("tool call mismatch: %+v", tc)
	}
	var args struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil || args.Username != "Jane Doe" {
		t.Fatalf("arguments mismatch: %q", tc.Arguments)
	}
}

func TestGenerate_ToolResultRoundTrip(t *testing.T) {
	var sawToolMsg bool
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role       string `json:"role"`
				ToolCallID string `json:"tool_call_id"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			for _, m := range req.Messages {
				if m.Role == "tool" && m.ToolCallID == "call_1" {
					sawToolMsg = true
				}
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}]}`))
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := c.Generate(ctx, []agent.Turn{
		{Role: agent.RoleUser, Text: "Jane Doe"},
		{Role: agent.RoleAssistant, ToolCalls: []agent.ToolCall{{ID: "call_1", Name: "load_fraud_case", Arguments: "{}"}}},
		{Role: agent.RoleTool, Text: "Case found", ToolCallID: "call_1"},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !sawToolMsg {
		t.Fatalf("tool result message not forwarded to the API")
	}
}

func TestGenerate_Failures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"status_non_2xx", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500); _, _ = w.Write([]byte("oops")) }},
		{"empty_choices", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"choices":[]}`))
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, tc.handler)
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if _, err := c.Generate(ctx, []agent.Turn{{Role: agent.RoleUser, Text: "hi"}}); err == nil {
				t.Fatalf("expected error; got nil")
			}
		})
	}
}
