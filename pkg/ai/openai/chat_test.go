package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func fakeChatServer(t *testing.T, content string, seen *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if seen != nil {
			_ = json.Unmarshal(body, seen)
		}
		resp := map[string]any{
			"id":      "cmpl-1",
			"object":  "chat.completion",
			"created": 0,
			"model":   "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestGenerateCompletion(t *testing.T) {
	srv := fakeChatServer(t, "acme corp phoenix history", nil)
	defer srv.Close()

	c := NewGraphOpenAIClient(NewGraphOpenAIClientParams{
		CompletionModel: "test-model",
		ChatURL:         srv.URL + "/v1/",
		ChatKey:         "test",
	})

	got, err := c.GenerateCompletion(context.Background(), "query for Acme Corp")
	if err != nil {
		t.Fatalf("GenerateCompletion() error = %v", err)
	}
	if got != "acme corp phoenix history" {
		t.Fatalf("GenerateCompletion() = %q", got)
	}
	if m := c.GetMetrics(); m.TotalTokens != 15 || m.InputTokens != 10 {
		t.Fatalf("metrics = %+v", m)
	}
	c.ResetMetrics()
	if m := c.GetMetrics(); m.TotalTokens != 0 {
		t.Fatalf("metrics after reset = %+v", m)
	}
}

func TestGenerateCompletionWithFormat(t *testing.T) {
	var seen map[string]any
	srv := fakeChatServer(t, `{"entities":[{"name":"Acme Corp"}]}`, &seen)
	defer srv.Close()

	c := NewGraphOpenAIClient(NewGraphOpenAIClientParams{
		ExtractionModel: "extract-model",
		ChatURL:         srv.URL + "/v1/",
		ChatKey:         "test",
	})

	var out struct {
		Entities []struct {
			Name string `json:"name"`
		} `json:"entities"`
	}
	if err := c.GenerateCompletionWithFormat(context.Background(), "graph", "test", "extract", &out); err != nil {
		t.Fatalf("GenerateCompletionWithFormat() error = %v", err)
	}
	if len(out.Entities) != 1 || out.Entities[0].Name != "Acme Corp" {
		t.Fatalf("out = %+v", out)
	}
	if seen["model"] != "extract-model" {
		t.Fatalf("request model = %v", seen["model"])
	}
	format, _ := seen["response_format"].(map[string]any)
	if format["type"] != "json_schema" {
		t.Fatalf("response_format = %v", seen["response_format"])
	}
}
