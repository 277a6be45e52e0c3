package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"yogabot/internal/domain"
)

const chatCompletionBody = `{
	"id": "chatcmpl-1",
	"object": "chat.completion",
	"created": 1700000000,
	"model": "gpt-4o",
	"choices": [{
		"index": 0,
		"finish_reason": "stop",
		"message": {"role": "assistant", "content": "Try child's pose."}
	}],
	"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
}`

func TestCompletion_Azure(t *testing.T) {
	var gotPath, gotVersion, gotKey string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotVersion = r.URL.Query().Get("api-version")
		gotKey = r.Header.Get("Api-Key")
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, chatCompletionBody)
	}))
	defer srv.Close()

	c, err := NewCompletion(CompletionConfig{
		Azure:      true,
		Endpoint:   srv.URL,
		APIKey:     "azure-key",
		APIVersion: "2024-06-01",
		Model:      "yoga-gpt",
		HTTPClient: srv.Client(),
		Logger:     testLogger(),
	})
	if err != nil {
		t.Fatalf("new completion: %v", err)
	}

	out, err := c.CompleteText(context.Background(), domain.CompletionRequest{
		SystemPrompt: "You are a yoga bot.",
		UserPrompt:   "Query: hips",
		MaxTokens:    200,
		Temperature:  0.7,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out != "Try child's pose." {
		t.Fatalf("unexpected reply %q", out)
	}
	if !strings.HasSuffix(gotPath, "/openai/deployments/yoga-gpt/chat/completions") {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotVersion != "2024-06-01" {
		t.Errorf("expected api-version 2024-06-01, got %q", gotVersion)
	}
	if gotKey != "azure-key" {
		t.Errorf("expected Api-Key header, got %q", gotKey)
	}
	if gotBody["max_tokens"] != float64(200) {
		t.Errorf("expected max_tokens=200, got %v", gotBody["max_tokens"])
	}
	if gotBody["temperature"] != 0.7 {
		t.Errorf("expected temperature=0.7, got %v", gotBody["temperature"])
	}
	msgs, _ := gotBody["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected system+user messages, got %d", len(msgs))
	}
}

func TestCompletion_OpenAICompatible(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, chatCompletionBody)
	}))
	defer srv.Close()

	c, err := NewCompletion(CompletionConfig{
		Endpoint:   srv.URL + "/v1",
		APIKey:     "sk-test",
		Model:      "gpt-4o-mini",
		HTTPClient: srv.Client(),
		Logger:     testLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.CompleteText(context.Background(), domain.CompletionRequest{UserPrompt: "hi"}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
	if gotPath != "/v1/chat/completions" {
		t.Errorf("unexpected path %q", gotPath)
	}
}

func TestCompletion_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	c, _ := NewCompletion(CompletionConfig{
		Endpoint:   srv.URL,
		APIKey:     "sk-test",
		Model:      "gpt-4o-mini",
		HTTPClient: srv.Client(),
		Logger:     testLogger(),
	})
	if _, err := c.CompleteText(context.Background(), domain.CompletionRequest{UserPrompt: "hi"}); err == nil {
		t.Fatal("expected error for 401")
	}
}

func TestCompletion_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`)
	}))
	defer srv.Close()

	c, _ := NewCompletion(CompletionConfig{
		Endpoint:   srv.URL,
		APIKey:     "sk-test",
		Model:      "m",
		HTTPClient: srv.Client(),
		Logger:     testLogger(),
	})
	if _, err := c.CompleteText(context.Background(), domain.CompletionRequest{UserPrompt: "hi"}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestNewCompletion_Validation(t *testing.T) {
	if _, err := NewCompletion(CompletionConfig{Model: "m"}); err == nil {
		t.Error("expected error for missing key")
	}
	if _, err := NewCompletion(CompletionConfig{APIKey: "k"}); err == nil {
		t.Error("expected error for missing model")
	}
	if _, err := NewCompletion(CompletionConfig{Azure: true, APIKey: "k", Model: "m"}); err == nil {
		t.Error("expected error for azure without endpoint")
	}
}
