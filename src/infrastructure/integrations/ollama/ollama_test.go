package ollama_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"packsight/src/infrastructure/integrations/ollama"
)

func TestGenerateStreamsResponse(t *testing.T) {
	var got ollama.GenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/generate" {
			t.Errorf("path = %q, want /generate", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Write([]byte(`{"model":"phi4","response":"Hel"}` + "\n"))
		w.Write([]byte(`{"model":"phi4","response":"lo"}` + "\n"))
		w.Write([]byte(`{"model":"phi4","response":"","done":true}` + "\n"))
	}))
	defer srv.Close()

	c := ollama.NewClient(srv.URL, srv.Client())
	out, err := c.Generate(context.Background(), "phi4", "be terse", "say hello", map[string]interface{}{"temperature": 0.7})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if out != "Hello" {
		t.Errorf("Generate() = %q, want assembled stream Hello", out)
	}
	if got.Model != "phi4" || got.System != "be terse" || got.Prompt != "say hello" {
		t.Errorf("request = %+v, want model/system/prompt passed through", got)
	}
	if !got.Stream {
		t.Error("request Stream = false, want true")
	}
}

func TestGenerateTruncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":"partial","truncated":true}` + "\n"))
	}))
	defer srv.Close()

	c := ollama.NewClient(srv.URL, srv.Client())
	_, err := c.Generate(context.Background(), "phi4", "", "prompt", nil)

	var truncated *ollama.ErrTruncated
	if !errors.As(err, &truncated) {
		t.Errorf("Generate() error = %v, want ErrTruncated", err)
	}
}

func TestGenerateErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := ollama.NewClient(srv.URL, srv.Client())
	_, err := c.Generate(context.Background(), "phi4", "", "prompt", nil)
	if err == nil {
		t.Fatal("Generate() error = nil, want status error")
	}
	if !strings.Contains(err.Error(), "model not found") {
		t.Errorf("Generate() error = %v, want server body in message", err)
	}
}

func TestGenerateWithImagesEncodesBase64(t *testing.T) {
	var got ollama.GenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"response":"a green tin","done":true}` + "\n"))
	}))
	defer srv.Close()

	image := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a}
	c := ollama.NewClient(srv.URL, srv.Client())
	out, err := c.GenerateWithImages(context.Background(), "llama3.2-vision", "describe", "what is this", [][]byte{image}, nil)
	if err != nil {
		t.Fatalf("GenerateWithImages() error = %v", err)
	}

	if out != "a green tin" {
		t.Errorf("GenerateWithImages() = %q, want a green tin", out)
	}
	if len(got.Images) != 1 || got.Images[0] != base64.StdEncoding.EncodeToString(image) {
		t.Errorf("request images = %v, want base64 of the raw bytes", got.Images)
	}
}
