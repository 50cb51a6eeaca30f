package providers

import (
	"net/http"
	"os"
	"strings"

	"github.com/c360studio/finadvisor/llm"
)

// OllamaProvider implements the OpenAI-compatible API used by Ollama, vLLM
// and the mock-llm fixture server. It shares the OpenAI wire format but has
// a local default URL and needs no credential.
type OllamaProvider struct {
	OpenAIProvider // Embed for shared request/response format
}

func init() {
	llm.RegisterProvider(&OllamaProvider{})
}

// Name returns the provider identifier.
func (o *OllamaProvider) Name() string {
	return "ollama"
}

// RequiredEnv returns ""; local endpoints need no credential.
func (o *OllamaProvider) RequiredEnv() string {
	return ""
}

// BuildURL constructs the chat completions endpoint.
func (o *OllamaProvider) BuildURL(baseURL string) string {
	if baseURL == "" {
		baseURL = "http://localhost:11434/v1"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	if strings.HasSuffix(baseURL, "/chat/completions") {
		return baseURL
	}

	return baseURL + "/chat/completions"
}

// SetHeaders adds a bearer token only when one is configured (vLLM behind a
// gateway, OpenRouter, etc.).
func (o *OllamaProvider) SetHeaders(req *http.Request) {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}
