package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bz888/gab/internal/logger"
)

// OllamaClient represents a client for the Ollama API
type OllamaClient struct {
	Client
}

type OllamaClientInterface interface {
	GetModels() ([]OllamaModel, error)
	Chat(ctx context.Context, req *ServerChatRequest, fn func([]byte) error) error
}

// NewOllamaClient creates a new Ollama API client for the given host
func NewOllamaClient(host string) *OllamaClient {
	return &OllamaClient{
		Client: *NewClient(ClientConfig{
			Scheme:     "http",
			Host:       host,
			ModelsPath: "/api/tags",
			ChatPath:   "/api/chat",
		}),
	}
}

type OllamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type OllamaAPIResponse struct {
	Message OllamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

type OllamaModelsResponse struct {
	Models []OllamaModel `json:"models"`
}

type OllamaModel struct {
	Name       string       `json:"name"`
	ModifiedAt time.Time    `json:"modified_at"`
	Size       int64        `json:"size"`
	Digest     string       `json:"digest"`
	Details    ModelDetails `json:"details"`
}

type Families []string

// ModelDetails Details represents the details of a model.
type ModelDetails struct {
	Format            string   `json:"format"`
	Family            string   `json:"family"`
	Families          Families `json:"families"`
	ParameterSize     string   `json:"parameter_size"`
	QuantizationLevel string   `json:"quantization_level"`
}

func (c *OllamaClient) GetModels() ([]OllamaModel, error) {
	requestURL := c.GetModelsURL()

	req, err := http.NewRequest(http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("failed to fetch data: " + resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var response OllamaModelsResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, err
	}

	AddOllamaModelCache(response.Models)

	return response.Models, nil
}

func AddOllamaModelCache(ollamaModels []OllamaModel) {
	for _, model := range ollamaModels {
		CacheModels[model.Name] = "ollama"
	}
}

// Chat streams an Ollama chat completion, invoking fn once per NDJSON line.
// Canceling ctx aborts the upstream request.
func (c *OllamaClient) Chat(ctx context.Context, req *ServerChatRequest, fn func([]byte) error) error {
	localLogger := logger.NewLogger("ollama stream chat")

	var buf *bytes.Buffer
	if req != nil {
		bts, err := json.Marshal(req)
		if err != nil {
			return err
		}
		buf = bytes.NewBuffer(bts)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.GetChatURL(), buf)
	if err != nil {
		localLogger.Error("Failed to request on ollama chat:", err)
		return err
	}

	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/x-ndjson")
	response, err := c.http.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	scanner := bufio.NewScanner(response.Body)
	for scanner.Scan() {
		if err := fn(scanner.Bytes()); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}

	return nil
}

// UnmarshalJSON handles the custom unmarshalling for Families.
func (f *Families) UnmarshalJSON(data []byte) error {
	// If the JSON data is "null", return an empty Families slice.
	if string(data) == "null" {
		*f = Families{}
		return nil
	}

	var families []string
	if err := json.Unmarshal(data, &families); err != nil {
		return err
	}
	*f = Families(families)
	return nil
}
