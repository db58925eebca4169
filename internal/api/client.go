package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	serverClient "github.com/bz888/gab/internal/api/server/client"
	"github.com/bz888/gab/internal/logger"
)

// Client talks to the local gateway. It is the transport half of a chat
// exchange; rendering stays in the ui package.
type Client struct {
	baseURL string
	http    *http.Client
}

var localLogger *logger.Logger

func Init() {
	localLogger = logger.NewLogger("api client")
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{},
	}
}

func (c *Client) ListModels() ([]string, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		localLogger.Error("Failed to create get models request: %s\n", err)
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		localLogger.Error("Failed to perform models request: %s\n", err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		localLogger.Error("Failed to get models: %s\n", resp.Status)
		return nil, errors.New(resp.Status)
	}

	var models []string
	if err := json.NewDecoder(resp.Body).Decode(&models); err != nil {
		localLogger.Error("Failed to decode models response: %s\n", err)
		return nil, err
	}
	return models, nil
}

// Chat starts a generation for requestID and consumes its token stream.
// onHandshake fires as soon as the gateway hands back the task handle, before
// the first token; onToken fires once per streamed token. Chat returns when
// the stream ends, for whatever reason.
func (c *Client) Chat(ctx context.Context, requestID, model, text string, onHandshake func(taskHandle string), onToken func(token string)) error {
	clientReq := serverClient.ChatRequest{RequestID: requestID, Model: model, Text: text}

	requestData, err := json.Marshal(clientReq)
	if err != nil {
		return fmt.Errorf("failed to serialize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewBuffer(requestData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")
	req.Header.Set("Connection", "keep-alive")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			localLogger.Error("Failed to close response body: %s\n\n", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return errors.New(resp.Status)
	}

	if taskHandle := resp.Header.Get("X-Task-ID"); taskHandle != "" && onHandshake != nil {
		onHandshake(taskHandle)
	}

	scanner := bufio.NewScanner(resp.Body)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 512*1024)

	for scanner.Scan() {
		var clientResp serverClient.ChatResponse
		if err := json.Unmarshal(scanner.Bytes(), &clientResp); err != nil {
			localLogger.Error("Failed to decode response: %s\n\n", err)
			continue
		}
		if onToken != nil {
			onToken(clientResp.ProcessedText)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read stream: %w", err)
	}
	return nil
}

// CancelTask asks the gateway to abort a running task. A 404 means the task
// already finished, which is the expected outcome of a stale cancel and not
// an error. Satisfies coordinator.Canceler.
func (c *Client) CancelTask(taskHandle string) error {
	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/cancel/"+taskHandle, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		return errors.New(resp.Status)
	}
}
