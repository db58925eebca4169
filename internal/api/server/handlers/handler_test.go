package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bz888/gab/internal/api/server/client"
	"github.com/bz888/gab/internal/api/server/push"
	"github.com/bz888/gab/internal/api/server/tasks"
)

type MockOpenAIClient struct {
	mock.Mock
}

func (m *MockOpenAIClient) GetModels() ([]client.OpenAIModel, error) {
	args := m.Called()
	return args.Get(0).([]client.OpenAIModel), args.Error(1)
}

func (m *MockOpenAIClient) Chat(ctx context.Context, req *client.OpenAIChatRequest, fn func([]byte) error) error {
	return nil
}

// stubOllamaClient feeds canned NDJSON frames to the chat handler. With
// blockUntilCancel set it hangs after the frames like a long generation,
// until the handler's context is canceled.
type stubOllamaClient struct {
	chunks           []string
	blockUntilCancel bool
}

func (s *stubOllamaClient) GetModels() ([]client.OllamaModel, error) {
	return nil, nil
}

func (s *stubOllamaClient) Chat(ctx context.Context, req *client.ServerChatRequest, fn func([]byte) error) error {
	for _, chunk := range s.chunks {
		frame, err := json.Marshal(client.OllamaAPIResponse{
			Message: client.OllamaMessage{Role: client.RoleAssistant, Content: chunk},
		})
		if err != nil {
			return err
		}
		if err := fn(frame); err != nil {
			return err
		}
	}
	if s.blockUntilCancel {
		<-ctx.Done()
		return ctx.Err()
	}
	return fn([]byte(`{"message":{"role":"assistant","content":""},"done":true}`))
}

type gatewayFixture struct {
	srv      *httptest.Server
	registry *tasks.Registry
	events   chan push.Event
}

func newGatewayFixture(t *testing.T, ollamaClient client.OllamaClientInterface) *gatewayFixture {
	t.Helper()

	ChatHistory = make([]client.ServerChatMessage, 0)
	client.CacheModels = map[string]string{"llama3:latest": "ollama"}

	registry := tasks.NewRegistry()
	hub := push.NewHub()
	handler := NewHandler(nil, ollamaClient, registry, hub)

	mux := http.NewServeMux()
	mux.HandleFunc("/chat", handler.ChatHandler)
	mux.HandleFunc("/cancel/", handler.CancelHandler)
	mux.HandleFunc("/events", handler.EventsHandler)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	events := make(chan push.Event, 16)
	go func() {
		for {
			var event push.Event
			if err := conn.ReadJSON(&event); err != nil {
				close(events)
				return
			}
			events <- event
		}
	}()

	return &gatewayFixture{srv: srv, registry: registry, events: events}
}

func (f *gatewayFixture) waitForEvent(t *testing.T) push.Event {
	t.Helper()
	select {
	case event := <-f.events:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("no push event arrived")
		return push.Event{}
	}
}

func postChat(t *testing.T, srv *httptest.Server, requestID string) *http.Response {
	t.Helper()
	body, err := json.Marshal(client.ChatRequest{
		RequestID: requestID,
		Text:      "hello there",
		Model:     "llama3:latest",
	})
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/chat", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestChatStreamsTokensAndPublishesCompleted(t *testing.T) {
	fixture := newGatewayFixture(t, &stubOllamaClient{chunks: []string{"Hello", " world"}})

	resp := postChat(t, fixture.srv, "m1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Task-ID"), "handshake must return a task handle")

	var got string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var chatResp client.ChatResponse
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &chatResp))
		got += chatResp.ProcessedText
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, "Hello world", got)

	event := fixture.waitForEvent(t)
	assert.Equal(t, push.EventCompleted, event.Event)
	assert.Equal(t, "m1", event.RequestID)

	require.Eventually(t, func() bool {
		return fixture.registry.Count() == 0
	}, time.Second, 5*time.Millisecond)

	// Both sides of the exchange made it into the history.
	require.Len(t, ChatHistory, 2)
	assert.Equal(t, client.RoleUser, ChatHistory[0].Role)
	assert.Equal(t, client.RoleAssistant, ChatHistory[1].Role)
	assert.Equal(t, "Hello world", ChatHistory[1].Content)
}

func TestConcurrentChatsRecordBothExchanges(t *testing.T) {
	fixture := newGatewayFixture(t, &stubOllamaClient{chunks: []string{"ok"}})

	var wg sync.WaitGroup
	for _, requestID := range []string{"m1", "m2"} {
		wg.Add(1)
		go func(requestID string) {
			defer wg.Done()
			body, err := json.Marshal(client.ChatRequest{
				RequestID: requestID,
				Text:      "hello there",
				Model:     "llama3:latest",
			})
			if err != nil {
				t.Error(err)
				return
			}
			resp, err := http.Post(fixture.srv.URL+"/chat", "application/json", bytes.NewReader(body))
			if err != nil {
				t.Error(err)
				return
			}
			defer resp.Body.Close()
			// Draining the stream means the handler ran to completion.
			io.Copy(io.Discard, resp.Body)
		}(requestID)
	}
	wg.Wait()

	fixture.waitForEvent(t)
	fixture.waitForEvent(t)

	require.Len(t, ChatHistory, 4)
	var users, assistants int
	for _, msg := range ChatHistory {
		switch msg.Role {
		case client.RoleUser:
			users++
		case client.RoleAssistant:
			assistants++
		}
	}
	assert.Equal(t, 2, users)
	assert.Equal(t, 2, assistants)
}

func TestCancelAbortsChatAndPublishesCanceled(t *testing.T) {
	fixture := newGatewayFixture(t, &stubOllamaClient{
		chunks:           []string{"Hel"},
		blockUntilCancel: true,
	})

	resp := postChat(t, fixture.srv, "m1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	taskID := resp.Header.Get("X-Task-ID")
	require.NotEmpty(t, taskID)

	// First token arrives, then the generation hangs.
	scanner := bufio.NewScanner(resp.Body)
	require.True(t, scanner.Scan())

	cancelResp, err := http.Post(fixture.srv.URL+"/cancel/"+taskID, "application/json", nil)
	require.NoError(t, err)
	cancelResp.Body.Close()
	assert.Equal(t, http.StatusNoContent, cancelResp.StatusCode)

	event := fixture.waitForEvent(t)
	assert.Equal(t, push.EventCanceled, event.Event)
	assert.Equal(t, "m1", event.RequestID)
	assert.Equal(t, 0, fixture.registry.Count())
}

func TestCancelUnknownTaskAnswers404(t *testing.T) {
	fixture := newGatewayFixture(t, &stubOllamaClient{})

	resp, err := http.Post(fixture.srv.URL+"/cancel/no-such-task", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestChatRejectsMissingRequestID(t *testing.T) {
	fixture := newGatewayFixture(t, &stubOllamaClient{})

	body := []byte(`{"text":"hi","model":"llama3:latest"}`)
	resp, err := http.Post(fixture.srv.URL+"/chat", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChatRejectsUnknownModel(t *testing.T) {
	fixture := newGatewayFixture(t, &stubOllamaClient{})

	body := []byte(`{"requestId":"m1","text":"hi","model":"unknown"}`)
	resp, err := http.Post(fixture.srv.URL+"/chat", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProcessOpenAiModels(t *testing.T) {
	mockOpenAIClient := new(MockOpenAIClient)
	handler := &Handler{
		openAIClient: mockOpenAIClient,
	}

	mockModels := []client.OpenAIModel{
		{ID: "dall-e-3", OwnedBy: "system"},
		{ID: "whisper-1", OwnedBy: "openai-internal"},
		{ID: "gpt-3.5-turbo-0301", OwnedBy: "openai"},
		{ID: "gpt-3.5-turbo", OwnedBy: "openai"},
		{ID: "tts-1", OwnedBy: "openai-internal"},
		{ID: "gpt-3.5-turbo-0613", OwnedBy: "openai"},
	}

	client.CacheModels = make(map[string]string)

	mockOpenAIClient.On("GetModels").Return(mockModels, nil)

	// Empty cache: the handler asks the API and keeps only OpenAI-owned chat
	// models.
	modelNames := handler.processOpenAiModels()

	expectedModelNames := []string{"gpt-3.5-turbo-0301", "gpt-3.5-turbo", "gpt-3.5-turbo-0613"}
	assert.ElementsMatch(t, expectedModelNames, modelNames, "The model names should match the expected ones")

	client.AddOpenAIModelCache(mockModels)
	assert.Equal(t, "openai", client.CacheModels["gpt-3.5-turbo-0301"])
	assert.Equal(t, "openai", client.CacheModels["gpt-3.5-turbo"])
	assert.Equal(t, "openai", client.CacheModels["gpt-3.5-turbo-0613"])

	// Warm cache: the handler answers from it without another API call.
	cached := handler.processOpenAiModels()
	assert.Len(t, cached, len(mockModels))
	mockOpenAIClient.AssertNumberOfCalls(t, "GetModels", 1)
}
