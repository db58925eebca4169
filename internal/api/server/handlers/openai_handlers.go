package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/bz888/gab/internal/api/server/client"
	"github.com/bz888/gab/internal/api/server/push"
	"github.com/bz888/gab/internal/logger"
)

func (h *Handler) processWithOpenAIClient(w http.ResponseWriter, r *http.Request, clientReq client.ChatRequest) {
	localLogger := logger.NewLogger("openai handler")

	apiReq := client.OpenAIChatRequest{
		Model: clientReq.Model,
		Messages: []client.OpenAIChatMessage{
			{
				Role:    client.RoleUser,
				Content: clientReq.Text,
			},
		},
		Stream: true,
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	genCtx, cancel := context.WithCancel(r.Context())
	defer cancel()

	taskID := newTaskID()
	h.registry.Register(taskID, clientReq.RequestID, cancel)
	defer h.registry.Done(taskID)

	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Task-ID", taskID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	encoder := json.NewEncoder(w)
	var deliverErr error

	err := h.openAIClient.Chat(genCtx, &apiReq, func(bts []byte) error {
		cleanData := bytes.TrimPrefix(bts, []byte("data: "))
		cleanData = bytes.TrimSpace(cleanData)

		if len(cleanData) == 0 || string(cleanData) == "[DONE]" {
			return nil
		}

		var apiResp client.OpenAIChatResponse
		if err := json.Unmarshal(cleanData, &apiResp); err != nil {
			localLogger.Error("Failed to unmarshal response:", err)
			localLogger.Error("Raw response data:", string(bts))
			return err
		}

		if len(apiResp.Choices) == 0 || apiResp.Choices[0].Delta.Content == nil {
			return nil
		}
		content := *apiResp.Choices[0].Delta.Content
		if content == "" {
			return nil
		}

		if err := encoder.Encode(client.ChatResponse{ProcessedText: content}); err != nil {
			deliverErr = err
			return err
		}
		flusher.Flush()
		return nil
	})

	switch {
	case genCtx.Err() != nil:
		localLogger.Info("Task canceled: ", taskID)
		h.hub.Publish(push.EventCanceled, clientReq.RequestID)
	case deliverErr != nil:
		localLogger.Error("Failed to deliver response:", deliverErr)
		h.hub.Publish(push.EventCompletionError, clientReq.RequestID)
	case err != nil:
		localLogger.Error("Upstream stream failed:", err)
		h.hub.Publish(push.EventStreamError, clientReq.RequestID)
	default:
		h.hub.Publish(push.EventCompleted, clientReq.RequestID)
	}
}

func (h *Handler) processOpenAiModels() []string {

	if len(client.CacheModels) > 0 {
		var cachedModelNames []string
		for key, value := range client.CacheModels {
			if value == "openai" {
				cachedModelNames = append(cachedModelNames, key)
			}
		}
		if len(cachedModelNames) > 0 {
			return cachedModelNames
		}
	}

	openAIModels, err := h.openAIClient.GetModels()
	if err != nil {
		return []string{}
	}
	var modelNames = make([]string, 0)
	for _, model := range openAIModels {
		if model.OwnedBy == "openai" && model.ID != "" {
			modelNames = append(modelNames, model.ID)
		}
	}

	return modelNames
}
