package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/bz888/gab/internal/api/server/client"
	"github.com/bz888/gab/internal/api/server/push"
	"github.com/bz888/gab/internal/logger"
)

func (h *Handler) processWithOllamaClient(w http.ResponseWriter, r *http.Request, clientReq client.ChatRequest, chatHistory *[]client.ServerChatMessage) {
	localLogger := logger.NewLogger("Ollama handler")

	historyMu.Lock()
	*chatHistory = append(*chatHistory, client.ServerChatMessage{
		Role:    client.RoleUser,
		Content: clientReq.Text,
	})
	messages := append([]client.ServerChatMessage(nil), *chatHistory...)
	historyMu.Unlock()

	apiReq := client.ServerChatRequest{
		Model:    clientReq.Model,
		Messages: messages,
		Stream:   true,
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
	w.Header().Set("Transfer-Encoding", "chunked")
	w.Header().Set("X-Task-ID", taskID)
	w.WriteHeader(http.StatusOK)
	// Hand the task id back before the first token, the client cannot cancel
	// a task it has no handle for.
	flusher.Flush()

	encoder := json.NewEncoder(w)
	accumulatedText := ""
	var deliverErr error

	err := h.ollamaClient.Chat(genCtx, &apiReq, func(bts []byte) error {
		var apiResp client.OllamaAPIResponse
		if err := json.Unmarshal(bts, &apiResp); err != nil {
			localLogger.Error("Failed to unmarshal response:", err)
			localLogger.Error("Raw response data:", string(bts))
			return err
		}

		accumulatedText += apiResp.Message.Content

		if err := encoder.Encode(client.ChatResponse{ProcessedText: apiResp.Message.Content}); err != nil {
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
		// The model finished or was still producing, but the reply could not
		// be delivered to the client.
		localLogger.Error("Failed to deliver response:", deliverErr)
		h.hub.Publish(push.EventCompletionError, clientReq.RequestID)
	case err != nil:
		localLogger.Error("Upstream stream failed:", err)
		h.hub.Publish(push.EventStreamError, clientReq.RequestID)
	default:
		historyMu.Lock()
		*chatHistory = append(*chatHistory, client.ServerChatMessage{
			Role:    client.RoleAssistant,
			Content: accumulatedText,
		})
		historyMu.Unlock()
		h.hub.Publish(push.EventCompleted, clientReq.RequestID)
	}
}

func (h *Handler) processOllamaModels() []string {
	ollamaModels, err := h.ollamaClient.GetModels()
	// should return just the model name in an array
	if err != nil {
		return []string{}
	}

	modelNames := make([]string, len(ollamaModels))
	for i, model := range ollamaModels {
		modelNames[i] = model.Name
	}
	return modelNames
}
