package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/bz888/gab/internal/api/server/client"
	"github.com/bz888/gab/internal/api/server/push"
	"github.com/bz888/gab/internal/api/server/tasks"
	"github.com/bz888/gab/internal/logger"
)

// Handler serves the gateway routes. Every generation it starts is
// registered in the task registry under a fresh task id, so a later cancel
// request can abort the upstream call, and its lifecycle outcome is
// published on the push hub tagged with the originating request id.
type Handler struct {
	openAIClient client.OpenAIClientInterface
	ollamaClient client.OllamaClientInterface
	registry     *tasks.Registry
	hub          *push.Hub
}

// historyMu guards ChatHistory; /chat handlers append from concurrent
// requests.
var (
	historyMu   sync.Mutex
	ChatHistory = make([]client.ServerChatMessage, 0)
)

func NewHandler(openAIClient client.OpenAIClientInterface, ollamaClient client.OllamaClientInterface, registry *tasks.Registry, hub *push.Hub) *Handler {
	return &Handler{
		openAIClient: openAIClient,
		ollamaClient: ollamaClient,
		registry:     registry,
		hub:          hub,
	}
}

// ChatHandler starts a generation. The minted task id is handed back in the
// X-Task-ID header before any token is streamed; the NDJSON token stream
// follows in the body.
func (h *Handler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	localLogger := logger.NewLogger("ChatHandler")
	var clientReq client.ChatRequest
	err := json.NewDecoder(r.Body).Decode(&clientReq)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if clientReq.RequestID == "" {
		http.Error(w, "Missing requestId", http.StatusBadRequest)
		return
	}

	clientType, ok := client.CacheModels[clientReq.Model]
	if !ok {
		localLogger.Error("Model not found", http.StatusBadRequest)
		http.Error(w, "Model not found", http.StatusBadRequest)
		return
	}

	if clientType == "openai" {
		h.processWithOpenAIClient(w, r, clientReq)
	} else if clientType == "ollama" {
		h.processWithOllamaClient(w, r, clientReq, &ChatHistory)
	} else {
		http.Error(w, "Unknown client type", http.StatusInternalServerError)
	}
}

// CancelHandler aborts a running task by id. Unknown ids answer 404; a
// cancel racing a finished task is expected, the client treats the call as
// best-effort either way.
func (h *Handler) CancelHandler(w http.ResponseWriter, r *http.Request) {
	localLogger := logger.NewLogger("CancelHandler")

	taskID := strings.TrimPrefix(r.URL.Path, "/cancel/")
	if taskID == "" || strings.Contains(taskID, "/") {
		http.Error(w, "Missing task id", http.StatusBadRequest)
		return
	}

	if !h.registry.Cancel(taskID) {
		http.Error(w, "Task not found", http.StatusNotFound)
		return
	}

	localLogger.Info("Canceled task ", taskID)
	w.WriteHeader(http.StatusNoContent)
}

var upgrader = websocket.Upgrader{}

// EventsHandler upgrades to a websocket and attaches the client to the push
// hub. The read loop exists only to notice the peer going away.
func (h *Handler) EventsHandler(w http.ResponseWriter, r *http.Request) {
	localLogger := logger.NewLogger("EventsHandler")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		localLogger.Error("Failed to upgrade events connection:", err)
		return
	}
	h.hub.Add(conn)

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.hub.Remove(conn)
				return
			}
		}
	}()
}

func (h *Handler) ModelHandler(w http.ResponseWriter, r *http.Request) {
	var wg sync.WaitGroup
	models := make([]string, 0)
	modelsChan := make(chan []string, 2)

	if h.ollamaClient != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			modelsChan <- h.processOllamaModels()
		}()
	}

	if h.openAIClient != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			modelsChan <- h.processOpenAiModels()
		}()
	}

	go func() {
		wg.Wait()
		close(modelsChan)
	}()

	for modelList := range modelsChan {
		models = append(models, modelList...)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(models); err != nil {
		http.Error(w, "Failed to encode response: "+err.Error(), http.StatusInternalServerError)
	}
}

// newTaskID mints the opaque handle a generation is canceled by.
func newTaskID() string {
	return uuid.NewString()
}
