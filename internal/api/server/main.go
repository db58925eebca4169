package server

import (
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/bz888/gab/internal/api/server/client"
	"github.com/bz888/gab/internal/api/server/handlers"
	"github.com/bz888/gab/internal/api/server/push"
	"github.com/bz888/gab/internal/api/server/tasks"
	"github.com/bz888/gab/internal/config"
	"github.com/bz888/gab/internal/logger"
)

var LocalLogger *logger.Logger

func Init() {
	LocalLogger = logger.NewLogger("Server")
}

func Run() {
	handler, err := initializeClients()
	if err != nil {
		log.Fatal(err)
	}

	registerRoutes(handler)

	address := ":" + strconv.Itoa(config.Port)

	LocalLogger.Info("Server started on http://localhost" + address + "/")
	err = http.ListenAndServe(address, nil)
	if err != nil {
		log.Fatal("Error starting server: ", err)
	}
}

func initializeClients() (*handlers.Handler, error) {
	// Interface vars stay nil unless the backend is reachable, so the
	// handler can tell which clients exist.
	var openAIClient client.OpenAIClientInterface
	var ollamaClient client.OllamaClientInterface

	openAIAvailable := checkOpenAIAvailability()
	ollamaAvailable := checkOllamaAvailability()

	if openAIAvailable {
		c := client.NewOpenAIClient()
		c.GetModels()
		openAIClient = c

		LocalLogger.Info("OpenAI client initialized.")
	}

	if ollamaAvailable {
		c := client.NewOllamaClient(config.OllamaHost)
		c.GetModels()
		ollamaClient = c

		LocalLogger.Info("Ollama client initialized.")
	}

	LocalLogger.Info("Cached models", client.CacheModels)

	if !openAIAvailable && !ollamaAvailable {
		return nil, errors.New("no clients available")
	}

	return handlers.NewHandler(openAIClient, ollamaClient, tasks.NewRegistry(), push.NewHub()), nil
}

func checkOllamaAvailability() bool {
	resp, err := http.Get("http://" + config.OllamaHost)
	if err != nil {
		LocalLogger.Error("Ollama server not available:", err)
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func checkOpenAIAvailability() bool {
	openAIKey := os.Getenv("OPENAI_API_KEY")
	if openAIKey == "" {
		LocalLogger.Warn("OpenAI API key not provided.")
		return false
	}
	return true
}
