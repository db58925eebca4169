package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/bz888/gab/internal/api"
	"github.com/bz888/gab/internal/api/server"
	"github.com/bz888/gab/internal/config"
	"github.com/bz888/gab/internal/coordinator"
	"github.com/bz888/gab/internal/logger"
	"github.com/bz888/gab/internal/ui"
)

func init() {
	config.Init()
}

func Execute() {
	ui.Init()
	debugConsole, err := ui.GetDebugConsole()

	if err != nil {
		log.Fatal(err)
	}

	logger.InitLogger(config.Dev, config.LogPath, debugConsole)

	api.Init()
	server.Init()

	gatewayURL := fmt.Sprintf("http://localhost:%d", config.Port)
	apiClient := api.NewClient(gatewayURL)
	coord := coordinator.New(apiClient, logger.NewLogger("coordinator"))

	go server.Run()
	go listenEvents(apiClient, coord)

	ui.Run(apiClient, coord)
}

// listenEvents keeps the push channel attached for the lifetime of the app,
// redialing whenever the gateway drops the connection.
func listenEvents(apiClient *api.Client, coord *coordinator.Coordinator) {
	localLogger := logger.NewLogger("events")
	for {
		if err := apiClient.ListenEvents(context.Background(), coord); err != nil {
			localLogger.Warn("Event listener disconnected:", err)
		}
		time.Sleep(time.Second)
	}
}
