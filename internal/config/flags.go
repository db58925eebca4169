package config

import (
	"flag"

	"github.com/joho/godotenv"
)

var (
	Dev        bool
	LogPath    string
	Port       int
	OllamaHost string
)

func Init() {
	flag.BoolVar(&Dev, "dev", false, "Development mode")
	flag.StringVar(&LogPath, "logPath", "", "Path to save the log file")
	flag.IntVar(&Port, "port", 8080, "Port for the local gateway server")
	flag.StringVar(&OllamaHost, "ollamaHost", "localhost:11434", "Host of the local Ollama server")
	flag.Parse()

	// OPENAI_API_KEY may live in a .env next to the binary; missing file is fine.
	godotenv.Load()
}
