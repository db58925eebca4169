package client

// ChatRequest is a chat request from the TUI client. RequestID is minted by
// the client when the reply slot is created; the gateway tags every push
// event for this generation with it.
type ChatRequest struct {
	RequestID string `json:"requestId"`
	Text      string `json:"text"`
	Model     string `json:"model"`
}

// ChatResponse is one streamed token frame back to the TUI client
type ChatResponse struct {
	ProcessedText string `json:"processedText"`
}

type ServerChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ServerChatRequest struct {
	Model    string              `json:"model"`
	Messages []ServerChatMessage `json:"messages"`
	Stream   bool                `json:"stream"` // Always true for streaming
}
