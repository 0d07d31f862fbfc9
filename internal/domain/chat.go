package domain

// Role identifies the author of a chat message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ErrorReply is the fixed assistant text shown when a request fails
const ErrorReply = "Sorry, I encountered an error. Please try again."

// Message represents a single transcript entry
type Message struct {
	ID        string   `json:"id"`
	Role      Role     `json:"role"`
	Content   string   `json:"content"`
	Sources   []Source `json:"sources,omitempty"`
	IsError   bool     `json:"is_error"`
	Timestamp string   `json:"timestamp"`
}

// Source represents a citation attached to an assistant reply
type Source struct {
	SectionID   int64   `json:"section_id"`
	Similarity  float64 `json:"similarity"`
	MovieTitle  string  `json:"movie_title"`
	SectionType string  `json:"section_type"`
}

// ChatRequest is the request sent to the assistant endpoint
type ChatRequest struct {
	Message        string `json:"message"`
	MovieID        *int64 `json:"movie_id"`
	ConversationID *int64 `json:"conversation_id"`
}

// ChatResponse is the assistant reply
type ChatResponse struct {
	Message        string   `json:"message"`
	ConversationID int64    `json:"conversation_id,omitempty"`
	Sources        []Source `json:"sources,omitempty"`
}

// Conversation is a server-side conversation summary
type Conversation struct {
	ID               int64           `json:"id"`
	ConversationType string          `json:"conversation_type"`
	MovieID          *int64          `json:"movie,omitempty"`
	CreatedAt        string          `json:"created_at"`
	UpdatedAt        string          `json:"updated_at"`
	Messages         []StoredMessage `json:"messages,omitempty"`
}

// StoredMessage is a message as recorded by the backend
type StoredMessage struct {
	ID        int64  `json:"id"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// StreamChunk represents an event pushed to live chat subscribers
type StreamChunk struct {
	Type    string   `json:"type"` // message, pending, reveal, cleared, export, error
	Message *Message `json:"message,omitempty"`
	Pending bool     `json:"pending"`
	Typing  bool     `json:"typing"`
	Content string   `json:"content,omitempty"`
}
