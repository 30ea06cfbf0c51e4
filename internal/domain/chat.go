package domain

// Role identifies who authored a chat message.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Message is a single chat widget message. Messages are never mutated once
// appended to a conversation.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// FAQEntry is one question/answer record of the knowledge base.
type FAQEntry struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Keywords []string `json:"keywords"`
}
