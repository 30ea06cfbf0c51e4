package web

import "kennel-assistant/internal/domain"

// Client frame types.
const (
	TypeSubmit  = "submit"
	TypeInput   = "input"
	TypeHistory = "history"
)

// Server frame types.
const (
	TypeSnapshot = "snapshot"
	TypeError    = "error"
)

type clientFrame struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type snapshotFrame struct {
	Type     string           `json:"type"`
	Messages []domain.Message `json:"messages"`
	IsTyping bool             `json:"isTyping"`
	State    string           `json:"state"`
}

type errorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}
