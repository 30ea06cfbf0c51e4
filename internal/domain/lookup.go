package domain

// Lookup outcomes recorded for every answered chat message.
const (
	OutcomeResolved = "resolved"
	OutcomeFallback = "fallback"
)

// KeywordLookup is a per-keyword hit count by outcome.
type KeywordLookup struct {
	Keyword    string `json:"keyword"`
	Outcome    string `json:"outcome"`
	Count      int64  `json:"count"`
	LastSeenAt string `json:"lastSeenAt"`
}
