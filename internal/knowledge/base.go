package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"kennel-assistant/internal/domain"
)

// Base is an immutable, ordered FAQ table. Entry order is match priority for
// the first-match policy.
type Base struct {
	entries     []domain.FAQEntry
	siteContext string
}

// document is the serialized form stored in SSM or in a JSON file.
type document struct {
	SiteContext string            `json:"siteContext"`
	Entries     []domain.FAQEntry `json:"entries"`
}

// Getter is satisfied by paramstore.Client.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// New validates entries and returns a Base holding normalized copies of them.
// Keywords are trimmed and lowercased; blank keywords are rejected because
// they would match every utterance.
func New(entries []domain.FAQEntry, siteContext string) (*Base, error) {
	out := make([]domain.FAQEntry, 0, len(entries))
	for i, e := range entries {
		if strings.TrimSpace(e.Answer) == "" {
			return nil, fmt.Errorf("knowledge: entry %d: answer must not be empty", i)
		}
		if len(e.Keywords) == 0 {
			return nil, fmt.Errorf("knowledge: entry %d: keywords must not be empty", i)
		}
		keywords := make([]string, 0, len(e.Keywords))
		for _, kw := range e.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				return nil, fmt.Errorf("knowledge: entry %d: blank keyword", i)
			}
			keywords = append(keywords, kw)
		}
		out = append(out, domain.FAQEntry{
			Question: e.Question,
			Answer:   e.Answer,
			Keywords: keywords,
		})
	}
	return &Base{entries: out, siteContext: strings.TrimSpace(siteContext)}, nil
}

// Entries returns a copy of the entries in declaration order.
func (b *Base) Entries() []domain.FAQEntry {
	out := make([]domain.FAQEntry, len(b.entries))
	for i, e := range b.entries {
		out[i] = domain.FAQEntry{
			Question: e.Question,
			Answer:   e.Answer,
			Keywords: append([]string(nil), e.Keywords...),
		}
	}
	return out
}

func (b *Base) Len() int { return len(b.entries) }

// SiteContext is free-text description of the kennel. No matcher reads it yet.
func (b *Base) SiteContext() string { return b.siteContext }

// Parse decodes a JSON knowledge base document.
func Parse(raw []byte) (*Base, error) {
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("knowledge: decode document: %w", err)
	}
	if len(doc.Entries) == 0 {
		return nil, errors.New("knowledge: document has no entries")
	}
	return New(doc.Entries, doc.SiteContext)
}

// Load reads a JSON knowledge base document from the parameter store.
func Load(ctx context.Context, getter Getter, name string) (*Base, error) {
	if getter == nil {
		return nil, errors.New("knowledge: getter must not be nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("knowledge: parameter name is empty")
	}
	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("knowledge: load %q: %w", name, err)
	}
	return Parse([]byte(raw))
}
