package batch

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"postcraft/internal/caption"
	"postcraft/internal/normalize"
	"postcraft/internal/pkg/errors"
)

const (
	MaxItems     = 1000
	MaxTextRunes = 2000
	maxIDLength  = 64
)

// ItemInput is one caption as submitted by a caller.
type ItemInput struct {
	ID         string `json:"id,omitempty"`
	Text       string `json:"text"`
	Background string `json:"background,omitempty"`
}

// Request is a batch submission.
type Request struct {
	Items []ItemInput `json:"items"`
	// Normalize runs the text cleanup rules before layout.
	Normalize bool `json:"normalize,omitempty"`
}

// ToItems validates the request and converts it to ordered caption items.
// Missing ids default to the 1-based position. Unknown background labels
// are kept verbatim so they fall back to position-based selection.
func (r Request) ToItems() ([]caption.Item, error) {
	if len(r.Items) > MaxItems {
		return nil, errors.ValidationField("items", fmt.Sprintf("at most %d items per batch", MaxItems))
	}

	out := make([]caption.Item, len(r.Items))
	seen := make(map[string]int, len(r.Items))
	for i, in := range r.Items {
		text := in.Text
		if r.Normalize {
			text = normalize.Clean(text)
		}
		if utf8.RuneCountInString(text) > MaxTextRunes {
			return nil, errors.ValidationField(fmt.Sprintf("items[%d].text", i), fmt.Sprintf("text longer than %d characters", MaxTextRunes))
		}

		id := strings.TrimSpace(in.ID)
		if id == "" {
			id = fmt.Sprint(i + 1)
		}
		if len(id) > maxIDLength {
			return nil, errors.ValidationField(fmt.Sprintf("items[%d].id", i), "id too long")
		}
		if prev, dup := seen[id]; dup {
			return nil, errors.ValidationField(fmt.Sprintf("items[%d].id", i), fmt.Sprintf("duplicate id %q (also items[%d])", id, prev))
		}
		seen[id] = i

		out[i] = caption.Item{
			ID:         id,
			Text:       text,
			Background: parseBackground(in.Background),
			Position:   i,
		}
	}
	return out, nil
}

func parseBackground(s string) caption.Label {
	s = strings.TrimSpace(s)
	if s == "" {
		return caption.LabelNone
	}
	if l, ok := caption.ParseLabel(s); ok {
		return l
	}
	return caption.Label(s)
}
