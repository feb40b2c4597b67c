package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mcoot/livequiz/internal/model"
)

// BankItem is one entry of a question bank file
type BankItem struct {
	Topic    string
	Question model.GeneratedQuestion
}

type bankFileItem struct {
	Topic string `json:"topic"`
}

// Bank serves questions from a fixed set, for offline and development use
type Bank struct {
	items []BankItem
}

// NewBank creates a Bank from items
func NewBank(items []BankItem) *Bank {
	return &Bank{items: items}
}

// LoadBank reads a JSON array of questions, each in the generator item
// format with an optional "topic" key
func LoadBank(path string) (*Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question bank: %w", err)
	}
	return ParseBank(data)
}

// ParseBank parses question bank JSON. Invalid entries are skipped.
func ParseBank(data []byte) (*Bank, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}

	items := make([]BankItem, 0, len(raw))
	for _, r := range raw {
		q, ok := sanitizeItem(r)
		if !ok {
			continue
		}
		var meta bankFileItem
		_ = json.Unmarshal(r, &meta)
		items = append(items, BankItem{Topic: strings.TrimSpace(meta.Topic), Question: q})
	}
	return NewBank(items), nil
}

// Len returns the number of questions in the bank
func (b *Bank) Len() int {
	return len(b.items)
}

// Generate returns bank questions whose topic matches, or the whole bank
// when nothing matches
func (b *Bank) Generate(ctx context.Context, topic string) []model.GeneratedQuestion {
	topic = strings.ToLower(CapTopic(topic))

	var matched []model.GeneratedQuestion
	for _, item := range b.items {
		t := strings.ToLower(item.Topic)
		if t != "" && topic != "" && (strings.Contains(t, topic) || strings.Contains(topic, t)) {
			matched = append(matched, item.Question)
		}
	}
	if len(matched) == 0 {
		for _, item := range b.items {
			matched = append(matched, item.Question)
		}
	}
	if len(matched) > MaxQuestions {
		matched = matched[:MaxQuestions]
	}
	return Static(matched).Generate(ctx, topic)
}
