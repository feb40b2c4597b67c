// Package generator produces multiple-choice questions for a topic.
// Every implementation degrades to an empty list instead of failing.
package generator

import (
	"context"
	"encoding/json"
	"math"
	"strings"

	"github.com/mcoot/livequiz/internal/model"
)

const (
	// MaxTopicLength caps the topic passed to a generator, in runes
	MaxTopicLength = 120
	// MaxQuestions caps how many generated questions are kept
	MaxQuestions = 20
	// RequestedQuestions is how many questions generators aim for
	RequestedQuestions = 10

	maxQuestionLength    = 500
	maxOptionLength      = 200
	maxExplanationLength = 800
)

// Generator produces questions for a topic. Generate never fails; problems
// yield an empty list.
type Generator interface {
	Generate(ctx context.Context, topic string) []model.GeneratedQuestion
}

// None is a Generator that never produces questions
type None struct{}

func (None) Generate(ctx context.Context, topic string) []model.GeneratedQuestion {
	return []model.GeneratedQuestion{}
}

// Static is a Generator that returns a fixed question set for every topic
type Static []model.GeneratedQuestion

func (s Static) Generate(ctx context.Context, topic string) []model.GeneratedQuestion {
	out := make([]model.GeneratedQuestion, len(s))
	for i, q := range s {
		q.Options = append([]string(nil), q.Options...)
		out[i] = q
	}
	return out
}

// CapTopic trims a topic and limits it to MaxTopicLength runes
func CapTopic(topic string) string {
	return truncate(strings.TrimSpace(topic), MaxTopicLength)
}

type rawItem struct {
	Question    json.RawMessage `json:"question"`
	Options     json.RawMessage `json:"options"`
	AnswerIndex json.RawMessage `json:"answerIndex"`
	Explanation json.RawMessage `json:"explanation"`
}

// Sanitize parses generator output: a JSON array, optionally wrapped in a
// markdown code fence. Items need a string question, exactly four string
// options and an integer answerIndex; others are skipped. Malformed input
// yields an empty list.
func Sanitize(raw string) []model.GeneratedQuestion {
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(stripFence(raw)), &items); err != nil {
		return []model.GeneratedQuestion{}
	}

	out := make([]model.GeneratedQuestion, 0, len(items))
	for _, item := range items {
		q, ok := sanitizeItem(item)
		if !ok {
			continue
		}
		out = append(out, q)
		if len(out) == MaxQuestions {
			break
		}
	}
	return out
}

func sanitizeItem(data json.RawMessage) (model.GeneratedQuestion, bool) {
	var item rawItem
	if err := json.Unmarshal(data, &item); err != nil {
		return model.GeneratedQuestion{}, false
	}

	question, ok := decodeString(item.Question)
	if !ok {
		return model.GeneratedQuestion{}, false
	}

	var rawOptions []json.RawMessage
	if err := json.Unmarshal(item.Options, &rawOptions); err != nil || len(rawOptions) != model.OptionCount {
		return model.GeneratedQuestion{}, false
	}
	options := make([]string, len(rawOptions))
	for i, o := range rawOptions {
		s, ok := decodeString(o)
		if !ok {
			return model.GeneratedQuestion{}, false
		}
		options[i] = truncate(s, maxOptionLength)
	}

	var index float64
	if err := json.Unmarshal(item.AnswerIndex, &index); err != nil || index != math.Trunc(index) {
		return model.GeneratedQuestion{}, false
	}

	explanation, _ := decodeString(item.Explanation)

	return model.GeneratedQuestion{
		Question:     truncate(question, maxQuestionLength),
		Options:      options,
		CorrectIndex: clampIndex(index),
		Explanation:  truncate(explanation, maxExplanationLength),
	}, true
}

func decodeString(data json.RawMessage) (string, bool) {
	if len(data) == 0 || data[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return "", false
	}
	return s, true
}

func clampIndex(index float64) int {
	switch {
	case index < 0:
		return 0
	case index > model.OptionCount-1:
		return model.OptionCount - 1
	default:
		return int(index)
	}
}

func stripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	// Drop the opening fence line, which may carry a language tag
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
