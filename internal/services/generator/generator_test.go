package generator

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/livequiz/internal/model"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected []model.GeneratedQuestion
	}{
		{
			name: "valid item",
			raw:  `[{"question":"Q1","options":["a","b","c","d"],"answerIndex":2,"explanation":"because"}]`,
			expected: []model.GeneratedQuestion{
				{Question: "Q1", Options: []string{"a", "b", "c", "d"}, CorrectIndex: 2, Explanation: "because"},
			},
		},
		{
			name: "fenced output",
			raw:  "```json\n[{\"question\":\"Q1\",\"options\":[\"a\",\"b\",\"c\",\"d\"],\"answerIndex\":0}]\n```",
			expected: []model.GeneratedQuestion{
				{Question: "Q1", Options: []string{"a", "b", "c", "d"}, CorrectIndex: 0},
			},
		},
		{
			name: "index clamped",
			raw:  `[{"question":"Hi","options":["a","b","c","d"],"answerIndex":9},{"question":"Lo","options":["a","b","c","d"],"answerIndex":-2}]`,
			expected: []model.GeneratedQuestion{
				{Question: "Hi", Options: []string{"a", "b", "c", "d"}, CorrectIndex: 3},
				{Question: "Lo", Options: []string{"a", "b", "c", "d"}, CorrectIndex: 0},
			},
		},
		{
			name: "invalid items skipped",
			raw: `[
				{"question":"three options","options":["a","b","c"],"answerIndex":0},
				{"question":"fractional","options":["a","b","c","d"],"answerIndex":1.5},
				{"question":"string index","options":["a","b","c","d"],"answerIndex":"1"},
				{"question":7,"options":["a","b","c","d"],"answerIndex":1},
				{"question":"number option","options":["a","b","c",4],"answerIndex":1},
				{"question":"kept","options":["a","b","c","d"],"answerIndex":1.0,"explanation":42}
			]`,
			expected: []model.GeneratedQuestion{
				{Question: "kept", Options: []string{"a", "b", "c", "d"}, CorrectIndex: 1},
			},
		},
		{name: "prose", raw: "Sure! Here are your questions.", expected: []model.GeneratedQuestion{}},
		{name: "object not array", raw: `{"question":"Q"}`, expected: []model.GeneratedQuestion{}},
		{name: "empty", raw: "", expected: []model.GeneratedQuestion{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Sanitize(tt.raw))
		})
	}
}

func TestSanitizeTruncatesAndCaps(t *testing.T) {
	item := `{"question":"` + strings.Repeat("q", 600) + `","options":["` + strings.Repeat("é", 250) +
		`","b","c","d"],"answerIndex":0,"explanation":"` + strings.Repeat("e", 900) + `"}`
	items := make([]string, 25)
	for i := range items {
		items[i] = item
	}

	got := Sanitize("[" + strings.Join(items, ",") + "]")
	require.Len(t, got, MaxQuestions)
	assert.Len(t, got[0].Question, 500)
	assert.Equal(t, 200, len([]rune(got[0].Options[0])))
	assert.Len(t, got[0].Explanation, 800)
}

func TestCapTopic(t *testing.T) {
	assert.Equal(t, "Rome", CapTopic("  Rome "))
	assert.Equal(t, MaxTopicLength, len([]rune(CapTopic(strings.Repeat("ü", 200)))))
}

func TestNoneAndStatic(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, None{}.Generate(ctx, "anything"))

	static := Static{{Question: "Q", Options: []string{"a", "b", "c", "d"}}}
	got := static.Generate(ctx, "x")
	got[0].Options[0] = "changed"
	assert.Equal(t, "a", static[0].Options[0])
}

func TestBank(t *testing.T) {
	bank, err := ParseBank([]byte(`[
		{"topic":"Roman Empire","question":"First emperor?","options":["Augustus","Nero","Caligula","Trajan"],"answerIndex":0},
		{"topic":"Astronomy","question":"Largest planet?","options":["Mars","Jupiter","Venus","Earth"],"answerIndex":1},
		{"topic":"Astronomy","question":"broken","options":["a"],"answerIndex":0}
	]`))
	require.NoError(t, err)
	assert.Equal(t, 2, bank.Len())

	ctx := context.Background()
	got := bank.Generate(ctx, "roman")
	require.Len(t, got, 1)
	assert.Equal(t, "First emperor?", got[0].Question)

	got = bank.Generate(ctx, "Cooking")
	assert.Len(t, got, 2, "no match falls back to the whole bank")

	_, err = ParseBank([]byte("not json"))
	assert.Error(t, err)

	_, err = LoadBank("/does/not/exist.json")
	assert.Error(t, err)
}

func TestPromptMentionsTopic(t *testing.T) {
	p := Prompt("Roman Empire")
	assert.Contains(t, p, `"Roman Empire"`)
	assert.Contains(t, p, "Return ONLY a JSON array")
}
