package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
}

// NewOutput creates a new Output formatter writing to stdout
func NewOutput(format string) *Output {
	return &Output{format: format, w: os.Stdout}
}

// newCmdOutput writes to the command's configured stdout
func newCmdOutput(cmd *cobra.Command) *Output {
	return &Output{format: cfg.Output, w: cmd.OutOrStdout()}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintError outputs an error
func (o *Output) PrintError(err error) {
	if o.format == "json" {
		errData := map[string]any{
			"error": map[string]string{
				"message": err.Error(),
			},
		}
		data, _ := json.Marshal(errData)
		fmt.Fprintln(os.Stderr, string(data))
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case CreateQuizResult:
		o.printCreateQuizResult(v)
	case Quiz:
		o.printQuiz(v)
	case Transition:
		o.printTransition(v)
	case Player:
		o.printPlayer(v)
	case Leaderboard:
		o.printLeaderboard(v)
	case HealthResult:
		o.printHealthResult(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

// CreateQuizResult response type (matches API)
type CreateQuizResult struct {
	QuizID    string `json:"quizId"`
	JoinCode  string `json:"joinCode"`
	SessionID string `json:"sessionId"`
}

// Quiz response type
type Quiz struct {
	QuizID          string  `json:"quizId"`
	Title           string  `json:"title"`
	Topic           string  `json:"topic"`
	JoinCode        string  `json:"joinCode"`
	Status          string  `json:"status"`
	QuestionCount   int     `json:"questionCount"`
	ActiveSessionID *string `json:"activeSessionId"`
	ConnectedCount  int     `json:"connectedCount"`
}

// Transition response type for start and end
type Transition struct {
	OK        bool   `json:"ok"`
	Changed   bool   `json:"changed"`
	Status    string `json:"status"`
	SessionID string `json:"sessionId,omitempty"`
}

// Player response type
type Player struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// LeaderboardRow is one ranked player
type LeaderboardRow struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Score  int    `json:"score"`
}

// Leaderboard is a ranked list, highest score first
type Leaderboard []LeaderboardRow

// HealthResult response type
type HealthResult struct {
	Status string `json:"status"`
}

func (o *Output) printCreateQuizResult(r CreateQuizResult) {
	fmt.Fprintf(o.w, "Quiz: %s\n", r.QuizID)
	fmt.Fprintf(o.w, "Join Code: %s\n", r.JoinCode)
	fmt.Fprintf(o.w, "Session: %s\n", r.SessionID)
}

func (o *Output) printQuiz(q Quiz) {
	fmt.Fprintf(o.w, "Quiz: %s (%s)\n", q.Title, q.QuizID)
	fmt.Fprintf(o.w, "Topic: %s\n", q.Topic)
	fmt.Fprintf(o.w, "Join Code: %s\n", q.JoinCode)
	fmt.Fprintf(o.w, "Status: %s\n", q.Status)
	fmt.Fprintf(o.w, "Questions: %d\n", q.QuestionCount)
	if q.ActiveSessionID != nil {
		fmt.Fprintf(o.w, "Session: %s\n", *q.ActiveSessionID)
	}
	fmt.Fprintf(o.w, "Connected: %d\n", q.ConnectedCount)
}

func (o *Output) printTransition(t Transition) {
	if t.Changed {
		fmt.Fprintf(o.w, "Quiz is now %s\n", t.Status)
	} else {
		fmt.Fprintf(o.w, "Quiz already %s, nothing changed\n", t.Status)
	}
	if t.SessionID != "" {
		fmt.Fprintf(o.w, "Session: %s\n", t.SessionID)
	}
}

func (o *Output) printPlayer(p Player) {
	fmt.Fprintf(o.w, "Player: %s (%s)\n", p.Name, p.UserID)
}

func (o *Output) printLeaderboard(l Leaderboard) {
	if len(l) == 0 {
		fmt.Fprintln(o.w, "No scores yet")
		return
	}
	width := 0
	for _, row := range l {
		width = max(width, len(row.Name))
	}
	for i, row := range l {
		fmt.Fprintf(o.w, "%2d. %-*s %d\n", i+1, width, row.Name, row.Score)
	}
}

func (o *Output) printHealthResult(h HealthResult) {
	fmt.Fprintf(o.w, "Status: %s\n", h.Status)
}

// oneLine flattens and truncates data for single-line display
func oneLine(data string, limit int) string {
	data = strings.ReplaceAll(data, "\n", " ")
	if len(data) > limit {
		data = data[:limit] + "..."
	}
	return data
}
