package model

import "encoding/json"

// EventType identifies an outbound room event.
// Names match what connected clients listen for.
type EventType string

const (
	EventLobbyUpdate       EventType = "lobby_update"
	EventQuizStart         EventType = "quiz_start"
	EventLeaderboardUpdate EventType = "leaderboardUpdate"
	EventQuizEnd           EventType = "quiz_end"
	EventErrorMessage      EventType = "error_message"
)

// Inbound connection events
const (
	InboundJoinRoom = "join_room"
	InboundAnswer   = "answer"
)

// Lobby actions
const (
	LobbyActionJoined = "joined"
	LobbyActionLeft   = "left"
)

// Envelope is the wire frame for every realtime message in both directions
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Event is an outbound message for every member of one room
type Event struct {
	Type     EventType
	JoinCode JoinCode
	Payload  any // Type-specific data, JSON encodable
}

// LobbyUpdatePayload contains data for lobby_update events
type LobbyUpdatePayload struct {
	Player  string   `json:"player"`
	Action  string   `json:"action"`
	Members []string `json:"members"`
}

// QuizStartQuestion is the wire form of a question in quiz_start
type QuizStartQuestion struct {
	ID           QuestionID `json:"id"`
	QuestionText string     `json:"questionText"`
	Options      []string   `json:"options"`
}

// QuizStartPayload contains data for quiz_start events
type QuizStartPayload struct {
	SessionID SessionID           `json:"sessionId"`
	Questions []QuizStartQuestion `json:"questions"`
}

// LeaderboardRow is the wire form of one leaderboardUpdate entry
type LeaderboardRow struct {
	UserID UserID `json:"userId"`
	Name   string `json:"name"`
	Score  int    `json:"score"`
}

// QuizEndPayload contains data for quiz_end events
type QuizEndPayload struct {
	Message string `json:"message"`
}

// NewQuizStartPayload builds the player-facing start payload
func NewQuizStartPayload(sessionID SessionID, questions []*Question) QuizStartPayload {
	out := make([]QuizStartQuestion, len(questions))
	for i, q := range questions {
		pub := q.Public()
		out[i] = QuizStartQuestion{
			ID:           pub.ID,
			QuestionText: pub.Text,
			Options:      pub.Options,
		}
	}
	return QuizStartPayload{SessionID: sessionID, Questions: out}
}

// NewLeaderboardRows builds the leaderboardUpdate payload
func NewLeaderboardRows(entries []LeaderboardEntry) []LeaderboardRow {
	rows := make([]LeaderboardRow, len(entries))
	for i, e := range entries {
		rows[i] = LeaderboardRow{UserID: e.UserID, Name: e.Name, Score: e.Score}
	}
	return rows
}
