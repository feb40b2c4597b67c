package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

// Wire event names used by the player connection
const (
	eventJoinRoom  = "join_room"
	eventAnswer    = "answer"
	eventQuizStart = "quiz_start"
	eventQuizEnd   = "quiz_end"
)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type quizStart struct {
	SessionID string `json:"sessionId"`
	Questions []struct {
		ID           string   `json:"id"`
		QuestionText string   `json:"questionText"`
		Options      []string `json:"options"`
	} `json:"questions"`
}

// playOptions controls the play command
type playOptions struct {
	Code   string
	Name   string
	UserID string
	// Answer is the option index submitted for every question; negative
	// means watch only
	Answer    int
	TimeTaken time.Duration
	JSON      bool
}

func newPlayCmd() *cobra.Command {
	opts := playOptions{Answer: -1}

	cmd := &cobra.Command{
		Use:   "play <code>",
		Short: "Join a quiz room as a player",
		Long: `Connect to the player websocket, join the room and print room events
until the quiz ends.

With --answer, every question in quiz_start is answered with that option
index. A player identity is registered automatically unless --user is given.

Press Ctrl+C to disconnect.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Code = strings.ToUpper(strings.TrimSpace(args[0]))
			opts.JSON = cfg.Output == "json"

			if opts.Answer >= 0 && opts.UserID == "" {
				player, err := joinPlayer(opts.Name, "")
				if err != nil {
					return fmt.Errorf("failed to register player: %w", err)
				}
				opts.UserID = player.UserID
			}

			ctx, cancel := signalContext()
			defer cancel()
			return play(ctx, cfg.WebSocketURL(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "Player", "Display name")
	cmd.Flags().StringVar(&opts.UserID, "user", "", "Existing player id from 'player join'")
	cmd.Flags().IntVar(&opts.Answer, "answer", opts.Answer, "Option index (0-3) to answer every question with")
	cmd.Flags().DurationVar(&opts.TimeTaken, "time-taken", 0, "Reported answer time")

	return cmd
}

// play runs one player connection until quiz_end, ctx cancellation or a
// connection error
func play(ctx context.Context, wsURL string, opts playOptions, w io.Writer) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer func() { _ = conn.Close() }()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	if err := writeEvent(conn, eventJoinRoom, map[string]string{
		"joinCode": opts.Code,
		"name":     opts.Name,
	}); err != nil {
		return err
	}
	if !opts.JSON {
		fmt.Fprintf(w, "Joined quiz %s as %s\n", opts.Code, opts.Name)
	}

	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("connection lost: %w", err)
		}
		printEvent(w, env.Event, string(env.Data), opts.JSON)

		switch env.Event {
		case eventQuizStart:
			if opts.Answer < 0 {
				continue
			}
			var start quizStart
			if err := json.Unmarshal(env.Data, &start); err != nil {
				return fmt.Errorf("bad quiz_start: %w", err)
			}
			for _, q := range start.Questions {
				if err := writeEvent(conn, eventAnswer, map[string]any{
					"joinCode":      opts.Code,
					"sessionId":     start.SessionID,
					"userId":        opts.UserID,
					"questionId":    q.ID,
					"selectedIndex": opts.Answer,
					"timeTakenMs":   opts.TimeTaken.Milliseconds(),
				}); err != nil {
					return err
				}
			}
		case eventQuizEnd:
			return nil
		}
	}
}

func writeEvent(conn *websocket.Conn, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", event, err)
	}
	if err := conn.WriteJSON(envelope{Event: event, Data: raw}); err != nil {
		return fmt.Errorf("failed to send %s: %w", event, err)
	}
	return nil
}
