package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newQuizCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quiz",
		Short: "Quiz hosting commands",
	}

	cmd.AddCommand(newQuizCreateCmd())
	cmd.AddCommand(newQuizGetCmd())
	cmd.AddCommand(newQuizTransitionCmd("start", "Start the quiz and send questions to the room"))
	cmd.AddCommand(newQuizTransitionCmd("end", "End the quiz"))

	return cmd
}

func newQuizCreateCmd() *cobra.Command {
	var topic, title, host, email string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a quiz and generate its questions",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(topic) == "" {
				return fmt.Errorf("--topic is required")
			}

			req := map[string]string{"topic": topic}
			if title != "" {
				req["title"] = title
			}
			if host != "" {
				req["hostName"] = host
			}
			if email != "" {
				req["email"] = email
			}

			var result CreateQuizResult
			if err := client.Post("/api/v1/quizzes", req, &result); err != nil {
				return err
			}

			out := newCmdOutput(cmd)
			out.Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&topic, "topic", "", "Quiz topic (required)")
	cmd.Flags().StringVar(&title, "title", "", "Quiz title (default: \"Quiz: <topic>\")")
	cmd.Flags().StringVar(&host, "host", "", "Host display name")
	cmd.Flags().StringVar(&email, "email", "", "Host email")
	_ = cmd.MarkFlagRequired("topic")

	return cmd
}

func newQuizGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <code>",
		Short: "Show a quiz by join code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result Quiz
			if err := client.Get(quizPath(args[0]), &result); err != nil {
				return err
			}

			out := newCmdOutput(cmd)
			out.Print(result)
			return nil
		},
	}
}

func newQuizTransitionCmd(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <code>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result Transition
			if err := client.Post(quizPath(args[0], action), nil, &result); err != nil {
				return err
			}

			out := newCmdOutput(cmd)
			out.Print(result)
			return nil
		},
	}
}
