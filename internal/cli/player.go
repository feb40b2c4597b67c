package cli

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

func newPlayerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "player",
		Short: "Player commands",
	}

	cmd.AddCommand(newPlayerJoinCmd())

	return cmd
}

func newPlayerJoinCmd() *cobra.Command {
	var name, email string

	cmd := &cobra.Command{
		Use:   "join",
		Short: "Register a player identity for answering",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			player, err := joinPlayer(name, email)
			if err != nil {
				return err
			}

			out := newCmdOutput(cmd)
			out.Print(player)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name (required)")
	cmd.Flags().StringVar(&email, "email", "", "Email; omit for a guest identity")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func joinPlayer(name, email string) (Player, error) {
	req := map[string]string{"name": name}
	if email != "" {
		req["email"] = email
	}
	var result Player
	err := client.Post("/api/v1/players", req, &result)
	return result, err
}

func newLeaderboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leaderboard <sessionId>",
		Short: "Show the leaderboard for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result Leaderboard
			if err := client.Get("/api/v1/sessions/"+url.PathEscape(args[0])+"/leaderboard", &result); err != nil {
				return err
			}

			out := newCmdOutput(cmd)
			out.Print(result)
			return nil
		},
	}
}
