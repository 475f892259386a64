package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"chat-client/internal/models"
)

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List or create chatrooms",
}

var roomsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List chatrooms",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, dir, err := newBackend(cfg)
		if err != nil {
			return err
		}
		rooms, err := dir.List(cmd.Context())
		if err != nil {
			return err
		}
		printRooms(cmd.OutOrStdout(), rooms, 0)
		return nil
	},
}

var roomsCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a chatroom",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, dir, err := newBackend(cfg)
		if err != nil {
			return err
		}
		created, err := dir.Create(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created chatroom %d %q\n", created.ID, created.Name)
		return nil
	},
}

func init() {
	roomsCmd.AddCommand(roomsListCmd, roomsCreateCmd)
}

func printRooms(w io.Writer, rooms []models.Chatroom, activeID int) {
	if len(rooms) == 0 {
		fmt.Fprintln(w, "no chatrooms yet")
		return
	}
	for _, r := range rooms {
		marker := " "
		if r.ID == activeID {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %4d  %s\n", marker, r.ID, r.Name)
	}
}
