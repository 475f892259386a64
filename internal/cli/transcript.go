package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"chat-client/internal/repositories"
)

var transcriptCmd = &cobra.Command{
	Use:   "transcript CHATROOM_ID",
	Short: "Print the archived messages of a chatroom",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chatroomID, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid chatroom id %q", args[0])
		}

		database, err := requireArchive(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		msgs, err := repositories.NewTranscriptRepo(database).ListMessages(cmd.Context(), chatroomID)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			fmt.Fprintln(cmd.OutOrStdout(), formatMessage(m))
		}
		return nil
	},
}
