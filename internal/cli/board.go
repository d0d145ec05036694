package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"sprintboard/internal/models"
	"sprintboard/internal/render"
	"sprintboard/internal/scrum"
)

var boardProject int64

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Render the kanban board of a project's active sprint",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if boardProject <= 0 {
			return errors.New("--project is required")
		}
		sess, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer sess.Close()

		board, err := sess.manager.ActiveBoard(cmd.Context(), scrum.SystemCapabilities(), boardProject)
		if errors.Is(err, models.ErrNotFound) {
			fmt.Fprintf(cmd.OutOrStdout(), "No active sprint for project %d.\n", boardProject)
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), render.Board(board))
		return nil
	},
}

func init() {
	boardCmd.Flags().Int64Var(&boardProject, "project", 0, "Project id")
	rootCmd.AddCommand(boardCmd)
}
