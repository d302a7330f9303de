package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/deckhand/deckhand/internal/model"
	"github.com/deckhand/deckhand/internal/ui"
)

var labelCmd = &cobra.Command{
	Use:     "label",
	GroupID: "boards",
	Short:   "Manage board labels",
}

var labelListCmd = &cobra.Command{
	Use:   "list <board-id>",
	Short: "List a board's labels",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		boardID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			die("invalid board id %q", args[0])
		}
		search, _ := cmd.Flags().GetString("search")

		a, err := openApp()
		if err != nil {
			die("%v", err)
		}
		defer a.Close()

		var labels []*model.Label
		if search != "" {
			board, err := a.store.GetBoard(cmd.Context(), boardID)
			if err != nil {
				die("%v", err)
			}
			labels, err = a.store.SearchLabelsByTitle(cmd.Context(), board.AccountID, boardID, search)
			if err != nil {
				die("%v", err)
			}
		} else {
			labels, err = a.store.ListLabelsForBoard(cmd.Context(), boardID)
			if err != nil {
				die("%v", err)
			}
		}

		if len(labels) == 0 {
			fmt.Println("No labels.")
			return
		}
		for _, l := range labels {
			line := fmt.Sprintf("%-4d %s", l.LocalID, ui.LabelChip(l.Title, l.Color))
			if l.Status.Pending() {
				line += "  " + ui.Render(ui.PendingStyle, "(unsynced)")
			}
			fmt.Println(line)
		}
	},
}

var labelAddCmd = &cobra.Command{
	Use:   "add <board-id> <title>",
	Short: "Add a label to a board",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		boardID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			die("invalid board id %q", args[0])
		}
		color, _ := cmd.Flags().GetString("color")

		a, err := openApp()
		if err != nil {
			die("%v", err)
		}
		defer a.Close()

		board, err := a.store.GetBoard(cmd.Context(), boardID)
		if err != nil {
			die("%v", err)
		}

		label := &model.Label{
			Synced:       model.Synced{AccountID: board.AccountID},
			BoardLocalID: boardID,
			Title:        args[1],
			Color:        color,
		}
		if _, err := await(func(cb func(*model.Label, error)) {
			a.engine.CreateLabel(cmd.Context(), label, cb)
		}); err != nil {
			die("%v", err)
		}
		fmt.Printf("%s Label %s created (id %d)\n", ui.Render(ui.OkStyle, "✓"), ui.LabelChip(label.Title, label.Color), label.LocalID)
	},
}

var labelRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Delete a label",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			die("invalid label id %q", args[0])
		}

		a, err := openApp()
		if err != nil {
			die("%v", err)
		}
		defer a.Close()

		if err := awaitErr(func(cb func(error)) {
			a.engine.DeleteLabel(cmd.Context(), id, cb)
		}); err != nil {
			die("%v", err)
		}
		fmt.Printf("%s Label %d deleted locally\n", ui.Render(ui.OkStyle, "✓"), id)
	},
}

func init() {
	labelListCmd.Flags().String("search", "", "filter labels by title substring")
	labelAddCmd.Flags().String("color", "", "label color as a hex string, e.g. FF0000")

	labelCmd.AddCommand(labelListCmd, labelAddCmd, labelRemoveCmd)
	rootCmd.AddCommand(labelCmd)
}
