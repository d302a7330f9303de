package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/deckhand/deckhand/internal/model"
	"github.com/deckhand/deckhand/internal/ui"
)

var stackCmd = &cobra.Command{
	Use:     "stack",
	GroupID: "boards",
	Short:   "Manage stacks (board columns)",
}

var stackListCmd = &cobra.Command{
	Use:   "list <board-id>",
	Short: "List a board's stacks",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		boardID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			die("invalid board id %q", args[0])
		}

		a, err := openApp()
		if err != nil {
			die("%v", err)
		}
		defer a.Close()

		stacks, err := a.store.ListStacksForBoard(cmd.Context(), boardID)
		if err != nil {
			die("%v", err)
		}
		if len(stacks) == 0 {
			fmt.Println("No stacks.")
			return
		}
		for _, s := range stacks {
			line := fmt.Sprintf("%-4d %s", s.LocalID, ui.Render(ui.TitleStyle, s.Title))
			if s.Status.Pending() {
				line += "  " + ui.Render(ui.PendingStyle, "(unsynced)")
			}
			fmt.Println(line)
		}
	},
}

var stackAddCmd = &cobra.Command{
	Use:   "add <board-id> <title>",
	Short: "Add a stack to a board",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		boardID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			die("invalid board id %q", args[0])
		}

		a, err := openApp()
		if err != nil {
			die("%v", err)
		}
		defer a.Close()

		board, err := a.store.GetBoard(cmd.Context(), boardID)
		if err != nil {
			die("%v", err)
		}
		existing, err := a.store.ListStacksForBoard(cmd.Context(), boardID)
		if err != nil {
			die("%v", err)
		}

		stack := &model.Stack{
			Synced:       model.Synced{AccountID: board.AccountID},
			BoardLocalID: boardID,
			Title:        args[1],
			Order:        len(existing),
		}
		if _, err := await(func(cb func(*model.Stack, error)) {
			a.engine.CreateStack(cmd.Context(), stack, cb)
		}); err != nil {
			die("%v", err)
		}
		fmt.Printf("%s Stack %q created (id %d)\n", ui.Render(ui.OkStyle, "✓"), stack.Title, stack.LocalID)
	},
}

var stackRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Delete a stack and its cards",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			die("invalid stack id %q", args[0])
		}

		a, err := openApp()
		if err != nil {
			die("%v", err)
		}
		defer a.Close()

		if err := awaitErr(func(cb func(error)) {
			a.engine.DeleteStack(cmd.Context(), id, cb)
		}); err != nil {
			die("%v", err)
		}
		fmt.Printf("%s Stack %d deleted locally\n", ui.Render(ui.OkStyle, "✓"), id)
	},
}

func init() {
	stackCmd.AddCommand(stackListCmd, stackAddCmd, stackRemoveCmd)
	rootCmd.AddCommand(stackCmd)
}
