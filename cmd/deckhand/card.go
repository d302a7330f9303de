package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/deckhand/deckhand/internal/model"
	"github.com/deckhand/deckhand/internal/ui"
)

var cardCmd = &cobra.Command{
	Use:     "card",
	GroupID: "boards",
	Short:   "Manage cards",
}

// parseDue accepts either a natural-language phrase ("tomorrow 5pm",
// "next friday") or an explicit "2006-01-02 15:04" timestamp.
func parseDue(s string) (*time.Time, error) {
	if t, err := time.ParseInLocation("2006-01-02 15:04", s, time.Local); err == nil {
		return &t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, time.Local); err == nil {
		return &t, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(s, time.Now())
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("could not understand due date %q", s)
	}
	return &r.Time, nil
}

var cardListCmd = &cobra.Command{
	Use:   "list <stack-id>",
	Short: "List a stack's cards",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		stackID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			die("invalid stack id %q", args[0])
		}

		a, err := openApp()
		if err != nil {
			die("%v", err)
		}
		defer a.Close()
		ctx := cmd.Context()

		cards, err := a.store.ListCardsForStack(ctx, stackID)
		if err != nil {
			die("%v", err)
		}
		if len(cards) == 0 {
			fmt.Println("No cards.")
			return
		}
		for _, c := range cards {
			line := fmt.Sprintf("%-4d %s", c.LocalID, c.Title)
			if c.DueDate != nil {
				due := c.DueDate.Local().Format("Jan 2 15:04")
				style := ui.DimStyle
				if c.DueDate.Before(time.Now()) {
					style = ui.ErrStyle
				}
				line += "  " + ui.Render(style, "due "+due)
			}
			labels, err := a.store.ListLabelsForCard(ctx, c.LocalID)
			if err == nil {
				for _, l := range labels {
					line += "  " + ui.LabelChip(l.Title, l.Color)
				}
			}
			if c.Status.Pending() {
				line += "  " + ui.Render(ui.PendingStyle, "(unsynced)")
			}
			fmt.Println(line)
		}
	},
}

var cardAddCmd = &cobra.Command{
	Use:   "add <stack-id> <title>",
	Short: "Add a card to a stack",
	Long: `Add a card to a stack.

The --due flag accepts natural language:
  deckhand card add 3 "Write release notes" --due "next friday"
  deckhand card add 3 "Deploy" --due "2026-09-01 10:00"`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		stackID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			die("invalid stack id %q", args[0])
		}
		description, _ := cmd.Flags().GetString("description")
		dueRaw, _ := cmd.Flags().GetString("due")

		var due *time.Time
		if dueRaw != "" {
			if due, err = parseDue(dueRaw); err != nil {
				die("%v", err)
			}
		}

		a, err := openApp()
		if err != nil {
			die("%v", err)
		}
		defer a.Close()

		stack, err := a.store.GetStack(cmd.Context(), stackID)
		if err != nil {
			die("%v", err)
		}
		siblings, err := a.store.ListCardsForStack(cmd.Context(), stackID)
		if err != nil {
			die("%v", err)
		}

		card := &model.Card{
			Synced:       model.Synced{AccountID: stack.AccountID},
			StackLocalID: stackID,
			Title:        args[1],
			Description:  description,
			Order:        len(siblings),
			DueDate:      due,
		}
		if _, err := await(func(cb func(*model.Card, error)) {
			a.engine.CreateCard(cmd.Context(), card, cb)
		}); err != nil {
			die("%v", err)
		}

		msg := fmt.Sprintf("%s Card %q created (id %d)", ui.Render(ui.OkStyle, "✓"), card.Title, card.LocalID)
		if due != nil {
			msg += ui.Render(ui.DimStyle, ", due "+due.Local().Format("Mon Jan 2 15:04"))
		}
		fmt.Println(msg)
	},
}

var cardEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit a card's fields",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			die("invalid card id %q", args[0])
		}

		a, err := openApp()
		if err != nil {
			die("%v", err)
		}
		defer a.Close()

		card, err := a.store.GetCard(cmd.Context(), id)
		if err != nil {
			die("%v", err)
		}

		if cmd.Flags().Changed("title") {
			card.Title, _ = cmd.Flags().GetString("title")
		}
		if cmd.Flags().Changed("description") {
			card.Description, _ = cmd.Flags().GetString("description")
		}
		if cmd.Flags().Changed("due") {
			raw, _ := cmd.Flags().GetString("due")
			if raw == "" || strings.EqualFold(raw, "none") {
				card.DueDate = nil
			} else {
				due, err := parseDue(raw)
				if err != nil {
					die("%v", err)
				}
				card.DueDate = due
			}
		}
		if cmd.Flags().Changed("stack") {
			stackID, _ := cmd.Flags().GetInt64("stack")
			if _, err := a.store.GetStack(cmd.Context(), stackID); err != nil {
				die("target stack: %v", err)
			}
			card.StackLocalID = stackID
		}

		if _, err := await(func(cb func(*model.Card, error)) {
			a.engine.UpdateCard(cmd.Context(), card, cb)
		}); err != nil {
			die("%v", err)
		}
		fmt.Printf("%s Card %d updated\n", ui.Render(ui.OkStyle, "✓"), card.LocalID)
	},
}

var cardMoveCmd = &cobra.Command{
	Use:   "move <id> <stack-id>",
	Short: "Move a card to another stack",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			die("invalid card id %q", args[0])
		}
		stackID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			die("invalid stack id %q", args[1])
		}

		a, err := openApp()
		if err != nil {
			die("%v", err)
		}
		defer a.Close()

		card, err := a.store.GetCard(cmd.Context(), id)
		if err != nil {
			die("%v", err)
		}
		target, err := a.store.GetStack(cmd.Context(), stackID)
		if err != nil {
			die("target stack: %v", err)
		}
		siblings, err := a.store.ListCardsForStack(cmd.Context(), stackID)
		if err != nil {
			die("%v", err)
		}

		card.StackLocalID = stackID
		card.Order = len(siblings)
		if _, err := await(func(cb func(*model.Card, error)) {
			a.engine.UpdateCard(cmd.Context(), card, cb)
		}); err != nil {
			die("%v", err)
		}
		fmt.Printf("%s Card %d moved to %q\n", ui.Render(ui.OkStyle, "✓"), card.LocalID, target.Title)
	},
}

var cardRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Delete a card",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			die("invalid card id %q", args[0])
		}

		a, err := openApp()
		if err != nil {
			die("%v", err)
		}
		defer a.Close()

		if err := awaitErr(func(cb func(error)) {
			a.engine.DeleteCard(cmd.Context(), id, cb)
		}); err != nil {
			die("%v", err)
		}
		fmt.Printf("%s Card %d deleted locally\n", ui.Render(ui.OkStyle, "✓"), id)
	},
}

var cardAssignCmd = &cobra.Command{
	Use:   "assign <card-id> <uid>",
	Short: "Assign a user to a card",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		cardID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			die("invalid card id %q", args[0])
		}

		a, err := openApp()
		if err != nil {
			die("%v", err)
		}
		defer a.Close()

		card, err := a.store.GetCard(cmd.Context(), cardID)
		if err != nil {
			die("%v", err)
		}
		user, err := a.store.GetUserByUID(cmd.Context(), card.AccountID, args[1])
		if err != nil {
			die("unknown user %q (users appear after the first sync)", args[1])
		}

		if err := awaitErr(func(cb func(error)) {
			a.engine.AssignUser(cmd.Context(), cardID, user.LocalID, cb)
		}); err != nil {
			die("%v", err)
		}
		fmt.Printf("%s Assigned %s to card %d\n", ui.Render(ui.OkStyle, "✓"), user.UID, cardID)
	},
}

var cardUnassignCmd = &cobra.Command{
	Use:   "unassign <card-id> <uid>",
	Short: "Remove a user from a card",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		cardID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			die("invalid card id %q", args[0])
		}

		a, err := openApp()
		if err != nil {
			die("%v", err)
		}
		defer a.Close()

		card, err := a.store.GetCard(cmd.Context(), cardID)
		if err != nil {
			die("%v", err)
		}
		user, err := a.store.GetUserByUID(cmd.Context(), card.AccountID, args[1])
		if err != nil {
			die("unknown user %q", args[1])
		}

		if err := awaitErr(func(cb func(error)) {
			a.engine.UnassignUser(cmd.Context(), cardID, user.LocalID, cb)
		}); err != nil {
			die("%v", err)
		}
		fmt.Printf("%s Unassigned %s from card %d\n", ui.Render(ui.OkStyle, "✓"), user.UID, cardID)
	},
}

var cardLabelCmd = &cobra.Command{
	Use:   "label <card-id> <label-id>",
	Short: "Attach a label to a card",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		cardID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			die("invalid card id %q", args[0])
		}
		labelID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			die("invalid label id %q", args[1])
		}

		a, err := openApp()
		if err != nil {
			die("%v", err)
		}
		defer a.Close()

		if err := awaitErr(func(cb func(error)) {
			a.engine.AssignLabel(cmd.Context(), cardID, labelID, cb)
		}); err != nil {
			die("%v", err)
		}
		fmt.Printf("%s Label %d attached to card %d\n", ui.Render(ui.OkStyle, "✓"), labelID, cardID)
	},
}

var cardUnlabelCmd = &cobra.Command{
	Use:   "unlabel <card-id> <label-id>",
	Short: "Detach a label from a card",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		cardID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			die("invalid card id %q", args[0])
		}
		labelID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			die("invalid label id %q", args[1])
		}

		a, err := openApp()
		if err != nil {
			die("%v", err)
		}
		defer a.Close()

		if err := awaitErr(func(cb func(error)) {
			a.engine.UnassignLabel(cmd.Context(), cardID, labelID, cb)
		}); err != nil {
			die("%v", err)
		}
		fmt.Printf("%s Label %d detached from card %d\n", ui.Render(ui.OkStyle, "✓"), labelID, cardID)
	},
}

func init() {
	cardAddCmd.Flags().String("description", "", "card description")
	cardAddCmd.Flags().String("due", "", "due date (natural language or 2006-01-02 15:04)")

	cardEditCmd.Flags().String("title", "", "new title")
	cardEditCmd.Flags().String("description", "", "new description")
	cardEditCmd.Flags().String("due", "", "new due date ('none' clears it)")
	cardEditCmd.Flags().Int64("stack", 0, "move to this stack id")

	cardCmd.AddCommand(cardListCmd, cardAddCmd, cardEditCmd, cardMoveCmd, cardRemoveCmd,
		cardAssignCmd, cardUnassignCmd, cardLabelCmd, cardUnlabelCmd)
	rootCmd.AddCommand(cardCmd)
}
