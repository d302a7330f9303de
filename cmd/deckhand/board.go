package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/deckhand/deckhand/internal/model"
	"github.com/deckhand/deckhand/internal/ui"
)

var boardCmd = &cobra.Command{
	Use:     "board",
	GroupID: "boards",
	Short:   "Manage boards",
}

var boardListCmd = &cobra.Command{
	Use:   "list",
	Short: "List boards",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			die("%v", err)
		}
		defer a.Close()

		account, err := a.resolveAccount(cmd)
		if err != nil {
			die("%v", err)
		}
		boards, err := a.store.ListBoards(cmd.Context(), account.ID)
		if err != nil {
			die("%v", err)
		}
		if len(boards) == 0 {
			fmt.Println("No boards. Run 'deckhand sync' or 'deckhand board add'.")
			return
		}
		for _, b := range boards {
			line := fmt.Sprintf("%-4d %s", b.LocalID, ui.Render(ui.TitleStyle, b.Title))
			if b.Status.Pending() {
				line += "  " + ui.Render(ui.PendingStyle, "(unsynced)")
			}
			fmt.Println(line)
		}
	},
}

var boardAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a board",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		color, _ := cmd.Flags().GetString("color")

		a, err := openApp()
		if err != nil {
			die("%v", err)
		}
		defer a.Close()

		account, err := a.resolveAccount(cmd)
		if err != nil {
			die("%v", err)
		}

		board := &model.Board{
			Synced: model.Synced{AccountID: account.ID},
			Title:  args[0],
			Color:  color,
		}
		if _, err := await(func(cb func(*model.Board, error)) {
			a.engine.CreateBoard(cmd.Context(), board, cb)
		}); err != nil {
			die("%v", err)
		}
		fmt.Printf("%s Board %q created (id %d)\n", ui.Render(ui.OkStyle, "✓"), board.Title, board.LocalID)
	},
}

var boardRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Delete a board",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			die("invalid board id %q", args[0])
		}

		a, err := openApp()
		if err != nil {
			die("%v", err)
		}
		defer a.Close()

		if err := awaitErr(func(cb func(error)) {
			a.engine.DeleteBoard(cmd.Context(), id, cb)
		}); err != nil {
			die("%v", err)
		}
		fmt.Printf("%s Board %d deleted locally; next sync removes it from the server\n", ui.Render(ui.OkStyle, "✓"), id)
	},
}

// boardTemplate is the TOML shape accepted by board import.
type boardTemplate struct {
	Title  string `toml:"title"`
	Color  string `toml:"color"`
	Stacks []struct {
		Title string `toml:"title"`
	} `toml:"stacks"`
	Labels []struct {
		Title string `toml:"title"`
		Color string `toml:"color"`
	} `toml:"labels"`
}

var boardImportCmd = &cobra.Command{
	Use:   "import <template.toml>",
	Short: "Create a board from a TOML template",
	Long: `Create a board, its stacks and its labels from a TOML template.

Template format:

  title = "Sprint board"
  color = "0082C9"

  [[stacks]]
  title = "To do"

  [[stacks]]
  title = "Doing"

  [[labels]]
  title = "Bug"
  color = "FF0000"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var tpl boardTemplate
		if _, err := toml.DecodeFile(args[0], &tpl); err != nil {
			die("failed to parse template: %v", err)
		}
		if tpl.Title == "" {
			die("template is missing a board title")
		}

		a, err := openApp()
		if err != nil {
			die("%v", err)
		}
		defer a.Close()

		account, err := a.resolveAccount(cmd)
		if err != nil {
			die("%v", err)
		}

		board := &model.Board{
			Synced: model.Synced{AccountID: account.ID},
			Title:  tpl.Title,
			Color:  tpl.Color,
		}
		if _, err := await(func(cb func(*model.Board, error)) {
			a.engine.CreateBoard(cmd.Context(), board, cb)
		}); err != nil {
			die("%v", err)
		}

		for i, s := range tpl.Stacks {
			stack := &model.Stack{
				Synced:       model.Synced{AccountID: account.ID},
				BoardLocalID: board.LocalID,
				Title:        s.Title,
				Order:        i,
			}
			if _, err := await(func(cb func(*model.Stack, error)) {
				a.engine.CreateStack(cmd.Context(), stack, cb)
			}); err != nil {
				die("stack %q: %v", s.Title, err)
			}
		}
		for _, l := range tpl.Labels {
			label := &model.Label{
				Synced:       model.Synced{AccountID: account.ID},
				BoardLocalID: board.LocalID,
				Title:        l.Title,
				Color:        l.Color,
			}
			if _, err := await(func(cb func(*model.Label, error)) {
				a.engine.CreateLabel(cmd.Context(), label, cb)
			}); err != nil {
				die("label %q: %v", l.Title, err)
			}
		}

		fmt.Printf("%s Board %q created with %d stacks and %d labels (id %d)\n",
			ui.Render(ui.OkStyle, "✓"), board.Title, len(tpl.Stacks), len(tpl.Labels), board.LocalID)
	},
}

// boardExport is the shape produced by board export.
type boardExport struct {
	Title  string        `yaml:"title" json:"title"`
	Color  string        `yaml:"color,omitempty" json:"color,omitempty"`
	Labels []labelExport `yaml:"labels,omitempty" json:"labels,omitempty"`
	Stacks []stackExport `yaml:"stacks" json:"stacks"`
}

type labelExport struct {
	Title string `yaml:"title" json:"title"`
	Color string `yaml:"color,omitempty" json:"color,omitempty"`
}

type stackExport struct {
	Title string       `yaml:"title" json:"title"`
	Cards []cardExport `yaml:"cards,omitempty" json:"cards,omitempty"`
}

type cardExport struct {
	Title       string   `yaml:"title" json:"title"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Due         string   `yaml:"due,omitempty" json:"due,omitempty"`
	Labels      []string `yaml:"labels,omitempty" json:"labels,omitempty"`
	Assignees   []string `yaml:"assignees,omitempty" json:"assignees,omitempty"`
}

var boardExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export a board tree as YAML or JSON",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			die("invalid board id %q", args[0])
		}

		a, err := openApp()
		if err != nil {
			die("%v", err)
		}
		defer a.Close()
		ctx := cmd.Context()

		board, err := a.store.GetBoard(ctx, id)
		if err != nil {
			die("%v", err)
		}

		out := boardExport{Title: board.Title, Color: board.Color}

		labels, err := a.store.ListLabelsForBoard(ctx, board.LocalID)
		if err != nil {
			die("%v", err)
		}
		for _, l := range labels {
			out.Labels = append(out.Labels, labelExport{Title: l.Title, Color: l.Color})
		}

		stacks, err := a.store.ListStacksForBoard(ctx, board.LocalID)
		if err != nil {
			die("%v", err)
		}
		for _, s := range stacks {
			se := stackExport{Title: s.Title}
			cards, err := a.store.ListCardsForStack(ctx, s.LocalID)
			if err != nil {
				die("%v", err)
			}
			for _, c := range cards {
				ce := cardExport{Title: c.Title, Description: c.Description}
				if c.DueDate != nil {
					ce.Due = c.DueDate.Format("2006-01-02 15:04")
				}
				cardLabels, err := a.store.ListLabelsForCard(ctx, c.LocalID)
				if err != nil {
					die("%v", err)
				}
				for _, l := range cardLabels {
					ce.Labels = append(ce.Labels, l.Title)
				}
				users, err := a.store.ListUsersForCard(ctx, c.LocalID)
				if err != nil {
					die("%v", err)
				}
				for _, u := range users {
					ce.Assignees = append(ce.Assignees, u.UID)
				}
				se.Cards = append(se.Cards, ce)
			}
			out.Stacks = append(out.Stacks, se)
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				die("%v", err)
			}
			return
		}
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			die("%v", err)
		}
		_ = enc.Close()
	},
}

func init() {
	boardAddCmd.Flags().String("color", "", "board color as a hex string")
	boardExportCmd.Flags().Bool("json", false, "emit JSON instead of YAML")

	boardCmd.AddCommand(boardListCmd, boardAddCmd, boardRemoveCmd, boardImportCmd, boardExportCmd)
	rootCmd.AddCommand(boardCmd)
}
