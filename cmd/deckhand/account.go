package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/deckhand/deckhand/internal/model"
	"github.com/deckhand/deckhand/internal/ui"
)

var accountCmd = &cobra.Command{
	Use:     "account",
	GroupID: "accounts",
	Short:   "Manage server accounts",
}

var accountAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a server account",
	Long: `Register a kanban server account.

Without flags an interactive form collects the details. The app
password is written to the config file, not the database.

Example usage:
  deckhand account add
  deckhand account add --name work --url https://cloud.example.org --user alice`,
	Run: func(cmd *cobra.Command, args []string) {
		name, _ := cmd.Flags().GetString("name")
		url, _ := cmd.Flags().GetString("url")
		user, _ := cmd.Flags().GetString("user")
		password, _ := cmd.Flags().GetString("password")

		if name == "" || url == "" || user == "" {
			form := huh.NewForm(huh.NewGroup(
				huh.NewInput().
					Title("Account name").
					Description("Local nickname for this server").
					Value(&name).
					Validate(func(s string) error {
						if strings.TrimSpace(s) == "" {
							return fmt.Errorf("name is required")
						}
						return nil
					}),
				huh.NewInput().
					Title("Server URL").
					Placeholder("https://cloud.example.org").
					Value(&url),
				huh.NewInput().
					Title("User name").
					Value(&user),
				huh.NewInput().
					Title("App password").
					EchoMode(huh.EchoModePassword).
					Value(&password),
			))
			if err := form.Run(); err != nil {
				die("%v", err)
			}
		}

		a, err := openApp()
		if err != nil {
			die("%v", err)
		}
		defer a.Close()

		account := &model.Account{
			Name:     strings.TrimSpace(name),
			UserName: strings.TrimSpace(user),
			URL:      strings.TrimRight(strings.TrimSpace(url), "/"),
		}
		if err := account.Validate(); err != nil {
			die("%v", err)
		}
		if err := a.store.CreateAccount(cmd.Context(), account); err != nil {
			die("%v", err)
		}

		fmt.Printf("%s Account %q added (id %d)\n", ui.Render(ui.OkStyle, "✓"), account.Name, account.ID)
		if password != "" {
			fmt.Printf("Add the password to %s:\n\n", ui.Render(ui.DimStyle, "config.yaml"))
			fmt.Printf("  accounts:\n    %s:\n      password: %s\n", account.Name, password)
		}
		fmt.Println("\nRun 'deckhand sync' to fetch boards.")
	},
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered accounts",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			die("%v", err)
		}
		defer a.Close()

		accounts, err := a.store.ListAccounts(cmd.Context())
		if err != nil {
			die("%v", err)
		}
		if len(accounts) == 0 {
			fmt.Println("No accounts configured.")
			return
		}
		for _, account := range accounts {
			last := "never"
			if !account.LastSync.IsZero() {
				last = account.LastSync.Local().Format("2006-01-02 15:04")
			}
			fmt.Printf("%s  %s  %s\n",
				ui.Render(ui.TitleStyle, account.Name),
				account.UserName+"@"+account.URL,
				ui.Render(ui.DimStyle, "last sync "+last))
		}
	},
}

var accountRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove an account and its cached boards",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			die("%v", err)
		}
		defer a.Close()

		account, err := a.store.GetAccountByName(cmd.Context(), args[0])
		if err != nil {
			die("%v", err)
		}
		if err := a.store.DeleteAccount(cmd.Context(), account.ID); err != nil {
			die("%v", err)
		}
		fmt.Printf("%s Account %q removed\n", ui.Render(ui.OkStyle, "✓"), account.Name)
	},
}

func init() {
	accountAddCmd.Flags().String("name", "", "account nickname")
	accountAddCmd.Flags().String("url", "", "server base URL")
	accountAddCmd.Flags().String("user", "", "server user name")
	accountAddCmd.Flags().String("password", "", "app password (config file only)")

	accountCmd.AddCommand(accountAddCmd, accountListCmd, accountRemoveCmd)
	rootCmd.AddCommand(accountCmd)
}
