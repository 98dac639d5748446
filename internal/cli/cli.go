package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/mailkeep/core/internal/api/middleware"
	"github.com/mailkeep/core/internal/config"
	"github.com/mailkeep/core/internal/services"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	db            *gorm.DB
	cfg           *config.Config
	apiKeyManager *middleware.APIKeyManager
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "mailkeep",
	Short: "MailKeep incremental mail archiver",
	Long: `MailKeep mirrors remote mailboxes (IMAP, POP3, Gmail API) into a local
content-addressed .eml archive without ever re-downloading a message.

Without a subcommand the daemon starts: periodic syncs plus the HTTP
trigger API.

Examples:
  mailkeep key show           # show the control API key
  mailkeep key reset          # rotate the control API key
  mailkeep accounts           # list configured accounts
  mailkeep sync               # sync all accounts once, in the foreground
  mailkeep sync work-imap     # sync one account once`,
}

// Execute runs the CLI with the provided database and config
func Execute(database *gorm.DB, conf *config.Config) {
	db = database
	cfg = conf

	var err error
	apiKeyManager, err = middleware.NewAPIKeyManager(cfg.DataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize API key manager: %v\n", err)
		os.Exit(1)
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(keyCmd)
	rootCmd.AddCommand(accountsCmd)
	rootCmd.AddCommand(syncCmd)
}

// keyCmd manages the control API key
var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the control API key",
}

var keyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current API key",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(apiKeyManager.GetCurrentKey())
	},
}

var keyResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Generate a new API key, invalidating the old one",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := apiKeyManager.ResetKey()
		if err != nil {
			return err
		}
		fmt.Println(key)
		return nil
	},
}

func init() {
	keyCmd.AddCommand(keyShowCmd)
	keyCmd.AddCommand(keyResetCmd)
}

// accountsCmd lists the configured accounts
var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List configured accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		accounts, err := config.LoadAccounts(cfg.AccountsDir)
		if err != nil {
			return err
		}
		if len(accounts) == 0 {
			fmt.Printf("No accounts configured in %s\n", cfg.AccountsDir)
			return nil
		}

		runService := services.NewRunService(db)
		for _, acct := range accounts {
			line := fmt.Sprintf("%-20s %-10s every %s", acct.Name, acct.Type, acct.SyncInterval())
			if run, err := runService.LastRun(acct.Name); err == nil && run != nil {
				if run.Error != "" {
					line += fmt.Sprintf("  last run %s: FAILED (%s)", run.FinishedAt.Format("2006-01-02 15:04"), run.Error)
				} else {
					line += fmt.Sprintf("  last run %s: %d new", run.FinishedAt.Format("2006-01-02 15:04"), run.NewMessages)
				}
			}
			fmt.Println(line)
		}
		return nil
	},
}

// syncCmd runs a one-off foreground sync
var syncCmd = &cobra.Command{
	Use:   "sync [account]",
	Short: "Sync all accounts (or one named account) once and exit",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		accounts, err := config.LoadAccounts(cfg.AccountsDir)
		if err != nil {
			return err
		}

		runService := services.NewRunService(db)
		orchestrator := services.NewOrchestrator(accounts, cfg.GetArchiveBaseDir(), cfg.SecretsDir, runService)

		names := make([]string, 0, len(accounts))
		if len(args) == 1 {
			names = append(names, args[0])
		} else {
			for _, acct := range accounts {
				names = append(names, acct.Name)
			}
		}

		var failed bool
		for _, name := range names {
			count, err := orchestrator.SyncNow(context.Background(), name)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: sync failed: %v\n", name, err)
				failed = true
				continue
			}
			fmt.Printf("%s: %d new messages\n", name, count)
		}
		if failed {
			return fmt.Errorf("one or more accounts failed to sync")
		}
		return nil
	},
}
