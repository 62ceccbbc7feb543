package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"skillvet/internal/config"
	"skillvet/internal/db"
	"skillvet/internal/model"
	"skillvet/internal/ui"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Browse stored analysis reports",
}

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		minRisk, _ := cmd.Flags().GetString("min-risk")
		blocked, _ := cmd.Flags().GetBool("blocked")
		sha, _ := cmd.Flags().GetString("sha256")
		asJSON, _ := cmd.Flags().GetBool("json")

		opts := db.ListOptions{Limit: limit, BlockedOnly: blocked, SHA256: sha}
		if minRisk != "" {
			level, ok := model.ParseRiskLevel(minRisk)
			if !ok {
				return fmt.Errorf("invalid --min-risk %q", minRisk)
			}
			opts.MinRisk = level
		}

		store, err := requireStore(config.Get())
		if err != nil {
			return err
		}
		defer store.Close()

		list, err := store.ListReports(cmd.Context(), opts)
		if err != nil {
			return err
		}
		if asJSON {
			if list == nil {
				list = []db.ReportSummary{}
			}
			data, err := ui.EncodeJSON(list)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		ui.SetColor(false)
		fmt.Fprint(cmd.OutOrStdout(), ui.ReportsTable(list))
		return nil
	},
}

var reportsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one stored report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		formatFlag, _ := cmd.Flags().GetString("format")
		format, err := ui.ParseFormat(formatFlag)
		if err != nil {
			return err
		}

		store, err := requireStore(config.Get())
		if err != nil {
			return err
		}
		defer store.Close()

		report, err := store.GetReport(cmd.Context(), args[0])
		if errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("no report with id %s", args[0])
		}
		if err != nil {
			return err
		}
		ui.SetColor(false)
		return ui.Write(cmd.OutOrStdout(), report, format, ui.Options{})
	},
}

// stdoutIsTerminal gates the interactive browser.
var stdoutIsTerminal = func() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

var reportsBrowseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse recent reports interactively",
	Long: `Open a full-screen table of recent reports. Press enter to read a report,
esc to go back and q to quit. Use "reports list" in scripts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !stdoutIsTerminal() {
			return errors.New("reports browse needs an interactive terminal; use reports list")
		}
		limit, _ := cmd.Flags().GetInt("limit")
		blocked, _ := cmd.Flags().GetBool("blocked")

		store, err := requireStore(config.Get())
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		list, err := store.ListReports(ctx, db.ListOptions{Limit: limit, BlockedOnly: blocked})
		if err != nil {
			return err
		}
		return ui.StartReportBrowser(list, func(id string) (*model.CombinedReport, error) {
			return store.GetReport(ctx, id)
		})
	},
}

var reportsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete reports older than a given age",
	RunE: func(cmd *cobra.Command, args []string) error {
		age, _ := cmd.Flags().GetDuration("older-than")
		if age <= 0 {
			return fmt.Errorf("--older-than must be positive")
		}

		store, err := requireStore(config.Get())
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.Cleanup(cmd.Context(), time.Now().Add(-age))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d reports\n", n)
		return nil
	},
}

func init() {
	reportsListCmd.Flags().Int("limit", db.DefaultListLimit, "Maximum number of reports")
	reportsListCmd.Flags().String("min-risk", "", "Only reports at or above this risk level")
	reportsListCmd.Flags().Bool("blocked", false, "Only reports that block execution")
	reportsListCmd.Flags().String("sha256", "", "Only reports for this archive digest")
	reportsListCmd.Flags().Bool("json", false, "Print as JSON")

	reportsShowCmd.Flags().StringP("format", "f", "json", "Output format: json, text or markdown")

	reportsBrowseCmd.Flags().Int("limit", db.DefaultListLimit, "Maximum number of reports")
	reportsBrowseCmd.Flags().Bool("blocked", false, "Only reports that block execution")

	reportsPruneCmd.Flags().Duration("older-than", 30*24*time.Hour, "Age cutoff")

	reportsCmd.AddCommand(reportsListCmd, reportsShowCmd, reportsBrowseCmd, reportsPruneCmd)
	rootCmd.AddCommand(reportsCmd)
}
