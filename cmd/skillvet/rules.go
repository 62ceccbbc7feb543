package main

import (
	"encoding/json"
	"fmt"
	"os"

	"skillvet/internal/config"
	"skillvet/internal/rules"
	"skillvet/internal/ui"

	"github.com/spf13/cobra"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and manage the semantic rule catalog",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the active rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := activeCatalog()
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(c.Rules())
		}
		ui.SetColor(false)
		fmt.Fprintf(cmd.OutOrStdout(), "Source: %s (%d rules)\n", c.Source(), c.Len())
		fmt.Fprint(cmd.OutOrStdout(), ui.RulesTable(c))
		return nil
	},
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a YAML or JSON rule catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := rules.LoadFile(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rules OK\n", args[0], c.Len())
		return nil
	},
}

var rulesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the active catalog as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := activeCatalog()
		if err != nil {
			return err
		}
		data, err := rules.Marshal(c)
		if err != nil {
			return err
		}
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(output, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", output, err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d rules to %s\n", c.Len(), output)
		return nil
	},
}

func init() {
	rulesListCmd.Flags().Bool("json", false, "Print rules as JSON")
	rulesExportCmd.Flags().StringP("output", "o", "", "Write to a file instead of stdout")

	rulesCmd.AddCommand(rulesListCmd, rulesValidateCmd, rulesExportCmd)
	rootCmd.AddCommand(rulesCmd)
}

// activeCatalog is the configured rule file, or the builtin catalog.
func activeCatalog() (*rules.Catalog, error) {
	path := config.Get().RulesFile
	if path == "" {
		return rules.Default(), nil
	}
	c, err := rules.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	return c, nil
}
