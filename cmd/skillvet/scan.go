package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"skillvet/internal/archive"
	"skillvet/internal/config"
	"skillvet/internal/model"
	"skillvet/internal/orchestrator"
	"skillvet/internal/pipeline"
	"skillvet/internal/security"
	"skillvet/internal/ui"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// exitBlocked is the exit code for --fail-on-block when a package is blocked.
const exitBlocked = 2

var scanCmd = &cobra.Command{
	Use:   "scan <archive|->",
	Short: "Analyze a skill package archive",
	Long: `Analyze a .zip or .tar.gz skill package and print the combined report.
Use "-" to read the archive from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringP("format", "f", "json", "Output format: json, text or markdown")
	scanCmd.Flags().StringP("output", "o", "", "Write the report to a file instead of stdout")
	scanCmd.Flags().String("name", "", "Package name (default: archive file name)")
	scanCmd.Flags().Bool("fail-on-block", false, "Exit with status 2 when execution should be blocked")
	scanCmd.Flags().Bool("scan-only", false, "Run only the deterministic pattern scan")
	scanCmd.Flags().Bool("no-store", false, "Do not save the report")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	formatFlag, _ := cmd.Flags().GetString("format")
	format, err := ui.ParseFormat(formatFlag)
	if err != nil {
		return err
	}
	output, _ := cmd.Flags().GetString("output")
	name, _ := cmd.Flags().GetString("name")
	failOnBlock, _ := cmd.Flags().GetBool("fail-on-block")
	scanOnly, _ := cmd.Flags().GetBool("scan-only")
	noStore, _ := cmd.Flags().GetBool("no-store")

	data, defaultName, err := readArchive(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}
	if name == "" {
		name = defaultName
	}

	cfg := config.Get()
	var report *model.CombinedReport
	if scanOnly {
		report = patternOnlyReport(name, data, cfg)
	} else {
		st, err := buildStack(cfg, buildOptions{withStore: !noStore})
		if err != nil {
			return err
		}
		defer st.Close()

		report, err = st.pipeline.Run(cmd.Context(), pipeline.Input{Name: name, Data: data, Origin: "cli"})
		if report == nil {
			return err
		}
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
		}
	}

	out := cmd.OutOrStdout()
	styled := false
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
		ui.SetColor(false)
	} else if f, ok := out.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		styled = true
		ui.SetColor(true)
	} else {
		ui.SetColor(false)
	}

	if err := ui.Write(out, report, format, ui.Options{Styled: styled}); err != nil {
		return err
	}

	if failOnBlock && report.BlockExecution {
		exit(exitBlocked)
	}
	return nil
}

// readArchive loads path, or stdin for "-", and derives a package name.
func readArchive(stdin io.Reader, path string) ([]byte, string, error) {
	if path == "-" {
		data, err := io.ReadAll(io.LimitReader(stdin, orchestrator.DefaultMaxArchiveSize+1))
		if err != nil {
			return nil, "", fmt.Errorf("failed to read stdin: %w", err)
		}
		if len(data) > orchestrator.DefaultMaxArchiveSize {
			return nil, "", fmt.Errorf("archive exceeds %d bytes", orchestrator.DefaultMaxArchiveSize)
		}
		return data, "stdin", nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read archive: %w", err)
	}
	if info.IsDir() {
		return nil, "", fmt.Errorf("%s is a directory; pack it as .zip or .tar.gz first", path)
	}
	if info.Size() > orchestrator.DefaultMaxArchiveSize {
		return nil, "", fmt.Errorf("archive exceeds %d bytes", orchestrator.DefaultMaxArchiveSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read archive: %w", err)
	}

	base := filepath.Base(path)
	name, ok := orchestrator.ArchiveName(base)
	if !ok {
		name = base
	}
	return data, name, nil
}

// patternOnlyReport wraps a pattern scan in a combined report. Without the
// semantic branch nothing can request a block.
func patternOnlyReport(name string, data []byte, cfg config.Config) *model.CombinedReport {
	opts := archive.Options{MaxFileSize: cfg.MaxFileSize, MaxTotalSize: cfg.MaxTotalSize}
	scan := security.NewRegexScanner().ScanArchive(data, opts)

	report := &model.CombinedReport{
		Package:      name,
		RiskLevel:    scan.RiskLevel(),
		Findings:     scan.Findings,
		SkippedFiles: []string{},
		Score:        scan.Score,
		Scan:         &scan,
	}
	if res, err := archive.Extract(data, opts); err == nil {
		if res.Manifest != nil && res.Manifest.Name != "" {
			report.Package = res.Manifest.Name
		}
		report.SkippedFiles = append(report.SkippedFiles, res.SkippedFiles...)
	}
	if report.Findings == nil {
		report.Findings = []model.Finding{}
	}
	return report
}
