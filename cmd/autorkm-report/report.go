package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"autorkm/internal/aggregator"
	"autorkm/internal/cache"
	"autorkm/internal/cli"
	"autorkm/internal/core"
	applog "autorkm/internal/log"
	"autorkm/internal/services"
	"autorkm/internal/sheets"
	"autorkm/internal/sheets/google"
	"autorkm/internal/sheets/xlsx"
)

// Output formats supported by --format.
const (
	formatTable    = "table"
	formatMarkdown = "markdown"
	formatCSV      = "csv"
)

type options struct {
	sheets   bool
	prefix   string
	limit    int
	sections []string
	out      string
	format   string
	verbose  bool
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "autorkm-report [file.xlsx]",
		Short: "Summarise a complaint workbook",
		Long: `Reads a complaint workbook (header in row 1) and prints every AUTO-RKM
summary as a table. With --sheets the configured Google Sheet is read instead.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, err := load(cmd.Context(), opts, args, stderr)
			if err != nil {
				return err
			}
			r := newRenderer(stdout, opts.format)
			if err := r.renderReport(entry, opts.sections); err != nil {
				return err
			}
			if opts.out != "" {
				return writeWorkbook(opts.out, entry.Report, opts.sections)
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVar(&opts.sheets, "sheets", false, "read the Google Sheet configured by GOOGLE_SPREADSHEET_ID")
	flags.StringVar(&opts.prefix, "prefix", "", "agency prefix for the per-category agency views (e.g. Dinas)")
	flags.IntVar(&opts.limit, "limit", aggregator.TopN, "rows kept by the top-N views")
	flags.StringVar(&opts.format, "format", formatTable, "output format: table, markdown or csv")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log progress to stderr")
	cmd.Flags().StringSliceVar(&opts.sections, "section", nil, "only these sections ("+strings.Join(aggregator.SectionIDs(), ", ")+")")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "also write the summaries to this XLSX workbook")

	cmd.AddCommand(newTopicsCommand(stdout, stderr, &opts))
	return cmd
}

func newTopicsCommand(stdout, stderr io.Writer, opts *options) *cobra.Command {
	var agency, category string

	cmd := &cobra.Command{
		Use:   "topics [file.xlsx]",
		Short: "Break one agency's completed records down by topic",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if agency == "" {
				return errors.New("--agency is required")
			}
			entry, err := load(cmd.Context(), *opts, args, stderr)
			if err != nil {
				return err
			}
			rows, err := aggregator.CategoryTopics(entry.Dataset, category, agency)
			if err != nil {
				return err
			}
			title := "Topik " + agency
			if category != "" {
				title += " (" + category + ")"
			}
			return newRenderer(stdout, opts.format).render(title, core.CountTable("topik", core.HeaderTopics, rows))
		},
	}
	cmd.Flags().StringVar(&agency, "agency", "", "agency name, matched exactly")
	cmd.Flags().StringVar(&category, "category", "", "Keluhan or Permohonan Informasi; empty for every category")
	return cmd
}

// load reads the dataset from the file argument or the Google Sheet and
// builds its report.
func load(ctx context.Context, opts options, args []string, stderr io.Writer) (*services.Entry, error) {
	switch opts.format {
	case formatTable, formatMarkdown, formatCSV:
	default:
		return nil, fmt.Errorf("unknown format %q", opts.format)
	}
	for _, id := range opts.sections {
		if !knownSection(id) {
			return nil, fmt.Errorf("unknown section %q", id)
		}
	}

	level := "warn"
	if opts.verbose {
		level = "debug"
	}
	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(level),
		Format:    "text",
		Component: applog.ComponentApp,
		Output:    stderr,
	})

	svc := services.NewReportService(
		cache.NewLRUCache[*services.Entry](1, time.Hour),
		services.WithLogger(logger),
		services.WithReportOptions(aggregator.ReportOptions{
			CategoryAgencyPrefix: opts.prefix,
			Limit:                opts.limit,
		}),
	)

	var (
		reader sheets.DatasetReader
		source string
	)
	switch {
	case opts.sheets && len(args) > 0:
		return nil, errors.New("pass either a file or --sheets, not both")
	case opts.sheets:
		cfg, err := cli.LoadConfig()
		if err != nil {
			return nil, err
		}
		if !cfg.SheetsEnabled() {
			return nil, services.ErrSheetsDisabled
		}
		client, err := google.New(ctx, google.Options{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			return nil, err
		}
		reader, source = client, services.SourceSheets
	case len(args) == 1:
		reader, source = xlsx.FileReader{Path: args[0]}, services.SourceFile
	default:
		return nil, errors.New("a workbook path or --sheets is required")
	}

	return svc.Load(ctx, reader, source)
}

func knownSection(id string) bool {
	for _, s := range aggregator.SectionIDs() {
		if s == id {
			return true
		}
	}
	return false
}

func selected(rep *aggregator.Report, ids []string) []aggregator.Section {
	if len(ids) == 0 {
		return rep.Sections
	}
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []aggregator.Section
	for _, s := range rep.Sections {
		if want[s.ID] {
			out = append(out, s)
		}
	}
	return out
}

// writeWorkbook saves every selected, derived section as one sheet.
func writeWorkbook(path string, rep *aggregator.Report, ids []string) error {
	var tables []core.Table
	for _, s := range selected(rep, ids) {
		if s.OK() {
			tables = append(tables, s.Table)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := xlsx.WriteWorkbook(f, tables...); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// renderer prints tables with go-pretty.
type renderer struct {
	out    io.Writer
	format string
}

func newRenderer(out io.Writer, format string) *renderer {
	return &renderer{out: out, format: format}
}

func (r *renderer) renderReport(e *services.Entry, ids []string) error {
	rep := e.Report
	fmt.Fprintf(r.out, "Baris: %d  Selesai: %d  Kolom: %s\n\n", rep.Rows, rep.Completed, joinColumns(rep.Columns))
	for _, s := range selected(rep, ids) {
		if !s.OK() {
			fmt.Fprintf(r.out, "%s\n  tidak dapat dihitung: %v\n\n", s.Title, s.Err)
			continue
		}
		if err := r.render(s.Title, s.Table); err != nil {
			return err
		}
	}
	return nil
}

func (r *renderer) render(title string, t core.Table) error {
	tw := table.NewWriter()
	tw.SetOutputMirror(r.out)
	tw.SetStyle(table.StyleLight)
	tw.SetTitle(title)

	header := make(table.Row, len(t.Headers))
	for i, h := range t.Headers {
		header[i] = h
	}
	tw.AppendHeader(header)
	for _, row := range t.Rows {
		tw.AppendRow(table.Row(row))
	}

	switch r.format {
	case formatMarkdown:
		tw.RenderMarkdown()
	case formatCSV:
		tw.RenderCSV()
	default:
		tw.Render()
	}
	_, err := fmt.Fprintln(r.out)
	return err
}

func joinColumns(cols []core.Column) string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}
