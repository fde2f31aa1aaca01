package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/xuri/excelize/v2"

	"collectes/internal/calculator"
	"collectes/internal/config"
	"collectes/internal/exporter"
	"collectes/internal/importer"
	"collectes/internal/insights"
	"collectes/internal/parser"
	"collectes/internal/reconcile"
	"collectes/internal/taxonomy"
	"collectes/internal/util"
)

var (
	errIngestFailed    = errors.New("some files failed to import")
	errReconcileFailed = errors.New("reconciliation status is ERROR")
)

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
}

// sourceFiles 未指定文件时使用输入目录
func (a *app) sourceFiles(args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	dir := config.InputDir(a.cfg)
	files, err := importer.IngestDir(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no workbook found in %s", dir)
	}
	return files, nil
}

func (a *app) ingestCmd() *cobra.Command {
	var (
		force     bool
		noRebuild bool
		year      int
	)
	cmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Import workbooks (default: every workbook of the input directory)",
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := a.sourceFiles(args)
			if err != nil {
				return err
			}
			calc, err := a.calculator()
			if err != nil {
				return err
			}

			coord := importer.NewCoordinator(a.store, calc, a.logger.Named("importer"))
			report, err := coord.Run(cmd.Context(), importer.ImportOptions{
				Files:   files,
				Force:   force || a.cfg.Import.Force,
				Rebuild: a.cfg.Import.Rebuild && !noRebuild && year == 0,
			})
			if err != nil {
				return err
			}
			if year > 0 && !noRebuild {
				res, err := calc.Rebuild(year)
				if err != nil {
					return err
				}
				report.Rebuilt = append(report.Rebuilt, *res)
			}

			if err := a.output(cmd.OutOrStdout(), report, func(w io.Writer) error {
				return printBatch(w, report)
			}); err != nil {
				return err
			}
			if report.Errors > 0 {
				return fmt.Errorf("%d file(s): %w", report.Errors, errIngestFailed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "re-import files already imported (full replacement)")
	cmd.Flags().BoolVar(&noRebuild, "no-rebuild", false, "skip the aggregate rebuild")
	cmd.Flags().IntVar(&year, "year", 0, "rebuild only this year after import")
	return cmd
}

func printBatch(w io.Writer, report *importer.BatchReport) error {
	fmt.Fprintln(w, titleStyle.Render("Import "+report.BatchID))
	tw := newTabWriter(w)
	fmt.Fprintln(tw, "statut\tfichier\tlignes\terreurs\tpoids\t")
	for _, fr := range report.Files {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t\n", fr.Status, fr.Filename, fr.ImportedRows, fr.ErrorRows, util.FormatKg(fr.ImportedKg))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, fr := range report.Files {
		switch fr.Status {
		case parser.StatusSkipped:
			fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("%s: %s", fr.Filename, fr.Reason)))
		case parser.StatusError:
			fmt.Fprintln(w, errorStyle.Render(fmt.Sprintf("%s: %s", fr.Filename, fr.Error)))
		}
		for raw, n := range fr.UnmappedSites {
			fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("%s: lieu non reconnu %q (%d lignes)", fr.Filename, raw, n)))
		}
	}
	for _, r := range report.Rebuilt {
		fmt.Fprintf(w, "agrégats %s reconstruits: %d cellules, %s\n", yearLabel(r.Year), r.Cells, util.FormatKg(r.TotalKg))
	}
	fmt.Fprintf(w, "%d importé(s), %d ignoré(s), %d en erreur\n", report.Imported, report.Skipped, report.Errors)
	return nil
}

func yearLabel(year int) string {
	if year == 0 {
		return "toutes années"
	}
	return fmt.Sprint(year)
}

func yearFlag(cmd *cobra.Command, year *int) {
	cmd.Flags().IntVar(year, "year", 0, "year (0 = all years)")
	_ = cmd.MarkFlagRequired("year")
}

func (a *app) rebuildCmd() *cobra.Command {
	var year int
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the site x month x category aggregates from stored records",
		RunE: func(cmd *cobra.Command, args []string) error {
			calc, err := a.calculator()
			if err != nil {
				return err
			}
			res, err := calc.Rebuild(year)
			if err != nil {
				return err
			}
			return a.output(cmd.OutOrStdout(), res, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "agrégats %s reconstruits: %d cellules, %d lignes, %s\n",
					yearLabel(res.Year), res.Cells, res.Records, util.FormatKg(res.TotalKg))
				return err
			})
		},
	}
	yearFlag(cmd, &year)
	return cmd
}

func (a *app) totalsCmd() *cobra.Command {
	var year int
	cmd := &cobra.Command{
		Use:   "totals",
		Short: "Per-site totals, grand total, shares and the conservation diagnostic",
		RunE: func(cmd *cobra.Command, args []string) error {
			calc, err := a.calculator()
			if err != nil {
				return err
			}
			totals, err := calc.Totals(year)
			if err != nil {
				return err
			}
			return a.output(cmd.OutOrStdout(), totals, func(w io.Writer) error {
				return printTotals(w, totals)
			})
		},
	}
	yearFlag(cmd, &year)
	return cmd
}

func printTotals(w io.Writer, t *calculator.Totals) error {
	fmt.Fprintln(w, titleStyle.Render("Totaux "+yearLabel(t.Year)))
	tw := newTabWriter(w)
	fmt.Fprintln(tw, "site\tTOTAL\tsans massicot/démantèlement\tDECHETS ULTIMES\tpart\t")
	for _, s := range t.PerSite {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n", s.Site,
			util.FormatKg(s.Total.Total), util.FormatKg(s.Total.TotalExclTerminal),
			util.FormatKg(s.Total.DechetsUltimes), util.FormatShare(s.Share))
	}
	fmt.Fprintf(tw, "TOTAL\t%s\t%s\t%s\t%s\t\n",
		util.FormatKg(t.Grand.Total), util.FormatKg(t.Grand.TotalExclTerminal),
		util.FormatKg(t.Grand.DechetsUltimes), util.FormatShare(1))
	if err := tw.Flush(); err != nil {
		return err
	}
	return printDiagnostic(w, t.Diagnostics)
}

func printDiagnostic(w io.Writer, d calculator.ConservationDiagnostic) error {
	status := reconcile.StatusOK
	if !d.Balanced {
		status = reconcile.StatusError
	}
	fmt.Fprintf(w, "\nconservation %s\n", renderStatus(status))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "  brut\t%s\n", util.FormatKg(d.RawTotalKg))
	fmt.Fprintf(tw, "  exclu (date)\t%s (%d lignes)\n", util.FormatKg(d.ExcludedByDateKg), d.ExcludedByDateRows)
	fmt.Fprintf(tw, "  exclu (poids)\t%d lignes\n", d.ExcludedByWeightRows)
	fmt.Fprintf(tw, "  après filtre date\t%s\n", util.FormatKg(d.AfterDateFilterKg))
	fmt.Fprintf(tw, "  AUTRES\t%s (%d lignes)\n", util.FormatKg(d.AutresKg), d.AutresRows)
	fmt.Fprintf(tw, "  terminal\t%s\n", util.FormatKg(d.TerminalKg))
	fmt.Fprintf(tw, "  total général\t%s\n", util.FormatKg(d.GrandTotalKg))
	fmt.Fprintf(tw, "  écart\t%s\n", util.FormatKg(d.GapKg))
	return tw.Flush()
}

func (a *app) synthesizeCmd() *cobra.Command {
	var (
		year int
		out  string
		open bool
	)
	cmd := &cobra.Command{
		Use:   "synthesize",
		Short: "Write the CALCUL POIDS workbook and verify its formulas and cached values",
		RunE: func(cmd *cobra.Command, args []string) error {
			calc, err := a.calculator()
			if err != nil {
				return err
			}
			exp := exporter.NewExporter(calc, a.logger.Named("exporter"))
			f, summary, err := exp.Export(exporter.ExportOptions{Year: year})
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			path, err := saveReport(f, a.cfg, out, year)
			if err != nil {
				return err
			}

			result := map[string]any{
				"file":         path,
				"title":        exporter.Title(summary),
				"sites":        len(summary.Sites),
				"grandTotalKg": summary.Grand.Total,
			}
			if err := a.output(cmd.OutOrStdout(), result, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "%s\n%s: %d site(s), %s\n%s\n",
					titleStyle.Render(exporter.Title(summary)), exporter.SheetName,
					len(summary.Sites), util.FormatKg(summary.Grand.Total), path)
				return err
			}); err != nil {
				return err
			}

			if open {
				if err := util.OpenBrowserWithFallback(path); err != nil {
					a.logger.Sugar().Warnf("cannot open %s: %v", path, err)
				}
			}
			return nil
		},
	}
	yearFlag(cmd, &year)
	cmd.Flags().StringVarP(&out, "out", "o", "", "output .xlsx path (default: data/exports/collectes_<year>_<timestamp>.xlsx)")
	cmd.Flags().BoolVar(&open, "open", false, "open the workbook once written")
	return cmd
}

func (a *app) reconcileCmd() *cobra.Command {
	var year int
	cmd := &cobra.Command{
		Use:   "reconcile [files...]",
		Short: "Compare totals computed from the source files with totals from the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := a.sourceFiles(args)
			if err != nil {
				return err
			}
			calc, err := a.calculator()
			if err != nil {
				return err
			}
			report, err := reconcile.New(calc, a.logger.Named("reconcile")).
				Run(cmd.Context(), year, files, reconcile.FromConfig(a.cfg.Reconcile))
			if err != nil {
				return err
			}
			if err := a.output(cmd.OutOrStdout(), report, func(w io.Writer) error {
				return printReconcile(w, report)
			}); err != nil {
				return err
			}
			if report.Status() == reconcile.StatusError {
				return errReconcileFailed
			}
			return nil
		},
	}
	yearFlag(cmd, &year)
	return cmd
}

func printReconcile(w io.Writer, r *reconcile.Report) error {
	fmt.Fprintf(w, "%s %s\n", titleStyle.Render("Rapprochement "+yearLabel(r.Year)), renderStatus(r.Status()))
	unit := r.Comparison.Unit
	tw := newTabWriter(w)
	fmt.Fprintf(tw, "\tsources (%s)\tbase (%s)\técart\técart %%\tstatut\t\n", unit, unit)
	lines := append([]reconcile.Line{r.Comparison.Grand}, r.Comparison.Sites...)
	for _, l := range lines {
		fmt.Fprintf(tw, "%s\t%.3f\t%.3f\t%.3f\t%.2f\t%s\t\n", l.Name, l.A, l.B, l.Diff, l.DiffPercent, l.Status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "%d fichier(s) source, %d ligne(s) source, %d ligne(s) en base\n",
		len(r.Source.Files), r.Source.Records, r.Store.Records)
	return nil
}

func (a *app) insightsCmd() *cobra.Command {
	var (
		year        int
		granularity string
		limit       int
	)
	cmd := &cobra.Command{
		Use:       "insights <kind>",
		Short:     "Analytical views over stored records",
		Long:      "Kinds: " + strings.Join(insights.Kinds, ", "),
		Args:      cobra.ExactArgs(1),
		ValidArgs: insights.Kinds,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := insights.ParseGranularity(granularity)
			if err != nil {
				return err
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			svc := insights.NewService(st, a.logger.Named("insights"))
			result, err := svc.Compute(args[0], insights.Query{Year: year, Granularity: g, Limit: limit})
			if err != nil {
				return err
			}
			return a.output(cmd.OutOrStdout(), result, func(w io.Writer) error {
				fmt.Fprintln(w, titleStyle.Render(args[0]+" "+yearLabel(year)))
				return writeStructured(w, formatYAML, result)
			})
		},
	}
	yearFlag(cmd, &year)
	cmd.Flags().StringVar(&granularity, "granularity", "", "timeseries granularity: day, week or month")
	cmd.Flags().IntVar(&limit, "limit", insights.DefaultLimit, "max items for anomalies and duplicates")
	return cmd
}

func (a *app) duplicatesCmd() *cobra.Command {
	var (
		year  int
		limit int
	)
	cmd := &cobra.Command{
		Use:   "duplicates",
		Short: "Rows sharing file, date, location, category, sub-category and flux",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			groups, err := insights.NewService(st, a.logger.Named("insights")).Duplicates(year, limit)
			if err != nil {
				return err
			}
			return a.output(cmd.OutOrStdout(), groups, func(w io.Writer) error {
				return printDuplicates(w, groups)
			})
		},
	}
	yearFlag(cmd, &year)
	cmd.Flags().IntVar(&limit, "limit", insights.DefaultLimit, "max groups")
	return cmd
}

func printDuplicates(w io.Writer, groups []insights.DuplicateGroup) error {
	if len(groups) == 0 {
		_, err := fmt.Fprintln(w, okStyle.Render("aucun doublon"))
		return err
	}
	for _, g := range groups {
		fmt.Fprintf(w, "%s %s | %s | %s | %s | %s: %d lignes, %s\n",
			warnStyle.Render(g.SourceFile), g.Date, g.Location, g.Category, g.SubCategory, g.Flux,
			g.Count, util.FormatKg(g.TotalKg))
		for _, r := range g.Rows {
			fmt.Fprintf(w, "    %s!%d  %s\n", r.Sheet, r.RowIndex, util.FormatKg(r.WeightKg))
		}
	}
	return nil
}

func (a *app) classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <category> [sub-category] [flux] [orientation]",
		Short: "Show the report category a raw record maps to",
		Args:  cobra.RangeArgs(1, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := make([]string, 4)
			copy(in, args)
			c := taxonomy.ClassifyExplain(taxonomy.Input{
				Category:    in[0],
				SubCategory: in[1],
				Flux:        in[2],
				Orientation: in[3],
			})
			return a.output(cmd.OutOrStdout(), c, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "%s  %s\n", titleStyle.Render(string(c.Category)), mutedStyle.Render("règle: "+string(c.Rule)))
				return err
			})
		},
	}
}

func (a *app) siteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "site <raw location>",
		Short: "Show the canonical site a raw location resolves to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := taxonomy.ResolveSite(args[0])
			return a.output(cmd.OutOrStdout(), res, func(w io.Writer) error {
				style := mutedStyle
				if res.Unmapped() {
					style = warnStyle
				}
				_, err := fmt.Fprintf(w, "%s  %s\n", titleStyle.Render(string(res.Site)), style.Render("correspondance: "+string(res.Match)))
				return err
			})
		},
	}
}

// saveReport --out 为空时写入导出目录
func saveReport(f *excelize.File, cfg *config.AppConfig, out string, year int) (string, error) {
	if out == "" {
		return exporter.SaveAs(f, config.GetDataPath(cfg, "exports", ""), year)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}
	if err := f.SaveAs(out); err != nil {
		return "", fmt.Errorf("failed to save report: %w", err)
	}
	return out, nil
}
