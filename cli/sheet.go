package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/warp/measure-engine/api"
	"github.com/warp/measure-engine/measure"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
	bold   = color.New(color.Bold)
)

func headersCmd(opts *rootOptions) *cobra.Command {
	var sheet string

	cmd := &cobra.Command{
		Use:   "headers <workbook>",
		Short: "Show a sheet's headers and its classification",
		Long: `Read the header row of a sheet and show its columns together with the
reconciled persistent/measurement split.

A notice is printed when the stored split no longer matches the headers
and was reset to defaults, or when the sheet has no measurement field.

Examples:
  measure headers Messungen.xlsx
  measure headers Messungen.xlsx --sheet Linie2
  measure headers Messungen.xlsx --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(a *app) error {
				view, err := a.service.OpenSheet(cmd.Context(), args[0], sheet)
				if err != nil {
					return err
				}
				if opts.json {
					return printJSON(cmd.OutOrStdout(), api.NewSheetDTO(view))
				}
				displaySheet(cmd.OutOrStdout(), view)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&sheet, "sheet", "s", "", "Sheet name (default: first sheet)")
	return cmd
}

func displaySheet(w io.Writer, view measure.SheetView) {
	bold.Fprintf(w, "%s", measure.DisplayName(view.Path))
	fmt.Fprintf(w, " [%s]\n", view.Sheet)
	if len(view.SheetNames) > 1 {
		fmt.Fprintf(w, "Sheets: %s\n", strings.Join(view.SheetNames, ", "))
	}
	if len(view.SavedSheets) > 0 {
		fmt.Fprintf(w, "Saved splits: %s\n", strings.Join(view.SavedSheets, ", "))
	}
	fmt.Fprintln(w)

	persistent := set(view.Classification.Persistent)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "COL\tHEADER\tROLE")
	for _, name := range view.Headers.Names {
		col, _ := view.Headers.Column(name)
		role := "measurement"
		if _, ok := persistent[name]; ok {
			role = "persistent"
		} else if !contains(view.Classification.Measurement, name) {
			role = "auto"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", col, name, role)
	}
	tw.Flush()

	switch {
	case view.Reset:
		yellow.Fprintln(w, "\nColumns changed since the split was saved; defaults applied.")
	case !view.Stored:
		fmt.Fprintln(w, "\nNo saved split; defaults applied.")
	}
	if view.Unusable {
		red.Fprintln(w, "No measurement fields: records cannot be captured for this sheet.")
	}
}

func rowsCmd(opts *rootOptions) *cobra.Command {
	var (
		sheet string
		last  int
	)

	cmd := &cobra.Command{
		Use:   "rows <workbook>",
		Short: "Print the data rows of a sheet",
		Long: `Print every non-empty row below the header row with typed values.

Examples:
  measure rows Messungen.xlsx
  measure rows Messungen.xlsx --last 5
  measure rows Messungen.xlsx --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(a *app) error {
				head, err := a.service.OpenSheet(cmd.Context(), args[0], sheet)
				if err != nil {
					return err
				}
				rows, err := a.reader.ReadRows(args[0], head.Sheet, a.cfg.HeaderRow)
				if err != nil {
					return err
				}
				if last > 0 && len(rows) > last {
					rows = rows[len(rows)-last:]
				}

				if opts.json {
					dtos := make([]api.RowDTO, len(rows))
					for i, row := range rows {
						dtos[i] = api.NewRowDTO(row)
					}
					return printJSON(cmd.OutOrStdout(), api.RowsResponse{Path: args[0], Sheet: head.Sheet, Rows: dtos})
				}
				displayRows(cmd.OutOrStdout(), head.Headers.Names, rows)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&sheet, "sheet", "s", "", "Sheet name (default: first sheet)")
	cmd.Flags().IntVarP(&last, "last", "n", 0, "Only the last N rows")
	return cmd
}

func displayRows(w io.Writer, headers []string, rows []measure.Row) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No data rows.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ROW\t%s\n", strings.Join(headers, "\t"))
	for _, row := range rows {
		cells := make([]string, len(headers))
		for i, name := range headers {
			cells[i] = row.Values[name].String()
		}
		fmt.Fprintf(tw, "%d\t%s\n", row.Number, strings.Join(cells, "\t"))
	}
	tw.Flush()
}

// resolveSheet returns the sheet name OpenSheet would use for sheet.
func resolveSheet(ctx context.Context, a *app, path, sheet string) (string, error) {
	if sheet != "" {
		return sheet, nil
	}
	view, err := a.service.OpenSheet(ctx, path, "")
	if view.Sheet != "" {
		return view.Sheet, nil
	}
	return "", err
}

func set(names []string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
