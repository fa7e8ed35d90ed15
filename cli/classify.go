package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/warp/measure-engine/api"
	"github.com/warp/measure-engine/measure"
)

// classifyCmd groups the classification commands.
func classifyCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Show or change a sheet's persistent/measurement split",
		Long: `Every header of a sheet (except the auto columns) is either persistent,
entered once per session, or a measurement, entered per record.`,
	}

	cmd.AddCommand(classifyShowCmd(opts))
	cmd.AddCommand(classifySaveCmd(opts))
	return cmd
}

func classifyShowCmd(opts *rootOptions) *cobra.Command {
	var sheet string

	cmd := &cobra.Command{
		Use:   "show <workbook>",
		Short: "Show the split in effect for a sheet",
		Long: `Show the split in effect for a sheet: the saved one when it still matches
the headers, the defaults otherwise.

Examples:
  measure classify show Messungen.xlsx
  measure classify show Messungen.xlsx --sheet Linie2 --json`,
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
				displayClassification(cmd.OutOrStdout(), view)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&sheet, "sheet", "s", "", "Sheet name (default: first sheet)")
	return cmd
}

func classifySaveCmd(opts *rootOptions) *cobra.Command {
	var (
		sheet       string
		persistent  []string
		measurement []string
	)

	cmd := &cobra.Command{
		Use:   "save <workbook>",
		Short: "Save a new split for a sheet",
		Long: `Save a new split for a sheet. Together the two lists must name every
header of the sheet except the auto columns, each exactly once.

Examples:
  measure classify save Messungen.xlsx --persistent Charge_#,FA_# --measurement Breite,Höhe
  measure classify save Messungen.xlsx -s Linie2 -p Charge_# -m Breite -m Höhe`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := measure.Classification{
				Persistent:  trimAll(persistent),
				Measurement: trimAll(measurement),
			}
			return opts.run(cmd, func(a *app) error {
				if err := a.service.SaveClassification(cmd.Context(), args[0], sheet, c); err != nil {
					return err
				}
				view, err := a.service.OpenSheet(cmd.Context(), args[0], sheet)
				if err != nil {
					return err
				}
				if opts.json {
					return printJSON(cmd.OutOrStdout(), api.NewSheetDTO(view))
				}
				green.Fprintf(cmd.OutOrStdout(), "✓ Split saved for %s [%s]\n", measure.DisplayName(args[0]), view.Sheet)
				displayClassification(cmd.OutOrStdout(), view)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&sheet, "sheet", "s", "", "Sheet name (default: first sheet)")
	cmd.Flags().StringSliceVarP(&persistent, "persistent", "p", nil, "Persistent headers")
	cmd.Flags().StringSliceVarP(&measurement, "measurement", "m", nil, "Measurement headers")
	return cmd
}

func displayClassification(w io.Writer, view measure.SheetView) {
	fmt.Fprintf(w, "Persistent:  %s\n", listOrDash(view.Classification.Persistent))
	fmt.Fprintf(w, "Measurement: %s\n", listOrDash(view.Classification.Measurement))
	switch {
	case view.Reset:
		yellow.Fprintln(w, "Columns changed since the split was saved; defaults applied.")
	case !view.Stored:
		fmt.Fprintln(w, "(defaults, nothing saved yet)")
	}
	if view.Unusable {
		red.Fprintln(w, "No measurement fields: records cannot be captured for this sheet.")
	}
	if len(view.SavedSheets) > 0 {
		fmt.Fprintf(w, "Saved splits: %s\n", strings.Join(view.SavedSheets, ", "))
	}
}

func listOrDash(names []string) string {
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ", ")
}

func trimAll(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}
