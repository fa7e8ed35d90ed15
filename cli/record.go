package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/measure-engine/api"
	"github.com/warp/measure-engine/measure"
)

// errBlocked is returned when a record failed validation. The details are
// already printed.
var errBlocked = errors.New("record not written: fix the invalid fields")

func validateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <field=value>...",
		Short: "Check measurement values without writing",
		Long: `Normalize and check measurement values the way append does, without
touching any workbook. Both decimal separators are accepted.

Examples:
  measure validate Breite=3,4 Höhe=1.250,5
  measure validate Breite= --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := parseFields(args)
			if err != nil {
				return err
			}
			result := measure.Validate(fields)
			if opts.json {
				if err := printJSON(cmd.OutOrStdout(), api.NewValidationDTO(result)); err != nil {
					return err
				}
			} else {
				displayValidation(cmd.OutOrStdout(), fields, result)
			}
			if result.HasErrors() {
				return errBlocked
			}
			return nil
		},
	}
	return cmd
}

func appendCmd(opts *rootOptions) *cobra.Command {
	var (
		sheet    string
		operator string
		setVals  []string
		at       string
	)

	cmd := &cobra.Command{
		Use:   "append <workbook> <field=value>...",
		Short: "Validate a record and append it as a new row",
		Long: `Validate the measurement values and append one row to the sheet.
Persistent values are given with --set. Missing auto columns (timestamp,
operator) are created on the first append.

Examples:
  measure append Messungen.xlsx --operator op-7 --set Charge_#=C-1 Breite=3,4 Höhe=2
  measure append Messungen.xlsx -s Linie2 -o op-7 Breite=3,4 --at 2024-03-01T09:30:00Z`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			measurements, err := parseFields(args[1:])
			if err != nil {
				return err
			}
			persistent, err := parseFields(setVals)
			if err != nil {
				return fmt.Errorf("--set: %w", err)
			}
			req := measure.SubmitRequest{
				Path:         args[0],
				Sheet:        sheet,
				OperatorID:   operator,
				Persistent:   persistent,
				Measurements: measurements,
			}
			if at != "" {
				ts, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
				req.Timestamp = ts
			}

			return opts.run(cmd, func(a *app) error {
				result, err := a.service.Submit(cmd.Context(), req)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if opts.json {
					if err := printJSON(out, api.NewSubmitResponse(result)); err != nil {
						return err
					}
				} else {
					displayValidation(out, measurements, result.Validation)
					if result.Write != nil {
						displayWrite(out, *result.Write)
					}
				}

				switch {
				case result.Validation.HasErrors():
					return errBlocked
				case result.Write != nil && !result.Write.Success:
					return result.Write.Err
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&sheet, "sheet", "s", "", "Sheet name (default: first sheet)")
	cmd.Flags().StringVarP(&operator, "operator", "o", "", "Operator ID written to the operator column")
	cmd.Flags().StringArrayVar(&setVals, "set", nil, "Persistent value as field=value (repeatable)")
	cmd.Flags().StringVar(&at, "at", "", "Timestamp (RFC 3339) instead of now")
	cmd.MarkFlagRequired("operator")
	return cmd
}

func historyCmd(opts *rootOptions) *cobra.Command {
	var (
		sheet string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "history <workbook>",
		Short: "List recent append attempts for a sheet",
		Long: `List the latest append attempts for a sheet, newest first. History is
kept by the sqlite store only.

Examples:
  measure history Messungen.xlsx --store sqlite
  measure history Messungen.xlsx -s Linie2 -n 5 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(a *app) error {
				name, err := resolveSheet(cmd.Context(), a, args[0], sheet)
				if err != nil {
					return err
				}
				history, err := a.service.History(cmd.Context(), args[0], name, limit)
				if err != nil {
					return err
				}

				if opts.json {
					dtos := make([]api.SubmissionDTO, len(history))
					for i, s := range history {
						dtos[i] = api.NewSubmissionDTO(s)
					}
					return printJSON(cmd.OutOrStdout(), dtos)
				}
				displayHistory(cmd.OutOrStdout(), history)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&sheet, "sheet", "s", "", "Sheet name (default: first sheet)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum entries (0 for all)")
	return cmd
}

// =============================================================================
// OUTPUT
// =============================================================================

func displayValidation(w io.Writer, fields map[string]string, r measure.ValidationResult) {
	for _, name := range sortedKeys(r.Normalized) {
		if v := r.Normalized[name]; v != nil && fields[name] != fmt.Sprint(*v) {
			fmt.Fprintf(w, "  %s: %q -> %v\n", name, fields[name], *v)
		}
	}
	for _, msg := range r.Warnings {
		yellow.Fprintf(w, "⚠ %s\n", msg)
	}
	for _, msg := range r.Errors {
		red.Fprintf(w, "✗ %s\n", msg)
	}
	if !r.HasErrors() && len(r.Warnings) == 0 {
		green.Fprintln(w, "✓ All values valid")
	}
}

func displayWrite(w io.Writer, r measure.WriteResult) {
	if !r.Success {
		red.Fprintf(w, "✗ Write failed (%s): %v\n", measure.KindOf(r.Err), r.Err)
		return
	}
	green.Fprintf(w, "✓ Row %d written\n", r.RowNumber)
	if len(r.ColumnsCreated) > 0 {
		yellow.Fprintf(w, "  Columns created: %s\n", strings.Join(r.ColumnsCreated, ", "))
	}
}

func displayHistory(w io.Writer, history []measure.Submission) {
	if len(history) == 0 {
		fmt.Fprintln(w, "No append attempts recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tOPERATOR\tROW\tRESULT")
	for _, s := range history {
		result := green.Sprint("ok")
		row := fmt.Sprint(s.RowNumber)
		if !s.Success {
			result = red.Sprintf("%s: %s", s.ErrorKind, s.ErrorMessage)
			row = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.At.Local().Format("2006-01-02 15:04:05"), s.OperatorID, row, result)
	}
	tw.Flush()
}

// =============================================================================
// ARGUMENT PARSING
// =============================================================================

// parseFields turns field=value arguments into a map. The value may be
// empty or contain '='; the field may not be empty or repeated.
func parseFields(args []string) (map[string]string, error) {
	fields := make(map[string]string, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("expected field=value, got %q", arg)
		}
		if _, dup := fields[name]; dup {
			return nil, fmt.Errorf("field %q given twice", name)
		}
		fields[name] = value
	}
	return fields, nil
}
