package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/xuri/excelize/v2"

	"intratool/internal/federation"
)

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		xlsx     string
		readOnly bool
	)
	cmd := &cobra.Command{
		Use:   "query <sql>",
		Short: "Run a statement across every module file",
		Long: `Run one SQL statement against the main database with every existing module
file attached under its alias, e.g. warehouse_management.inventory.

The statement runs unrestricted unless --read-only is given. Use --xlsx to
write the result rows to a spreadsheet instead of printing them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if readOnly {
				if err := federation.ReadOnly(args[0]); err != nil {
					return err
				}
			}
			rt, err := newRuntime(rootOpts)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			run := rt.exec.RunFederated
			if readOnly {
				run = rt.exec.RunReadOnly
			}
			res, err := run(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if xlsx != "" {
				if res.IsWrite() {
					return fmt.Errorf("statement returned no rows to export")
				}
				if err := exportExcel(xlsx, "Query", res); err != nil {
					return err
				}
				_, err = fmt.Fprintf(out, "wrote %d row(s) to %s\n", len(res.Rows), xlsx)
				return err
			}
			return printResult(out, rootOpts.Format, res)
		},
	}
	cmd.Flags().StringVar(&xlsx, "xlsx", "", "write result rows to this .xlsx file")
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "reject statements other than SELECT or WITH")
	return cmd
}

func printResult(w io.Writer, format string, res *federation.Result) error {
	if format == "json" {
		if res.IsWrite() {
			return writeJSON(w, res.Write)
		}
		return writeJSON(w, res.Records())
	}
	if res.IsWrite() {
		_, err := fmt.Fprintf(w, "%d row(s) changed, last insert rowid %d\n",
			res.Write.Changes, res.Write.LastInsertRowID)
		return err
	}
	tw := newTabbedWriter(w, res.Columns...)
	for _, row := range res.Rows {
		tw.WriteLine(row...)
	}
	if err := tw.Done(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "(%d row(s))\n", len(res.Rows))
	return err
}

// exportExcel writes the rows of res to path as a single sheet with a bold
// header row.
func exportExcel(path, sheetName string, res *federation.Result) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D3D3D3"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	for i, header := range res.Columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			return err
		}
	}

	for rowIdx, row := range res.Rows {
		cell, err := excelize.CoordinatesToCellName(1, rowIdx+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return err
		}
	}

	if len(res.Columns) > 0 {
		last, err := excelize.ColumnNumberToName(len(res.Columns))
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheetName, "A", last, 15); err != nil {
			return err
		}
	}

	if sheetName != "Sheet1" {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}
