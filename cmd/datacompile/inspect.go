package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/datacompile/internal/xlsx"
)

func newInspectCmd() *cobra.Command {
	var (
		reader string
		rows   int
	)
	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Decode a spreadsheet or CSV file and print its columns and first rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pkg, err := xlsx.ReaderFor(reader)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return inspect(cmd.OutOrStdout(), xlsx.NewDecoder(pkg, xlsx.CSVOptions{}), filepath.Base(args[0]), data, rows)
		},
	}
	cmd.Flags().StringVar(&reader, "reader", xlsx.StrategyFast, "Spreadsheet reader: fast or dom")
	cmd.Flags().IntVarP(&rows, "rows", "n", 10, "Number of rows to print")
	return cmd
}

func inspect(out io.Writer, dec *xlsx.Decoder, name string, data []byte, rows int) error {
	if xlsx.Ext(name) == "xlsx" {
		sheets, err := xlsx.SheetNames(data)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "sheets: %s\n", strings.Join(sheets, ", "))
	}

	s, err := dec.Decode(name, data)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "reader: %s\nrows: %d\ncolumns: %d\n\n", readerName(dec, name), s.Rows(), s.Width())

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(s.Headers(), "\t"))
	for i := range min(rows, s.Rows()) {
		cells := make([]string, s.Width())
		for j := range s.Columns {
			cells[j] = s.Columns[j].Text(i)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func readerName(dec *xlsx.Decoder, name string) string {
	switch xlsx.Ext(name) {
	case "csv":
		return "csv"
	case "xls":
		return "xls"
	default:
		return dec.Package.Name()
	}
}
