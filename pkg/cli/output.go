package cli

import (
	"fmt"
	"io"

	"github.com/bytedance/sonic"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

// tabular is something that can render itself as table rows.
type tabular interface {
	header() []string
	rows() [][]string
}

// printObject writes v in the chosen format. Table output uses t and falls
// back to JSON when t is nil.
func printObject(w io.Writer, format string, v any, t tabular) error {
	switch format {
	case outputJSON:
		return printJSON(w, v)
	case outputYAML:
		return printYAML(w, v)
	case outputTable, "":
		if t == nil {
			return printJSON(w, v)
		}
		printTable(w, t.header(), t.rows())
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func printJSON(w io.Writer, v any) error {
	b, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

// printYAML goes through JSON first so keys follow the wire names.
func printYAML(w io.Writer, v any) error {
	b, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		return err
	}
	var generic any
	if err := sonic.ConfigStd.Unmarshal(b, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}

func printTable(w io.Writer, header []string, data [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}
