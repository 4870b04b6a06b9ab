// Package output renders accessctl results for terminals and scripts.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"
)

// Formats accepted by --output.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// NoColor disables ANSI escapes. It starts true when NO_COLOR is set or
// stdout is not a terminal.
var NoColor = color.NoColor

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// SetOutput redirects normal and error output, returning a restore func.
func SetOutput(out, errOut io.Writer) (restore func()) {
	oldOut, oldErr := stdout, stderr
	stdout, stderr = out, errOut
	return func() { stdout, stderr = oldOut, oldErr }
}

func paint(s string, attrs ...color.Attribute) string {
	if NoColor || len(attrs) == 0 {
		return s
	}
	c := color.New(attrs...)
	c.EnableColor()
	return c.Sprint(s)
}

func Success(format string, a ...any) {
	fmt.Fprintln(stdout, paint("✓ "+fmt.Sprintf(format, a...), color.FgGreen, color.Bold))
}

func Error(format string, a ...any) {
	fmt.Fprintln(stderr, paint("✗ "+fmt.Sprintf(format, a...), color.FgRed, color.Bold))
}

func Info(format string, a ...any) {
	fmt.Fprintln(stdout, paint(fmt.Sprintf(format, a...), color.FgCyan))
}

func Warn(format string, a ...any) {
	fmt.Fprintln(stdout, paint("⚠ "+fmt.Sprintf(format, a...), color.FgYellow))
}

func JSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// YAML writes v as YAML. Values are routed through their JSON form so the
// field names match the API.
func YAML(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(generic)
}

// Print renders v in format. table calls renderTable, which may be nil
// when the value has no tabular form; JSON is used then.
func Print(format string, v any, renderTable func()) error {
	switch format {
	case FormatJSON:
		return JSON(v)
	case FormatYAML:
		return YAML(v)
	case FormatTable, "":
		if renderTable == nil {
			return JSON(v)
		}
		renderTable()
		return nil
	default:
		return fmt.Errorf("unknown output format %q (supported: table, json, yaml)", format)
	}
}

type Table struct {
	headers []string
	rows    [][]string
}

func NewTable(headers []string) *Table {
	return &Table{
		headers: headers,
		rows:    [][]string{},
	}
}

func (t *Table) AddRow(row []string) {
	t.rows = append(t.rows, row)
}

func (t *Table) Render() {
	widths := make([]int, len(t.headers))
	for i, header := range t.headers {
		widths[i] = utf8.RuneCountInString(header)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], utf8.RuneCountInString(cell))
			}
		}
	}

	var b strings.Builder
	for i, header := range t.headers {
		b.WriteString(paint(pad(header, widths[i]), color.FgWhite, color.Bold))
		b.WriteString("  ")
	}
	b.WriteString("\n")

	for i := range t.headers {
		b.WriteString(strings.Repeat("-", widths[i]) + "  ")
	}
	b.WriteString("\n")

	for _, row := range t.rows {
		for i, cell := range row {
			if i >= len(widths) {
				break
			}
			b.WriteString(pad(cell, widths[i]) + "  ")
		}
		b.WriteString("\n")
	}
	fmt.Fprint(stdout, b.String())
}

func pad(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}
