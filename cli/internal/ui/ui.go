// Package ui renders CLI output: messages, statements, result rows and
// markdown explanations.
package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/pterm/pterm"

	"github.com/readingbuddy/dbal/query/domain"
)

var (
	// Out receives regular output; Err receives errors.
	Out io.Writer = os.Stdout
	Err io.Writer = os.Stderr
)

var (
	PrimaryColor   = lipgloss.Color("#00D9FF")
	SuccessColor   = lipgloss.Color("#00FF88")
	WarningColor   = lipgloss.Color("#FFB800")
	ErrorColor     = lipgloss.Color("#FF4444")
	SecondaryColor = lipgloss.Color("#6C757D")

	TitleStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(SuccessColor).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(WarningColor).
			Bold(true)

	SecondaryStyle = lipgloss.NewStyle().
			Foreground(SecondaryColor)

	SQLStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(SecondaryColor).
			Padding(0, 1)
)

// Type colors for bound arguments.
var argColors = map[string]*color.Color{
	"string":  color.New(color.FgGreen),
	"int64":   color.New(color.FgCyan),
	"float64": color.New(color.FgCyan),
	"bool":    color.New(color.FgMagenta),
	"<nil>":   color.New(color.FgYellow),
}

// PrintHeader prints a boxed title.
func PrintHeader(title, subtitle string) {
	header := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(PrimaryColor).
		Padding(0, 2).
		Render(lipgloss.JoinVertical(lipgloss.Left,
			TitleStyle.Render(title),
			SecondaryStyle.Render(subtitle),
		))
	fmt.Fprintln(Out, header)
}

// PrintSuccess prints a success message
func PrintSuccess(format string, args ...any) {
	fmt.Fprintln(Out, SuccessStyle.Render("✓ "+fmt.Sprintf(format, args...)))
}

// PrintError prints an error message
func PrintError(format string, args ...any) {
	fmt.Fprintln(Err, ErrorStyle.Render("✗ "+fmt.Sprintf(format, args...)))
}

// PrintWarning prints a warning message
func PrintWarning(format string, args ...any) {
	fmt.Fprintln(Out, WarningStyle.Render("⚠ "+fmt.Sprintf(format, args...)))
}

// PrintDBError prints a normalized query error with its code, detail and
// hint when present.
func PrintDBError(e *domain.Error) {
	if e == nil {
		return
	}
	head := string(e.Kind)
	if e.Code != "" {
		head += " [" + e.Code + "]"
	}
	PrintError("%s: %s", head, e.Message)
	if e.Details != "" {
		fmt.Fprintln(Err, SecondaryStyle.Render("  detail: "+e.Details))
	}
	if e.Hint != "" {
		fmt.Fprintln(Err, SecondaryStyle.Render("  hint: "+e.Hint))
	}
}

// PrintTable prints a table using pterm
func PrintTable(headers []string, rows [][]string) error {
	data := pterm.TableData{headers}
	data = append(data, rows...)
	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	fmt.Fprintln(Out, out)
	return nil
}

// PrintStatement prints compiled SQL and its bound arguments.
func PrintStatement(stmt domain.Statement) error {
	fmt.Fprintln(Out, SQLStyle.Render(stmt.SQL))
	if len(stmt.Args) == 0 {
		fmt.Fprintln(Out, SecondaryStyle.Render("no arguments"))
		return nil
	}
	rows := make([][]string, len(stmt.Args))
	for i, arg := range stmt.Args {
		typ := fmt.Sprintf("%T", arg)
		val := formatCell(arg)
		if c, ok := argColors[typ]; ok {
			val = c.Sprint(val)
		}
		rows[i] = []string{fmt.Sprintf("$%d", i+1), typ, val}
	}
	return PrintTable([]string{"Param", "Type", "Value"}, rows)
}

// ExplainMarkdown describes a definition and its statement as markdown.
func ExplainMarkdown(def domain.Definition, stmt domain.Statement) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s on `%s`\n\n", strings.ToUpper(string(def.Operation)), def.Table)
	fmt.Fprintf(&b, "Result mode: **%s**\n\n", def.Mode)

	if len(def.Filters) > 0 {
		b.WriteString("## Filters\n\n")
		for _, f := range def.Filters {
			if f.Operator == domain.In {
				vals := make([]string, len(f.Values))
				for i, v := range f.Values {
					vals[i] = v.String()
				}
				fmt.Fprintf(&b, "- `%s` **in** (%s)\n", f.Column, strings.Join(vals, ", "))
				continue
			}
			fmt.Fprintf(&b, "- `%s` **%s** %s\n", f.Column, f.Operator, f.Value.String())
		}
		b.WriteString("\n")
	} else if def.Operation == domain.Update || def.Operation == domain.Delete {
		b.WriteString("> **Warning:** no filters, every row in the table is affected.\n\n")
	}

	if def.Order != nil {
		dir := "descending"
		if def.Order.Ascending {
			dir = "ascending"
		}
		fmt.Fprintf(&b, "Ordered by `%s` %s.\n\n", def.Order.Column, dir)
	}
	if def.Range != nil {
		fmt.Fprintf(&b, "Rows %d to %d (inclusive).\n\n", def.Range.From, def.Range.To)
	} else if def.Limit != nil {
		fmt.Fprintf(&b, "At most %d rows.\n\n", *def.Limit)
	}

	b.WriteString("## SQL\n\n```sql\n")
	b.WriteString(stmt.SQL)
	b.WriteString("\n```\n")
	if len(stmt.Args) > 0 {
		b.WriteString("\n## Arguments\n\n| Param | Value |\n| --- | --- |\n")
		for i, arg := range stmt.Args {
			fmt.Fprintf(&b, "| $%d | %s |\n", i+1, strings.ReplaceAll(formatCell(arg), "|", `\|`))
		}
	}
	return b.String()
}

// PrintMarkdown renders markdown content
func PrintMarkdown(content string) error {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return err
	}
	out, err := r.Render(content)
	if err != nil {
		return err
	}
	fmt.Fprint(Out, out)
	return nil
}

// PrintRecords prints rows as a table. Columns are sorted with id first.
func PrintRecords(rows []domain.Record) error {
	if len(rows) == 0 {
		fmt.Fprintln(Out, SecondaryStyle.Render("(0 rows)"))
		return nil
	}
	columns := recordColumns(rows)
	cells := make([][]string, len(rows))
	for i, r := range rows {
		cells[i] = make([]string, len(columns))
		for j, c := range columns {
			cells[i][j] = formatCell(r[c])
		}
	}
	if err := PrintTable(columns, cells); err != nil {
		return err
	}
	fmt.Fprintln(Out, SecondaryStyle.Render(fmt.Sprintf("(%d rows)", len(rows))))
	return nil
}

// PrintJSON prints v as indented JSON.
func PrintJSON(v any) error {
	enc := json.NewEncoder(Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrintKeyValues prints aligned key/value pairs.
func PrintKeyValues(pairs [][2]string) {
	width := 0
	for _, p := range pairs {
		if len(p[0]) > width {
			width = len(p[0])
		}
	}
	key := lipgloss.NewStyle().Width(width + 2).Foreground(SecondaryColor)
	for _, p := range pairs {
		fmt.Fprintln(Out, key.Render(p[0])+p[1])
	}
}

func recordColumns(rows []domain.Record) []string {
	seen := map[string]bool{}
	var columns []string
	for _, r := range rows {
		for c := range r {
			if !seen[c] {
				seen[c] = true
				columns = append(columns, c)
			}
		}
	}
	sort.Slice(columns, func(i, j int) bool {
		if columns[i] == "id" || columns[j] == "id" {
			return columns[i] == "id"
		}
		return columns[i] < columns[j]
	})
	return columns
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return x
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
	return fmt.Sprint(v)
}
