package util

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"
)

const (
	helpIndent   = "   "
	flagIndent   = "  "
	flagGap      = 2
	wrapIndent   = "  "
	maxHelpWidth = 160
)

var (
	sectionColor  = color.New(color.FgGreen, color.Bold).SprintFunc()
	categoryColor = color.New(color.FgCyan, color.Bold).SprintFunc()
)

func termWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	if cols, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && cols > 0 {
		return cols
	}
	return maxHelpWidth
}

// wrapText breaks text into lines of at most width columns, keeping blank
// lines between paragraphs
func wrapText(text string, width int) []string {
	var lines []string
	for i, para := range strings.Split(text, "\n\n") {
		if i > 0 {
			lines = append(lines, "")
		}
		var line string
		for _, word := range strings.Fields(para) {
			switch {
			case line == "":
				line = word
			case len(line)+1+len(word) > width:
				lines = append(lines, line)
				line = word
			default:
				line += " " + word
			}
		}
		lines = append(lines, line)
	}
	return lines
}

func flagField(f cli.Flag, name string) reflect.Value {
	v := reflect.ValueOf(f)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	return v.FieldByName(name)
}

func flagCategory(f cli.Flag) string {
	if fld := flagField(f, "Category"); fld.IsValid() && fld.Kind() == reflect.String {
		return fld.String()
	}
	return ""
}

func flagHidden(f cli.Flag) bool {
	if fld := flagField(f, "Hidden"); fld.IsValid() && fld.Kind() == reflect.Bool {
		return fld.Bool()
	}
	return false
}

// flagLabel splits the default rendering of a flag into its label and usage
func flagLabel(f cli.Flag) (string, string) {
	label, usage, _ := strings.Cut(strings.TrimRight(f.String(), "\n"), "\t")
	return label, usage
}

// PrettierHelpPrinter replaces the help output of urfave/cli with colored
// sections and flags grouped under their Category
func PrettierHelpPrinter() {
	fallback := cli.HelpPrinter
	width := min(maxHelpWidth, termWidth()) - 4

	cli.HelpPrinter = func(w io.Writer, templ string, data interface{}) {
		var (
			flags []cli.Flag
			cmds  []*cli.Command
			name  string
			usage string
			desc  string
		)
		switch v := data.(type) {
		case *cli.App:
			flags, cmds, name, usage, desc = v.Flags, v.Commands, v.HelpName, v.Usage, v.Description
		case *cli.Command:
			flags, cmds, name, usage, desc = v.Flags, v.Subcommands, v.HelpName, v.Usage, v.Description
		default:
			fallback(w, templ, data)
			return
		}

		fmt.Fprintf(w, "%s\n%s%s - %s\n\n", sectionColor("NAME:"), helpIndent, name, usage)

		fmt.Fprintf(w, "%s\n%s%s", sectionColor("USAGE:"), helpIndent, name)
		if len(cmds) > 0 {
			fmt.Fprint(w, " command")
		}
		if len(flags) > 0 {
			fmt.Fprint(w, " [command options]")
		}
		fmt.Fprint(w, "\n\n")

		if desc != "" {
			fmt.Fprintln(w, sectionColor("DESCRIPTION:"))
			for _, line := range wrapText(desc, width-len(helpIndent)) {
				fmt.Fprintf(w, "%s%s\n", helpIndent, line)
			}
			fmt.Fprintln(w)
		}

		visible := slices.DeleteFunc(slices.Clone(cmds), func(c *cli.Command) bool {
			return c.Hidden || c.Name == "help"
		})
		if len(visible) > 0 {
			fmt.Fprintln(w, sectionColor("COMMANDS:"))
			for _, c := range visible {
				fmt.Fprintf(w, "%s%-20s  %s\n", helpIndent, c.FullName(), c.Usage)
			}
			fmt.Fprintln(w)
		}

		byCategory := make(map[string][]cli.Flag)
		labelWidth := 0
		for _, f := range flags {
			label, _ := flagLabel(f)
			if flagHidden(f) || strings.HasPrefix(label, "--help") {
				continue
			}
			byCategory[flagCategory(f)] = append(byCategory[flagCategory(f)], f)
			labelWidth = max(labelWidth, len(label))
		}
		if len(byCategory) == 0 {
			return
		}
		fmt.Fprintf(w, "%s\n\n", sectionColor("OPTIONS:"))

		categories := make([]string, 0, len(byCategory))
		for c := range byCategory {
			categories = append(categories, c)
		}
		slices.Sort(categories)

		usageWidth := width - len(flagIndent) - labelWidth - flagGap
		continuation := flagIndent + strings.Repeat(" ", labelWidth+flagGap) + wrapIndent
		for _, category := range categories {
			heading := category
			if heading == "" {
				heading = "Global Options"
			}
			fmt.Fprintf(w, "%s%s\n", flagIndent, categoryColor(heading))
			for _, f := range byCategory[category] {
				label, usage := flagLabel(f)
				lines := wrapText(usage, usageWidth)
				fmt.Fprintf(w, "%s%-*s%s%s\n", flagIndent, labelWidth, label, strings.Repeat(" ", flagGap), lines[0])
				for _, line := range lines[1:] {
					fmt.Fprintf(w, "%s%s\n", continuation, line)
				}
			}
			fmt.Fprintln(w)
		}
	}
}
