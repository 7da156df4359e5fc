package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/jward/lineage"
	"github.com/jward/lineage/internal/verify"
)

// formatChainText prints one block per class: the chain on the first line,
// then tags and methods.
func formatChainText(w io.Writer, classes map[string]*lineage.ClassInfo) {
	names := make([]string, 0, len(classes))
	for name := range classes {
		names = append(names, name)
	}
	sort.Strings(names)

	for i, name := range names {
		c := classes[name]
		if i > 0 {
			fmt.Fprintln(w)
		}
		chain := []string{c.Name}
		for _, a := range c.ParentChain {
			chain = append(chain, a.Name)
		}
		fmt.Fprintln(w, strings.Join(chain, " <- "))
		for _, t := range c.Tags {
			fmt.Fprintf(w, "  %s\n", formatTag(t))
		}

		methods := make([]string, 0, len(c.Methods))
		for m := range c.Methods {
			methods = append(methods, m)
		}
		sort.Strings(methods)
		for _, m := range methods {
			line := "  " + m + "()"
			for _, t := range c.Methods[m].Tags {
				line += " " + formatTag(t)
			}
			fmt.Fprintln(w, line)
		}
	}
}

func formatTag(t lineage.TagInfo) string {
	if len(t.Data) == 0 {
		return "#" + t.Name
	}
	return "#" + t.Name + " " + strings.Join(t.Data, " ")
}

// formatDiagnosticsText prints diagnostics as "file:line:col: message (rule)".
func formatDiagnosticsText(w io.Writer, diags []verify.Diagnostic) {
	for _, d := range diags {
		fmt.Fprintln(w, d.String())
	}
}

// formatPendingText formats CLIPending results as aligned columns.
func formatPendingText(w io.Writer, pending []CLIPending) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tCLASS\tWAITING FOR")
	for _, p := range pending {
		waiting := p.ExpectedParent
		if p.ExpectedFile != "" {
			waiting += " (" + p.ExpectedFile + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.File, p.Name, waiting)
	}
	tw.Flush()
}

// formatSnapshotText formats every class as aligned columns.
func formatSnapshotText(w io.Writer, snap *lineage.Snapshot) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tCLASS\tPARENT\tMETHODS")
	for _, c := range snap.Classes {
		parent := c.Parent
		if parent == "" && c.ExpectedParent != "" {
			parent = c.ExpectedParent + " (pending)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", c.File, c.Name, parent, len(c.Methods))
	}
	tw.Flush()
}

func formatIndexSummaryText(w io.Writer, s CLIIndexSummary) {
	fmt.Fprintf(w, "Root:      %s\n", s.Root)
	fmt.Fprintf(w, "Database:  %s\n", s.Database)
	fmt.Fprintf(w, "Files:     %d\n", s.Files)
	fmt.Fprintf(w, "Classes:   %d (%d pending)\n", s.Classes, s.Pending)
	fmt.Fprintf(w, "Generated: %d file(s)\n", len(s.Generated))
	fmt.Fprintf(w, "Duration:  %s\n", s.Duration)
	if s.Errors != "" {
		fmt.Fprintf(w, "Errors:    %s\n", s.Errors)
	}
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case map[string]*lineage.ClassInfo:
		formatChainText(w, v)
	case []verify.Diagnostic:
		formatDiagnosticsText(w, v)
	case []CLIPending:
		formatPendingText(w, v)
	case *lineage.Snapshot:
		formatSnapshotText(w, v)
	case CLIIndexSummary:
		formatIndexSummaryText(w, v)
	case []string:
		for _, s := range v {
			fmt.Fprintln(w, s)
		}
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

// outputResult writes result in the selected format.
func outputResult(w io.Writer, result CLIResult) error {
	switch flagFormat {
	case "text":
		return outputResultText(w, result)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(result); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In json and yaml mode the error is written to w
// as a CLIResult envelope. In text mode it goes to errW.
func outputError(w, errW io.Writer, command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(errW, "Error: %s\n", err)
		return err
	}
	_ = outputResult(w, CLIResult{Command: command, Error: err.Error()})
	return err
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text", "yaml"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be one of %s", format, strings.Join(validFormats, ", "))
}
