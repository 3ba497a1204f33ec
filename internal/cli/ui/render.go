// Package ui renders discovery and verification results for the terminal.
package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss/tree"
	"gopkg.in/yaml.v3"

	"nexus-catalog/internal/discovery"
	"nexus-catalog/internal/model"
	"nexus-catalog/internal/verify"
)

// Output formats of the CLI; text is rendered, the others go through Encode.
const (
	OutputText = "text"
	OutputJSON = "json"
	OutputYAML = "yaml"
)

// Encode writes v as indented JSON or YAML.
func Encode(w io.Writer, output string, v any) error {
	switch output {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case OutputYAML:
		// Round trip through JSON so the json field names are used.
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var plain any
		if err := json.Unmarshal(data, &plain); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(plain)
	default:
		return fmt.Errorf("unknown output format %q (expected text, json or yaml)", output)
	}
}

// RenderResult renders a discovery result as a table tree, its issues and a
// summary box.
func RenderResult(r *discovery.Result) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(fmt.Sprintf("Source: %s", r.Source)))
	sb.WriteString("\n")

	if len(r.Tables) == 0 {
		sb.WriteString(keyStyle.Render("No tables discovered"))
		sb.WriteString("\n")
	} else {
		root := tree.Root(keyStyle.Render("tables"))
		for _, t := range r.Tables {
			root.Child(tableNode(t))
		}
		sb.WriteString(root.String())
		sb.WriteString("\n")
	}

	if len(r.Issues) > 0 {
		sb.WriteString("\n")
		sb.WriteString(RenderIssues(r.Issues))
	}

	summary := fmt.Sprintf("%s %d  %s %d  %s %d  %s %d  %s %s",
		keyStyle.Render("tables"), len(r.Tables),
		keyStyle.Render("blobs"), r.BlobCount,
		keyStyle.Render("unmapped"), r.UnmappedBlobCount,
		keyStyle.Render("errors"), len(r.Errors()),
		keyStyle.Render("took"), r.Duration.Round(time.Millisecond))
	sb.WriteString(boxed(summary, r.IsSuccessful()))
	return sb.String()
}

func tableNode(t discovery.DiscoveredTable) *tree.Tree {
	label := tableStyle.Render(t.Name)
	if t.RawName != "" && t.RawName != t.Name {
		label += keyStyle.Render(fmt.Sprintf(" (from %s)", t.RawName))
	}
	node := tree.Root(label)
	node.Child(kv("reader", t.ReaderType))
	node.Child(kv("blobs", fmt.Sprint(len(t.BlobPaths))))
	if t.Resolution != "" {
		node.Child(kv("resolution", string(t.Resolution)))
	}
	if t.Schema == nil {
		node.Child(errorColor.Sprint("schema unavailable"))
		return node
	}
	cols := tree.Root(keyStyle.Render("columns"))
	for _, f := range t.Schema.Fields {
		cols.Child(columnStyle.Render(f.Name) + " " + valueStyle.Render(f.Type.String()))
	}
	node.Child(cols)
	if n := len(t.SampleRecords); n > 0 {
		node.Child(kv("samples", fmt.Sprint(n)))
	}
	return node
}

// RenderReport renders a verification report.
func RenderReport(r verify.Report) string {
	var sb strings.Builder
	if len(r.Tables) > 0 {
		root := tree.Root(keyStyle.Render("tables"))
		for _, t := range r.Tables {
			node := tree.Root(tableStyle.Render(t.Name))
			node.Child(kv("reader", t.ReaderType))
			node.Child(kv("blobs", fmt.Sprint(t.BlobCount)))
			node.Child(kv("columns", fmt.Sprint(t.Columns)))
			root.Child(node)
		}
		sb.WriteString(root.String())
		sb.WriteString("\n\n")
	}
	if len(r.Issues) > 0 {
		sb.WriteString(RenderIssues(r.Issues))
	}
	status := successColor.Sprint("descriptor is valid")
	if !r.IsValid() {
		status = errorColor.Sprintf("descriptor has %d error(s)", len(r.Errors()))
	}
	sb.WriteString(boxed(status, r.IsValid()))
	return sb.String()
}

// RenderIssues renders one line per issue, most severe first.
func RenderIssues(issues []model.VerificationIssue) string {
	var sb strings.Builder
	for _, sev := range []model.Severity{model.SeverityError, model.SeverityWarning, model.SeverityInfo} {
		for _, i := range model.FilterIssues(issues, sev) {
			sb.WriteString(severityTag(sev))
			sb.WriteString(" ")
			sb.WriteString(keyStyle.Render("[" + string(i.Phase) + "]"))
			sb.WriteString(" ")
			sb.WriteString(i.Message)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// RenderKinds renders the registered kinds of each plugin family.
func RenderKinds(families map[string][]string, order ...string) string {
	root := tree.Root(titleStyle.Render("Plugins"))
	for _, family := range order {
		node := tree.Root(tableStyle.Render(family))
		for _, k := range families[family] {
			node.Child(valueStyle.Render(k))
		}
		root.Child(node)
	}
	return root.String()
}

func severityTag(s model.Severity) string {
	switch s {
	case model.SeverityError:
		return errorColor.Sprint("ERROR  ")
	case model.SeverityWarning:
		return warningColor.Sprint("WARNING")
	default:
		return infoColor.Sprint("INFO   ")
	}
}

func kv(k, v string) string {
	return keyStyle.Render(k+":") + " " + valueStyle.Render(v)
}

func boxed(content string, ok bool) string {
	c := colorOK
	if !ok {
		c = colorFail
	}
	return summaryStyle.BorderForeground(c).Render(content) + "\n"
}
