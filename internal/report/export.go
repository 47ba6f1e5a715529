package report

import (
	"fmt"
	"strings"

	"github.com/efebarandurmaz/flowlens/internal/flow"
	"github.com/efebarandurmaz/flowlens/internal/patterns"
)

// Highlights maps block ids to the most severe finding that names them.
type Highlights map[string]patterns.Severity

// HighlightsFrom collects the worst severity per block from r.
func HighlightsFrom(r *patterns.Report) Highlights {
	h := make(Highlights)
	if r == nil {
		return h
	}
	for _, fd := range r.All() {
		for _, id := range fd.BlockIDs {
			if fd.Severity.Rank() > h[id].Rank() {
				h[id] = fd.Severity
			}
		}
	}
	return h
}

// ExportDOT renders f as a Graphviz digraph. Highlighted blocks get a
// thick border in their severity color.
func ExportDOT(f *flow.Flow, h Highlights) string {
	var b strings.Builder
	fmt.Fprintf(&b, "digraph %s {\n", quoteDOT(f.ID))
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [fontname=\"Helvetica\" style=filled];\n")
	b.WriteString("  edge [fontname=\"Helvetica\" fontsize=10];\n\n")

	for _, blk := range f.Blocks {
		attrs := fmt.Sprintf("label=%s shape=%s fillcolor=\"%s\"",
			quoteDOT(nodeLabel(blk)), kindShape(blk.Kind), kindColor(blk.Kind))
		if sev, ok := h[blk.ID]; ok {
			attrs += fmt.Sprintf(" color=\"%s\" penwidth=3", SeverityColor(sev))
		}
		if blk.Flag(flow.ParamParallelExecution) {
			attrs += " peripheries=2"
		}
		fmt.Fprintf(&b, "  %s [%s];\n", quoteDOT(blk.ID), attrs)
	}
	if len(f.Connections) > 0 {
		b.WriteString("\n")
	}
	for _, c := range f.Connections {
		label := ""
		if c.DataType != "" {
			label = " [label=" + quoteDOT(c.DataType) + "]"
		}
		fmt.Fprintf(&b, "  %s -> %s%s;\n", quoteDOT(c.Source.BlockID), quoteDOT(c.Target.BlockID), label)
	}
	b.WriteString("}\n")
	return b.String()
}

// ExportMermaid renders f as a Mermaid flowchart. Highlighted blocks are
// assigned a class per severity.
func ExportMermaid(f *flow.Flow, h Highlights) string {
	var b strings.Builder
	b.WriteString("graph LR\n")
	for _, blk := range f.Blocks {
		fmt.Fprintf(&b, "  %s%s\n", sanitizeMermaidID(blk.ID), mermaidShape(blk))
	}
	for _, c := range f.Connections {
		label := ""
		if c.DataType != "" {
			label = "|" + escapeMermaid(c.DataType) + "|"
		}
		fmt.Fprintf(&b, "  %s -->%s %s\n", sanitizeMermaidID(c.Source.BlockID), label, sanitizeMermaidID(c.Target.BlockID))
	}

	used := make(map[patterns.Severity][]string)
	for _, blk := range f.Blocks {
		if sev, ok := h[blk.ID]; ok {
			used[sev] = append(used[sev], sanitizeMermaidID(blk.ID))
		}
	}
	for _, sev := range []patterns.Severity{patterns.SeverityCritical, patterns.SeverityHigh, patterns.SeverityMedium, patterns.SeverityLow} {
		ids := used[sev]
		if len(ids) == 0 {
			continue
		}
		fmt.Fprintf(&b, "  classDef %s stroke:%s,stroke-width:3px\n", sev, SeverityColor(sev))
		fmt.Fprintf(&b, "  class %s %s\n", strings.Join(ids, ","), sev)
	}
	return b.String()
}

func nodeLabel(b flow.Block) string {
	if b.Label == "" || b.Label == b.ID {
		return fmt.Sprintf("%s\n(%s)", b.ID, b.Kind)
	}
	return fmt.Sprintf("%s\n%s (%s)", b.ID, b.Label, b.Kind)
}

func quoteDOT(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return `"` + s + `"`
}

func sanitizeMermaidID(s string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, s)
}

func escapeMermaid(s string) string {
	return strings.NewReplacer(`"`, "#quot;", "|", "#124;", "\n", " ").Replace(s)
}

func mermaidShape(b flow.Block) string {
	text := `"` + escapeMermaid(b.ID+" ("+string(b.Kind)+")") + `"`
	switch b.Kind {
	case flow.KindInput, flow.KindOutput:
		return "([" + text + "])"
	case flow.KindCondition:
		return "{" + text + "}"
	case flow.KindDatabase:
		return "[(" + text + ")]"
	case flow.KindExternalCall:
		return "[/" + text + "/]"
	case flow.KindLoop:
		return "[[" + text + "]]"
	case flow.KindTransform, flow.KindFilter, flow.KindAggregate, flow.KindCustom:
		return "[" + text + "]"
	}
	return "[" + text + "]"
}

func kindShape(k flow.BlockKind) string {
	switch k {
	case flow.KindInput, flow.KindOutput:
		return "oval"
	case flow.KindCondition:
		return "diamond"
	case flow.KindDatabase:
		return "cylinder"
	case flow.KindExternalCall:
		return "parallelogram"
	case flow.KindLoop:
		return "box3d"
	case flow.KindTransform, flow.KindFilter, flow.KindAggregate, flow.KindCustom:
		return "box"
	}
	return "box"
}

func kindColor(k flow.BlockKind) string {
	switch k {
	case flow.KindInput, flow.KindOutput:
		return "#1f6feb"
	case flow.KindTransform, flow.KindFilter, flow.KindAggregate:
		return "#238636"
	case flow.KindCondition, flow.KindLoop:
		return "#8957e5"
	case flow.KindExternalCall, flow.KindDatabase:
		return "#d29922"
	case flow.KindCustom:
		return "#30363d"
	}
	return "#30363d"
}
