package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/efebarandurmaz/flowlens/internal/engine"
	"github.com/efebarandurmaz/flowlens/internal/modelcache"
	"github.com/efebarandurmaz/flowlens/internal/patterns"
)

// Printer writes human-readable summaries.
type Printer struct {
	w  io.Writer
	st *Styles
}

// NewPrinter returns a Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, st: NewStyles(w)}
}

func (p *Printer) title(s string) {
	fmt.Fprintln(p.w, p.st.Title.Render(s))
}

func (p *Printer) section(s string) {
	fmt.Fprintln(p.w, p.st.Section.Render(s))
}

func (p *Printer) row(label string, value any) {
	fmt.Fprintln(p.w, p.st.Label.Render(label)+p.st.Value.Render(fmt.Sprint(value)))
}

func (p *Printer) muted(s string) {
	fmt.Fprintln(p.w, p.st.Muted.Render(s))
}

// Analysis prints features, execution order, parallel groups and findings.
func (p *Printer) Analysis(a *engine.Analysis) {
	p.title("Flow " + a.FlowID)
	f := a.Features
	p.row("Blocks", f.NodeCount)
	p.row("Connections", f.ConnectionCount)
	p.row("Complexity", f.Complexity)
	p.row("Cyclomatic", f.CyclomaticComplexity)
	p.row("Max depth", f.MaxDepth)
	p.row("Branching factor", fmt.Sprintf("%.2f", f.BranchingFactor))
	p.row("Parallelizable", f.ParallelizableBlocks)
	p.row("Components", f.ConnectedComponents)
	p.row("Signature", shortSig(a.Signature))

	p.section("Execution order")
	fmt.Fprintln(p.w, p.st.Value.Render(strings.Join(a.Order, " -> ")))
	if len(a.Groups) > 0 {
		p.section("Parallel groups")
		for _, g := range a.Groups {
			fmt.Fprintln(p.w, p.st.Value.Render("["+strings.Join(g, ", ")+"]"))
		}
	}
	p.Patterns(a.Patterns)
}

// Patterns prints findings, most severe first.
func (p *Printer) Patterns(r *patterns.Report) {
	p.section("Findings")
	if r == nil || len(r.All()) == 0 {
		p.muted("none")
		return
	}
	all := r.All()
	sort.SliceStable(all, func(i, j int) bool { return all[i].Severity.Rank() > all[j].Severity.Rank() })
	for _, fd := range all {
		badge := p.st.Severity(fd.Severity).Render(fmt.Sprintf("%-8s", fd.Severity))
		fmt.Fprintf(p.w, "%s %s %s\n", badge, p.st.Value.Render(string(fd.Type)), p.st.Muted.Render(strings.Join(fd.BlockIDs, ", ")))
		if fd.Remediation != "" {
			fmt.Fprintf(p.w, "         %s\n", p.st.Muted.Render(fd.Remediation))
		}
	}
	if r.SafeToExecute() {
		fmt.Fprintln(p.w, p.st.Good.Render("safe to execute"))
	} else {
		fmt.Fprintln(p.w, p.st.Bad.Render("not safe to execute"))
	}
}

// Optimization prints the applied rewrites and their expected effect.
func (p *Printer) Optimization(r *engine.Result) {
	p.title("Optimization of " + r.Original.ID)
	p.row("Signature", shortSig(r.Signature))
	p.row("Cache", hitMiss(r.CacheHit))
	oracle := "not used"
	if r.OracleUsed {
		oracle = "used"
	} else if r.FallbackReason != "" {
		oracle = "fallback: " + r.FallbackReason
	}
	p.row("Oracle", oracle)
	p.row("Expected improvement", fmt.Sprintf("%.1f%%", r.ExpectedImprovement))
	p.row("Confidence", fmt.Sprintf("%.1f%%", r.Confidence))
	if r.Performance != nil {
		p.row("Estimated latency", fmt.Sprintf("%s -> %s", fmtDuration(r.BaselineLatency), fmtDuration(r.Performance.EstimatedLatency)))
	}

	p.section("Applied")
	if len(r.Applied) == 0 {
		p.muted("nothing to apply")
	}
	for _, a := range r.Applied {
		marker := p.st.Good.Render("+")
		if !a.Structural {
			marker = p.st.Muted.Render("~")
		}
		fmt.Fprintf(p.w, "%s %s %s\n", marker, p.st.Value.Render(string(a.Type)), p.st.Muted.Render(a.Description))
	}

	if skipped := len(r.Predictions) - len(r.Applied); skipped > 0 {
		p.muted(fmt.Sprintf("%d lower-confidence suggestion(s) not applied", skipped))
	}
}

// Prediction prints the latency estimate, bottlenecks and the comparison
// with recorded history.
func (p *Printer) Prediction(flowID string, pr *engine.Prediction) {
	p.title("Performance of " + flowID)
	p.row("Estimated latency", fmtDuration(pr.EstimatedLatency))
	p.row("Stages", len(pr.Groups))

	p.section("Bottlenecks")
	if len(pr.Bottlenecks) == 0 {
		p.muted("none")
	}
	for _, b := range pr.Bottlenecks {
		fmt.Fprintf(p.w, "%s %s %s\n",
			p.st.Value.Render(fmt.Sprintf("%-16s", b.BlockID)),
			p.st.Bad.Render(fmt.Sprintf("%5.1f%%", b.Share*100)),
			p.st.Muted.Render(b.Reason))
	}

	if h := pr.Historical; h != nil {
		p.section("History")
		p.row("Observed latency", fmtDuration(h.ObservedLatency))
		p.row("Deviation", fmt.Sprintf("%+.1f%%", h.Deviation))
		p.row("Blocks with data", len(h.Blocks))
	}
}

// CacheStats prints the model cache summary.
func (p *Printer) CacheStats(s modelcache.Stats) {
	body := strings.Join([]string{
		p.st.Label.Render("Models") + p.st.Value.Render(fmt.Sprint(s.TotalModels)),
		p.st.Label.Render("Total usage") + p.st.Value.Render(fmt.Sprint(s.TotalUsage)),
		p.st.Label.Render("Average accuracy") + p.st.Value.Render(fmt.Sprintf("%.3f", s.AverageAccuracy)),
	}, "\n")
	fmt.Fprintln(p.w, p.st.Box.Render(body))
}

func hitMiss(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}

func shortSig(sig string) string {
	if len(sig) > 12 {
		return sig[:12]
	}
	return sig
}

func fmtDuration(d time.Duration) string {
	return d.Round(time.Millisecond / 10).String()
}
