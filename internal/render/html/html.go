// Package html renders a report.Document as a self-contained HTML document,
// built programmatically as an *html.Node tree with golang.org/x/net/html
// and serialized with html.Render: tables for the event trace, colored
// status badges for the fault taxonomy, and a final-permissions grid. No
// client-side script; the document is inert markup plus an inline <style>,
// suitable for the --format html and --format both CLI options.
package html

import (
	"fmt"
	"io"

	"golang.org/x/net/html"

	"github.com/hemindesai04/page-table-walker/internal/report"
)

func el(tag string, attrs map[string]string, children ...*html.Node) *html.Node {
	n := &html.Node{Type: html.ElementNode, Data: tag}
	for k, v := range attrs {
		n.Attr = append(n.Attr, html.Attribute{Key: k, Val: v})
	}
	for _, c := range children {
		if c != nil {
			n.AppendChild(c)
		}
	}
	return n
}

func text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func raw(s string) *html.Node {
	return &html.Node{Type: html.RawNode, Data: s}
}

const css = `
body { font-family: ui-monospace, monospace; background: #1e1e2e; color: #cdd6f4; padding: 1.5rem; }
h1 { margin-bottom: 0.2rem; }
.desc { color: #a6adc8; margin-top: 0; }
table { border-collapse: collapse; width: 100%; margin: 1rem 0; }
th, td { border: 1px solid #45475a; padding: 0.3rem 0.6rem; text-align: left; font-size: 0.9rem; }
th { background: #313244; }
.badge { padding: 0.1rem 0.5rem; border-radius: 0.3rem; font-weight: bold; }
.status-success { background: #a6e3a1; color: #1e1e2e; }
.status-fault { background: #f38ba8; color: #1e1e2e; }
.kind-TRANSLATION { background: #f9e2af; color: #1e1e2e; }
.kind-PERMISSION { background: #f38ba8; color: #1e1e2e; }
.kind-ADDRESS_SIZE, .kind-ACCESS_FLAG { background: #89b4fa; color: #1e1e2e; }
.result-INVALID { color: #f38ba8; }
.result-TABLE { color: #f9e2af; }
.result-BLOCK, .result-PAGE { color: #a6e3a1; }
.perm-grid { display: grid; grid-template-columns: repeat(4, auto); gap: 0.3rem 1rem; }
`

// Render writes a full HTML document rendition of doc to w.
func Render(w io.Writer, doc report.Document) error {
	statusClass := "status-success"
	if doc.Result.Status != "SUCCESS" {
		statusClass = "status-fault"
	}

	body := el("body", nil,
		el("h1", nil, text(doc.ScenarioName)),
		el("p", map[string]string{"class": "desc"}, text(doc.Description)),
		el("p", nil,
			text("status: "),
			el("span", map[string]string{"class": "badge " + statusClass}, text(doc.Result.Status)),
		),
		summaryTable(doc),
		eventsTable(doc.WalkTrace.Events),
		snapshotsTable(doc.WalkTrace.RegisterSnapshots),
		faultSection(doc.Fault),
		permsSection(doc.FinalPerms, doc.FinalAttrs),
	)

	docNode := el("html", nil,
		el("head", nil,
			el("meta", map[string]string{"charset": "utf-8"}),
			el("title", nil, text(doc.ScenarioName)),
			el("style", nil, raw(css)),
		),
		body,
	)

	if _, err := io.WriteString(w, "<!DOCTYPE html>\n"); err != nil {
		return err
	}
	return html.Render(w, docNode)
}

func summaryTable(doc report.Document) *html.Node {
	rows := []*html.Node{
		tr("Virtual address", doc.Input.VirtualAddress),
		tr("Access", doc.Input.AccessType+" @ "+doc.Input.PrivilegeLevel),
		tr("Memory accesses", fmt.Sprintf("%d", doc.Result.TotalMemoryAccesses)),
	}
	if doc.Result.IPA != nil {
		rows = append(rows, tr("IPA", *doc.Result.IPA))
	}
	if doc.Result.FinalPA != nil {
		rows = append(rows, tr("Final PA", *doc.Result.FinalPA))
	}
	return el("table", nil, el("tbody", nil, rows...))
}

func tr(label, value string) *html.Node {
	return el("tr", nil,
		el("th", nil, text(label)),
		el("td", nil, text(value)),
	)
}

func eventsTable(events []report.Event) *html.Node {
	head := el("tr", nil,
		el("th", nil, text("#")),
		el("th", nil, text("stage")),
		el("th", nil, text("level")),
		el("th", nil, text("index")),
		el("th", nil, text("purpose")),
		el("th", nil, text("address")),
		el("th", nil, text("descriptor")),
		el("th", nil, text("result")),
		el("th", nil, text("output")),
	)
	var rows []*html.Node
	for _, ev := range events {
		rows = append(rows, el("tr", nil,
			el("td", nil, text(fmt.Sprintf("%d", ev.EventID))),
			el("td", nil, text(fmt.Sprintf("%d", ev.Stage))),
			el("td", nil, text(fmt.Sprintf("%d", ev.Level))),
			el("td", nil, text(ev.Index)),
			el("td", nil, text(ev.Purpose)),
			el("td", nil, text(ev.Address)),
			el("td", nil, text(ev.DescriptorValue)),
			el("td", map[string]string{"class": "result-" + ev.Result}, text(ev.Result)),
			el("td", nil, text(ev.Output)),
		))
	}
	return el("table", nil, el("thead", nil, head), el("tbody", nil, rows...))
}

func snapshotsTable(snaps []report.RegisterSnapshot) *html.Node {
	head := el("tr", nil,
		el("th", nil, text("label")),
		el("th", nil, text("TTBR0_EL1")),
		el("th", nil, text("TTBR1_EL1")),
		el("th", nil, text("VTTBR_EL2")),
		el("th", nil, text("uses_ttbr1")),
		el("th", nil, text("ipa")),
	)
	rows := []*html.Node{}
	for _, s := range snaps {
		ipa := ""
		if s.IPA != nil {
			ipa = *s.IPA
		}
		rows = append(rows, el("tr", nil,
			el("td", nil, text(s.Label)),
			el("td", nil, text(s.TTBR0EL1)),
			el("td", nil, text(s.TTBR1EL1)),
			el("td", nil, text(s.VTTBREL2)),
			el("td", nil, text(fmt.Sprintf("%t", s.UsesTTBR1))),
			el("td", nil, text(ipa)),
		))
	}
	return el("table", nil, el("thead", nil, head), el("tbody", nil, rows...))
}

func faultSection(f *report.Fault) *html.Node {
	if f == nil {
		return nil
	}
	return el("div", nil,
		el("h2", nil,
			el("span", map[string]string{"class": "badge kind-" + f.Kind}, text(f.Kind)),
		),
		el("p", nil, text(f.Message)),
		el("p", nil, text(fmt.Sprintf("stage=%d level=%d address=%s", f.Stage, f.Level, f.FaultingAddress))),
	)
}

func permsSection(p *report.Perms, a *report.Attrs) *html.Node {
	if p == nil {
		return nil
	}
	grid := el("div", map[string]string{"class": "perm-grid"},
		text("EL0 R"), text(fmt.Sprintf("%t", p.EL0R)),
		text("EL0 W"), text(fmt.Sprintf("%t", p.EL0W)),
		text("EL0 X"), text(fmt.Sprintf("%t", p.EL0X)),
		text("EL1 R"), text(fmt.Sprintf("%t", p.EL1R)),
		text("EL1 W"), text(fmt.Sprintf("%t", p.EL1W)),
		text("EL1 X"), text(fmt.Sprintf("%t", p.EL1X)),
	)
	nodes := []*html.Node{el("h2", nil, text("Final permissions")), grid}
	if a != nil {
		nodes = append(nodes, el("p", nil, text(fmt.Sprintf(
			"AF=%t SH=%d AttrIndex=%d NG=%t NS=%t UXN=%t PXN=%t",
			a.AF, a.SH, a.AttrIndex, a.NG, a.NS, a.UXN, a.PXN,
		))))
	}
	return el("div", nil, nodes...)
}
