// Package terminal renders a report.Document as a human-readable trace for
// a terminal. Output is written through a github.com/charmbracelet/colorprofile
// writer, which detects the destination's actual color capability
// (truecolor -> 256 -> 16 -> none, or NO_COLOR) and downgrades or strips the
// SGR sequences this package writes unconditionally — the same
// degrade-gracefully posture the CLI needs for piping to a file or an
// unknown terminal. golang.org/x/term is used by the caller (cmd/armwalk)
// to decide whether stdout is a TTY before mirroring the rendering there.
package terminal

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/colorprofile"
	"github.com/charmbracelet/x/ansi"

	"github.com/hemindesai04/page-table-walker/internal/report"
)

// Options controls the rendering.
type Options struct {
	// Tree renders stage-1 events flush left and stage-2 events indented,
	// instead of the default flat listing. Events stay in chronological
	// order: each stage-1 lookup's nested stage-2 sub-walk appears as an
	// indented block directly above it, and the final stage-2 walk as an
	// indented block after the last stage-1 event. Driven by the CLI's
	// --tree flag.
	Tree bool

	// Color overrides the environment-detected color profile when non-nil:
	// true forces truecolor output, false strips all escape sequences.
	// nil leaves colorprofile's own environ-based detection in charge. This
	// is how the site config's "color" key (internal/cliconfig) reaches the
	// renderer.
	Color *bool
}

const (
	sgrBold   = "\x1b[1m"
	sgrFaint  = "\x1b[2m"
	sgrRed    = "\x1b[31m"
	sgrGreen  = "\x1b[32m"
	sgrYellow = "\x1b[33m"
	sgrCyan   = "\x1b[36m"
)

func styled(sgr, s string) string {
	return sgr + s + ansi.ResetStyle
}

// Render writes a terminal-formatted rendition of doc to w, downgrading
// color via colorprofile for the given environment (typically os.Environ()).
func Render(w io.Writer, doc report.Document, environ []string, opts Options) error {
	cw := colorprofile.NewWriter(w, environ)
	if opts.Color != nil {
		if *opts.Color {
			cw.Profile = colorprofile.TrueColor
		} else {
			cw.Profile = colorprofile.NoTTY
		}
	}

	var b strings.Builder

	fmt.Fprintf(&b, "%s\n", styled(sgrBold, doc.ScenarioName))
	if doc.Description != "" {
		fmt.Fprintf(&b, "%s\n", styled(sgrFaint, doc.Description))
	}
	fmt.Fprintf(&b, "\n")

	statusColor := sgrGreen
	if doc.Result.Status != "SUCCESS" {
		statusColor = sgrRed
	}
	fmt.Fprintf(&b, "status:  %s\n", styled(statusColor, doc.Result.Status))
	fmt.Fprintf(&b, "va:      %s\n", doc.Input.VirtualAddress)
	if doc.Result.IPA != nil {
		fmt.Fprintf(&b, "ipa:     %s\n", *doc.Result.IPA)
	}
	if doc.Result.FinalPA != nil {
		fmt.Fprintf(&b, "pa:      %s\n", *doc.Result.FinalPA)
	}
	fmt.Fprintf(&b, "access:  %s @ %s\n", doc.Input.AccessType, doc.Input.PrivilegeLevel)
	fmt.Fprintf(&b, "memory accesses: %d\n\n", doc.Result.TotalMemoryAccesses)

	if opts.Tree {
		renderTree(&b, doc.WalkTrace.Events)
	} else {
		renderFlat(&b, doc.WalkTrace.Events)
	}

	if doc.Fault != nil {
		fmt.Fprintf(&b, "\n%s: %s\n", styled(sgrRed, doc.Fault.Kind), doc.Fault.Message)
		fmt.Fprintf(&b, "  stage=%d level=%d address=%s\n", doc.Fault.Stage, doc.Fault.Level, doc.Fault.FaultingAddress)
	}

	if doc.FinalPerms != nil {
		fmt.Fprintf(&b, "\n%s\n", styled(sgrCyan, "final permissions"))
		fmt.Fprintf(&b, "  EL0: r=%t w=%t x=%t\n", doc.FinalPerms.EL0R, doc.FinalPerms.EL0W, doc.FinalPerms.EL0X)
		fmt.Fprintf(&b, "  EL1: r=%t w=%t x=%t\n", doc.FinalPerms.EL1R, doc.FinalPerms.EL1W, doc.FinalPerms.EL1X)
	}

	_, err := io.WriteString(cw, b.String())
	return err
}

func renderFlat(b *strings.Builder, events []report.Event) {
	fmt.Fprintf(b, "%s\n", styled(sgrBold, "walk trace"))
	for _, ev := range events {
		fmt.Fprintf(b, "  [%3d] S%d L%d idx=%s  %-28s %s -> %s  (%s)\n",
			ev.EventID, ev.Stage, ev.Level, ev.Index, ev.Purpose, ev.Address, ev.Output, resultStyled(ev.Result))
	}
}

func renderTree(b *strings.Builder, events []report.Event) {
	fmt.Fprintf(b, "%s\n", styled(sgrBold, "walk trace (tree)"))
	for _, ev := range events {
		if ev.Stage == 1 {
			fmt.Fprintf(b, "S1 L%d [%3d] idx=%s %s -> %s  (%s)\n",
				ev.Level, ev.EventID, ev.Index, ev.Address, ev.Output, resultStyled(ev.Result))
			continue
		}
		fmt.Fprintf(b, "    S2 L%d [%3d] idx=%s %s -> %s  (%s)\n",
			ev.Level, ev.EventID, ev.Index, ev.Address, ev.Output, resultStyled(ev.Result))
	}
}

func resultStyled(result string) string {
	switch result {
	case "INVALID":
		return styled(sgrRed, result)
	case "TABLE":
		return styled(sgrYellow, result)
	default:
		return styled(sgrGreen, result)
	}
}
