package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/imamik/webui-gke/internal/provisioning"
)

// Backup describes the newest snapshot in the bucket.
type Backup struct {
	Key     string
	Size    int64
	Updated time.Time
}

// Status is the recorded state of one environment.
type Status struct {
	Environment string
	ClusterName string
	Location    string
	Domain      string
	Target      *provisioning.DeploymentTarget
	Resources   []provisioning.ResourceRecord
	Backup      *Backup
}

// Renderer formats reports and status for non-interactive output. Styling is
// switched off when output is not a terminal.
type Renderer struct {
	styled bool
}

// NewRenderer returns a Renderer. styled selects lipgloss output.
func NewRenderer(styled bool) *Renderer {
	return &Renderer{styled: styled}
}

func (r *Renderer) style(f styleFunc) styleFunc {
	if !r.styled {
		return func(s string) string { return s }
	}
	return f
}

// Report renders the outcome of a pipeline run.
func (r *Renderer) Report(report *provisioning.Report, dryRun bool) string {
	var b strings.Builder

	title := "Apply"
	if dryRun {
		title = "Plan"
	}
	fmt.Fprintf(&b, "%s %s\n", r.style(sf(titleStyle))(title), r.statusLabel(report.Status()))

	for _, p := range report.Phases {
		icon, style := r.phaseStatusIcon(p.Status)
		fmt.Fprintf(&b, "  %s %-18s %s\n", style(icon), style(p.Name), r.style(sf(dimStyle))(formatDuration(p.Duration)))
		for _, a := range p.Actions {
			fmt.Fprintf(&b, "      %s\n", a)
		}
		for _, s := range p.Skipped {
			fmt.Fprintf(&b, "      %s\n", r.style(sf(dimStyle))("skipped: "+s))
		}
		for _, w := range p.Warnings {
			fmt.Fprintf(&b, "      %s %s\n", r.style(sf(warningStyle))(warnMark), w)
		}
		if p.Err != nil {
			fmt.Fprintf(&b, "      %s %v\n", r.style(sf(failedStyle))(crossMark), p.Err)
		}
	}

	counts := map[provisioning.ActionType]int{}
	for _, a := range report.Actions() {
		counts[a.Type]++
	}
	var parts []string
	for _, t := range sortedActionTypes(counts) {
		parts = append(parts, fmt.Sprintf("%d %s", counts[t], t))
	}
	if len(parts) == 0 {
		parts = append(parts, "no changes")
	}
	fmt.Fprintf(&b, "%s\n", r.style(sf(footerStyle))("  "+strings.Join(parts, ", ")))
	return b.String()
}

// Status renders recorded state.
func (r *Renderer) Status(s Status) string {
	var b strings.Builder
	section := r.style(sf(sectionStyle))
	dim := r.style(sf(dimStyle))

	title := fmt.Sprintf("%s: %s", s.Environment, s.ClusterName)
	if s.Location != "" {
		title += fmt.Sprintf(" (%s)", s.Location)
	}
	b.WriteString(r.style(sf(titleStyle))(title))
	b.WriteString("\n")
	if s.Domain != "" {
		fmt.Fprintf(&b, "  https://%s\n", s.Domain)
	}

	b.WriteString(section("  Release"))
	b.WriteString("\n")
	if s.Target == nil {
		fmt.Fprintf(&b, "    %s\n", dim("not deployed"))
	} else {
		fmt.Fprintf(&b, "    %s/%s on %s %s\n", s.Target.Namespace, s.Target.Release, s.Target.Cluster,
			dim("since "+s.Target.UpdatedAt.UTC().Format(time.RFC3339)))
	}

	b.WriteString(section("  Resources"))
	b.WriteString("\n")
	if len(s.Resources) == 0 {
		fmt.Fprintf(&b, "    %s\n", dim("none recorded"))
	}
	resources := append([]provisioning.ResourceRecord(nil), s.Resources...)
	sort.SliceStable(resources, func(i, j int) bool {
		if resources[i].Group != resources[j].Group {
			return resources[i].Group < resources[j].Group
		}
		return resources[i].Resource.Key() < resources[j].Resource.Key()
	})
	for _, rec := range resources {
		marker := ""
		if rec.Resource.Protected() {
			marker = " " + r.style(sf(warningStyle))("protected")
		}
		fmt.Fprintf(&b, "    %-14s %-16s %s%s\n", dim(rec.Group), rec.Resource.Type, rec.Resource.Name, marker)
	}

	b.WriteString(section("  Backup"))
	b.WriteString("\n")
	if s.Backup == nil {
		fmt.Fprintf(&b, "    %s\n", dim("no snapshot"))
	} else {
		fmt.Fprintf(&b, "    %s %d bytes %s\n", s.Backup.Key, s.Backup.Size,
			dim(s.Backup.Updated.UTC().Format(time.RFC3339)))
	}
	return b.String()
}

func (r *Renderer) statusLabel(status provisioning.PhaseStatus) string {
	switch status {
	case provisioning.StatusFailed:
		return r.style(sf(failedStyle))("failed")
	case provisioning.StatusWarning:
		return r.style(sf(warningStyle))("completed with warnings")
	default:
		return r.style(sf(readyStyle))("succeeded")
	}
}

func (r *Renderer) phaseStatusIcon(status provisioning.PhaseStatus) (string, styleFunc) {
	switch status {
	case provisioning.StatusFailed:
		return crossMark, r.style(sf(failedStyle))
	case provisioning.StatusWarning:
		return warnMark, r.style(sf(warningStyle))
	case provisioning.StatusNotRun:
		return pending, r.style(sf(dimStyle))
	default:
		return checkMark, r.style(sf(readyStyle))
	}
}

func sortedActionTypes(counts map[provisioning.ActionType]int) []provisioning.ActionType {
	out := make([]provisioning.ActionType, 0, len(counts))
	for t := range counts {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
