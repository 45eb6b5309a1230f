package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/imamik/webui-gke/internal/ui/benchmarks"
)

// styleFunc is a single-string styling function.
type styleFunc func(string) string

// sf wraps a lipgloss.Style into a styleFunc.
func sf(s lipgloss.Style) styleFunc {
	return func(str string) string { return s.Render(str) }
}

func renderView(m Model) string {
	var b strings.Builder

	renderHeader(&b, m)
	renderProgressBar(&b, m)
	renderPhases(&b, m)

	if len(m.Recent) > 0 {
		renderActivity(&b, m)
	}
	if len(m.Warnings) > 0 {
		renderWarnings(&b, m)
	}

	renderFooter(&b, m)

	return b.String()
}

func renderHeader(b *strings.Builder, m Model) {
	title := fmt.Sprintf("%s: %s", m.Title, m.ClusterName)
	if m.Location != "" {
		title += fmt.Sprintf(" (%s)", m.Location)
	}
	b.WriteString(titleStyle.Render(title))

	status := " "
	switch {
	case m.Err != nil:
		status += failedStyle.Render(fmt.Sprintf("Error: %v", m.Err))
	case m.Done && len(m.Warnings) > 0:
		status += warningStyle.Render("Done with warnings")
	case m.Done:
		status += readyStyle.Render("Done")
	default:
		if active := m.activePhase(); active != nil {
			status += activeStyle.Render(currentSpinner(m.SpinnerFrame)+" ") + warningStyle.Render(active.Name)
		} else {
			status += dimStyle.Render("Starting...")
		}
	}
	b.WriteString(status)
	b.WriteString("\n")
}

func renderProgressBar(b *strings.Builder, m Model) {
	progress := calculateProgress(m)
	barWidth := 40
	if m.Width > 0 && m.Width < 80 {
		barWidth = m.Width - 30
		if barWidth < 10 {
			barWidth = 10
		}
	}
	filled := int(float64(barWidth) * progress)
	if filled > barWidth {
		filled = barWidth
	}

	bar := progressBarFull.Render(strings.Repeat("█", filled)) +
		progressBarEmpty.Render(strings.Repeat("░", barWidth-filled))

	pct := int(progress * 100)
	eta := ""
	if m.EstimatedRemaining > 0 {
		eta = fmt.Sprintf(" ETA %s", formatDuration(m.EstimatedRemaining))
	}
	if m.PerformanceScale != 0 && m.PerformanceScale != 1.0 {
		eta += fmt.Sprintf("  speed x%.2f", m.PerformanceScale)
	}

	fmt.Fprintf(b, "  %s %d%%%s\n", bar, pct, eta)
}

func renderPhases(b *strings.Builder, m Model) {
	b.WriteString(sectionStyle.Render("  Phases"))
	b.WriteString("\n")

	for _, phase := range m.Phases {
		icon, style := phaseIcon(phase, m.SpinnerFrame)
		dur := ""
		switch {
		case phase.EndedAt != nil:
			dur = formatDuration(phase.EndedAt.Sub(phase.StartedAt))
		case phase.Active:
			dur = formatDuration(m.clock().Sub(phase.StartedAt))
		}
		fmt.Fprintf(b, "    %s %-18s %s\n", style(icon), style(phase.Name), dimStyle.Render(dur))
	}
}

func renderActivity(b *strings.Builder, m Model) {
	b.WriteString(sectionStyle.Render("  Activity"))
	b.WriteString("\n")
	for _, line := range m.Recent {
		fmt.Fprintf(b, "    %s\n", dimStyle.Render(line))
	}
}

func renderWarnings(b *strings.Builder, m Model) {
	b.WriteString(sectionStyle.Render("  Warnings"))
	b.WriteString("\n")

	// Show last 3 warnings
	start := 0
	if len(m.Warnings) > 3 {
		start = len(m.Warnings) - 3
	}
	for _, w := range m.Warnings[start:] {
		fmt.Fprintf(b, "    %s %s\n", warningStyle.Render(warnMark), w)
	}
}

func renderFooter(b *strings.Builder, m Model) {
	elapsed := formatDuration(m.clock().Sub(m.StartTime))
	pulse := ""
	if !m.Done && m.Err == nil {
		pulse = "  |  " + currentSpinner(m.SpinnerFrame) + " reconciling"
	}
	b.WriteString(footerStyle.Render(fmt.Sprintf("  elapsed: %s%s  |  q: quit", elapsed, pulse)))
	b.WriteString("\n")
}

func phaseIcon(p PhaseRow, frame int) (string, styleFunc) {
	switch {
	case p.Err != nil:
		return crossMark, sf(failedStyle)
	case p.Done && p.Warning:
		return warnMark, sf(warningStyle)
	case p.Done:
		return checkMark, sf(readyStyle)
	case p.Active:
		return currentSpinner(frame), sf(activeStyle)
	default:
		return pending, sf(dimStyle)
	}
}

func currentSpinner(frame int) string {
	if len(spinnerFrames) == 0 {
		return spinner
	}
	if frame < 0 {
		frame = -frame
	}
	return spinnerFrames[frame%len(spinnerFrames)]
}

// calculateProgress weighs each finished phase by its benchmark duration.
func calculateProgress(m Model) float64 {
	if m.Done {
		return 1.0
	}

	var total, done float64
	for _, p := range m.Phases {
		w := phaseWeight(p.Name)
		total += w
		if p.Done || p.Err != nil {
			done += w
		}
	}
	if total == 0 {
		return 0
	}
	return done / total
}

func phaseWeight(name string) float64 {
	if secs, ok := benchmarks.DefaultTimings[name]; ok && secs > 0 {
		return float64(secs)
	}
	return 1
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
