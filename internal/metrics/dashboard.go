package metrics

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Dashboard renders the session summary for the terminal.
type Dashboard struct {
	collector *Collector
	styles    DashboardStyles
	width     int
	now       func() time.Time
}

// DashboardStyles holds the lipgloss styles used by the dashboard.
type DashboardStyles struct {
	Border  lipgloss.Style
	Header  lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Online  lipgloss.Style
	Offline lipgloss.Style
	Warn    lipgloss.Style
}

// NewDashboard creates a dashboard over collector.
func NewDashboard(collector *Collector) *Dashboard {
	return &Dashboard{
		collector: collector,
		width:     72,
		styles:    defaultDashboardStyles(),
		now:       time.Now,
	}
}

func defaultDashboardStyles() DashboardStyles {
	return DashboardStyles{
		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")),
		Label: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")),
		Value: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255")),
		Online: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("82")),
		Offline: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214")),
		Warn: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196")),
	}
}

// SetWidth sets the dashboard width.
func (d *Dashboard) SetWidth(w int) {
	if w > 10 {
		d.width = w
	}
}

// Render returns the bordered multi-line summary.
func (d *Dashboard) Render() string {
	s := d.collector.Session()

	var b strings.Builder
	b.WriteString(d.styles.Header.Render("SESSION"))
	b.WriteString("\n")

	fmt.Fprintf(&b, "%s %s │ %s %s │ %s %s\n",
		d.styles.Label.Render("Mode:"),
		d.renderMode(s.Mode),
		d.styles.Label.Render("Remote:"),
		d.renderRemote(s.RemoteAvailable),
		d.styles.Label.Render("Uptime:"),
		d.styles.Value.Render(formatElapsed(d.now().Sub(s.StartTime))),
	)

	fmt.Fprintf(&b, "%s %s │ %s %s │ %s %s\n",
		d.styles.Label.Render("Routes:"),
		d.styles.Value.Render(fmt.Sprintf("%d (%d online / %d offline)", s.Routes, s.OnlineRoutes, s.OfflineRoutes)),
		d.styles.Label.Render("Intents:"),
		d.styles.Value.Render(fmt.Sprintf("%d", s.IntentMatches)),
		d.styles.Label.Render("Latency:"),
		d.styles.Value.Render(fmt.Sprintf("%dms avg", s.AverageLatency().Milliseconds())),
	)

	fallbacks := d.styles.Value.Render(fmt.Sprintf("%d", s.Fallbacks))
	if s.Fallbacks > 0 {
		fallbacks = d.styles.Warn.Render(fmt.Sprintf("%d", s.Fallbacks))
	}
	fmt.Fprintf(&b, "%s %s │ %s %s │ %s %s │ %s",
		d.styles.Label.Render("Fallbacks:"),
		fallbacks,
		d.styles.Label.Render("Retrains:"),
		d.styles.Value.Render(fmt.Sprintf("%d (+%d skipped)", s.Retrains, s.RetrainSkips)),
		d.styles.Label.Render("Last:"),
		d.styles.Value.Render(d.lastEvent(s)),
		d.renderEventActivity(),
	)

	return d.styles.Border.Width(d.width - 4).Render(b.String())
}

// RenderCompact returns a single-line summary without styling.
func (d *Dashboard) RenderCompact() string {
	s := d.collector.Session()
	return fmt.Sprintf("[%s] %d routes │ %d online / %d offline │ %d fallbacks │ %dms avg │ %d retrains │ %s",
		strings.ToUpper(orDefault(s.Mode, "unknown")),
		s.Routes,
		s.OnlineRoutes,
		s.OfflineRoutes,
		s.Fallbacks,
		s.AverageLatency().Milliseconds(),
		s.Retrains,
		d.renderEventActivity(),
	)
}

func (d *Dashboard) renderMode(mode string) string {
	switch mode {
	case "online":
		return d.styles.Online.Render("ONLINE")
	case "offline":
		return d.styles.Offline.Render("OFFLINE")
	}
	return d.styles.Value.Render(orDefault(mode, "unknown"))
}

func (d *Dashboard) renderRemote(avail *bool) string {
	switch {
	case avail == nil:
		return d.styles.Label.Render("unobserved")
	case *avail:
		return d.styles.Online.Render("available")
	default:
		return d.styles.Warn.Render("unavailable")
	}
}

func (d *Dashboard) lastEvent(s SessionStats) string {
	if s.LastEvent == "" {
		return "none"
	}
	name := s.LastEvent
	if len(name) > 20 {
		name = name[:17] + "..."
	}
	return fmt.Sprintf("%s (%s)", name, formatElapsed(d.now().Sub(s.LastEventTime)))
}

// renderEventActivity shows one dot per recent event, up to five.
func (d *Dashboard) renderEventActivity() string {
	events := d.collector.RecentEvents(5)
	return strings.Repeat("●", len(events)) + strings.Repeat("○", 5-len(events))
}

func formatElapsed(d time.Duration) string {
	switch {
	case d < time.Second:
		return "now"
	case d < time.Minute:
		return fmt.Sprintf("%.0fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%.0fm", d.Minutes())
	default:
		return fmt.Sprintf("%.1fh", d.Hours())
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
