package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/teslashibe/go-pupper/pkg/pilot"
	"github.com/teslashibe/go-pupper/pkg/tracking"
)

const (
	maxLogs        = 6
	statusInterval = 500 * time.Millisecond
	requestTimeout = 10 * time.Second
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
)

type model struct {
	api      *apiClient
	velocity float64
	angular  float64

	status    pilot.Status
	statusErr error
	logs      []string

	prompting bool
	input     string
	quitting  bool
}

// Messages
type statusMsg struct {
	st  pilot.Status
	err error
}
type logMsg string
type tickMsg time.Time

func newModel(api *apiClient, velocity, angular float64) model {
	return model{api: api, velocity: velocity, angular: angular}
}

func (m *model) addLog(msg string) {
	m.logs = append(m.logs, time.Now().Format("15:04:05")+" "+msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.fetchStatus(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(statusInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) fetchStatus() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		st, err := m.api.status(ctx)
		return statusMsg{st: st, err: err}
	}
}

// request runs fn and reports the outcome as a log line.
func request(label string, fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			return logMsg(fmt.Sprintf("%s failed: %v", label, err))
		}
		return logMsg(label)
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.prompting {
			return m.updatePrompt(msg)
		}
		return m.updateKeys(msg)

	case statusMsg:
		m.status, m.statusErr = msg.st, msg.err
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.fetchStatus(), tick())

	case logMsg:
		m.addLog(string(msg))
		return m, nil
	}
	return m, nil
}

func (m model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	api := m.api
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Sequence(request("stop", api.stop), tea.Quit)
	case "up", "w":
		v := m.velocity
		return m, request(fmt.Sprintf("move %.2f", v), func(ctx context.Context) error { return api.move(ctx, v) })
	case "down", "s":
		v := -m.velocity
		return m, request(fmt.Sprintf("move %.2f", v), func(ctx context.Context) error { return api.move(ctx, v) })
	case "left", "a":
		w := m.angular
		return m, request(fmt.Sprintf("turn %.2f", w), func(ctx context.Context) error { return api.turn(ctx, w) })
	case "right", "d":
		w := -m.angular
		return m, request(fmt.Sprintf("turn %.2f", w), func(ctx context.Context) error { return api.turn(ctx, w) })
	case " ":
		return m, request("stop", api.stop)
	case "c":
		m.prompting, m.input = true, ""
	}
	return m, nil
}

func (m model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.prompting = false
	case tea.KeyEnter:
		m.prompting = false
		class := strings.TrimSpace(m.input)
		if class == "" {
			return m, nil
		}
		api := m.api
		return m, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()
			id, err := api.faceClass(ctx, class)
			if err != nil {
				return logMsg(fmt.Sprintf("face %s failed: %v", class, err))
			}
			return logMsg(fmt.Sprintf("face %s: run %s", class, id))
		}
	case tea.KeyBackspace:
		if len(m.input) > 0 {
			r := []rune(m.input)
			m.input = string(r[:len(r)-1])
		}
	case tea.KeySpace:
		m.input += " "
	case tea.KeyRunes:
		m.input += string(msg.Runes)
	case tea.KeyCtrlC:
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return "Teleop stopped.\n"
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Pupper Teleop"))
	sb.WriteString(statusStyle.Render("  " + m.api.base))
	sb.WriteString("\n\n")
	sb.WriteString(boxStyle.Render(m.renderStatus()))
	sb.WriteString("\n")

	if m.prompting {
		sb.WriteString(promptStyle.Render("class> ") + m.input + "█\n")
	} else {
		sb.WriteString(statusStyle.Render("↑/↓ move  ←/→ turn  space stop  c face class  q quit"))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	for _, l := range m.logs {
		sb.WriteString(statusStyle.Render(l))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m model) renderStatus() string {
	if m.statusErr != nil {
		return errorStyle.Render("offline: " + m.statusErr.Error())
	}
	st := m.status

	yaw := "n/a"
	if st.Yaw != nil {
		yaw = fmt.Sprintf("%.1f°", tracking.Degrees(*st.Yaw))
	}
	lines := []string{
		fmt.Sprintf("yaw %s   detections %d", yaw, st.Detections),
		fmt.Sprintf("cmd_vel %s", st.Commander.Last.String()),
		fmt.Sprintf("published %d  stops %d  errors %d", st.Commander.Published, st.Commander.Stops, st.Commander.Errors),
	}
	for _, r := range st.Active {
		lines = append(lines, fmt.Sprintf("▶ %s %s (%s)", r.Kind, r.State, r.ID[:8]))
	}
	if st.Last != nil {
		last := fmt.Sprintf("last %s %s", st.Last.Kind, st.Last.State)
		if st.Last.Err != "" {
			last += ": " + st.Last.Err
		}
		lines = append(lines, last)
	}
	return strings.Join(lines, "\n")
}
