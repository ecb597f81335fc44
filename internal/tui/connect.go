// Package tui contains the Bubble Tea models for interactive output.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dotcommander/crew/internal/agent"
	"github.com/dotcommander/crew/internal/present"
)

type connectState int

const (
	connectingState connectState = iota
	doneState
)

// Connect is the Bubble Tea model that shows live tool server bring-up: one
// line per configured server, a spinner while its attempt is in flight, and a
// settled marker once it finishes.
type Connect struct {
	state   connectState
	spinner spinner.Model
	styles  present.Styles

	order   []string
	settled map[string]agent.LoadResult
	events  <-chan agent.LoadResult

	okMark   string
	failMark string
}

// NewConnect creates the bring-up progress model. servers is the full server
// list in configuration order; events delivers one result per server as each
// attempt settles and must be closed by the sender once all have.
func NewConnect(r *lipgloss.Renderer, servers []string, events <-chan agent.LoadResult) *Connect {
	styles := present.MakeStyles(r)
	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = styles.Flag
	return &Connect{
		spinner:  sp,
		styles:   styles,
		order:    servers,
		settled:  make(map[string]agent.LoadResult, len(servers)),
		events:   events,
		okMark:   styles.Flag.Render("✓"),
		failMark: r.NewStyle().Foreground(lipgloss.Color("#FF5F87")).Render("✗"),
	}
}

type settledMsg agent.LoadResult

type allSettledMsg struct{}

func (c *Connect) nextEvent() tea.Msg {
	res, ok := <-c.events
	if !ok {
		return allSettledMsg{}
	}
	return settledMsg(res)
}

// Init implements tea.Model.
func (c *Connect) Init() tea.Cmd {
	return tea.Batch(c.spinner.Tick, c.nextEvent)
}

// Update implements tea.Model.
func (c *Connect) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return c, tea.Quit
		}
	case settledMsg:
		c.settled[msg.Server.Name] = agent.LoadResult(msg)
		return c, c.nextEvent
	case allSettledMsg:
		c.state = doneState
		return c, tea.Quit
	case spinner.TickMsg:
		if c.state == doneState {
			return c, nil
		}
		var cmd tea.Cmd
		c.spinner, cmd = c.spinner.Update(msg)
		return c, cmd
	}
	return c, nil
}

// View implements tea.Model.
func (c *Connect) View() string {
	var b strings.Builder
	for _, name := range c.order {
		res, ok := c.settled[name]
		switch {
		case !ok:
			fmt.Fprintf(&b, "%s %s\n", c.spinner.View(), name)
		case res.Err != nil:
			fmt.Fprintf(&b, "%s %s %s\n", c.failMark, name, c.styles.Comment.Render(res.Err.Error()))
		default:
			fmt.Fprintf(&b, "%s %s %s\n", c.okMark, name, c.styles.Comment.Render(toolCountLabel(len(res.Agent.Tools))))
		}
	}
	return b.String()
}

func toolCountLabel(n int) string {
	if n == 1 {
		return "1 tool"
	}
	return fmt.Sprintf("%d tools", n)
}
