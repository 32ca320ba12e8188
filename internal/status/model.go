package status

import (
	"context"
	"errors"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/navsync/navsync/internal/artwork"
	"github.com/navsync/navsync/internal/ui"
)

const (
	refreshInterval = time.Second
	artWidth        = 24
	artHeight       = 12
)

type tickMsg time.Time

// Model renders the board. It never writes to it.
type Model struct {
	board *Board
	theme ui.Theme
	now   func() time.Time

	current Current
	art     string
	width   int
	height  int
}

func New(board *Board, theme ui.Theme) Model {
	return Model{
		board: board,
		theme: theme,
		now:   time.Now,
		art:   artwork.Placeholder(artWidth, artHeight),
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m = m.refresh()
		return m, tick()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	}
	return m, nil
}

// refresh pulls the board and re-renders artwork only when it changed.
func (m Model) refresh() Model {
	cur := m.board.Get()
	if cur.Version == m.current.Version {
		return m
	}
	m.current = cur
	m.art = artwork.Placeholder(artWidth, artHeight)
	if len(cur.Image) > 0 {
		if art, err := artwork.RenderANSI(cur.Image, artWidth, artHeight); err == nil {
			m.art = art
		}
	}
	return m
}

func (m Model) View() string {
	top := m.theme.Title.Render("navsync ▸ Now Playing")

	var info strings.Builder
	s := m.current.Snapshot
	if s == nil {
		info.WriteString(m.theme.Idle.Render("Nothing playing") + "\n")
	} else {
		info.WriteString(m.theme.Playing.Render("▶ Playing") + "\n\n")
		info.WriteString(m.theme.Track.Render(s.Title) + "\n")
		info.WriteString(m.theme.Artist.Render(s.Artists) + "\n")
		if s.Album != "" {
			info.WriteString(m.theme.Album.Render(s.Album) + "\n")
		}
		var meta []string
		if l := s.Length(); l != "" {
			meta = append(meta, l)
		}
		if s.IsSingle {
			meta = append(meta, "single")
		}
		if len(meta) > 0 {
			info.WriteString(m.theme.Dim.Render(strings.Join(meta, " · ")) + "\n")
		}
	}
	if !m.current.Updated.IsZero() {
		info.WriteString("\n" + m.theme.Dim.Render("updated "+humanize.RelTime(m.current.Updated, m.now(), "ago", "from now")))
	}

	art := m.theme.Border.Render(m.art)
	body := lipgloss.JoinHorizontal(lipgloss.Top, art, "  ", info.String())
	help := m.theme.Dim.Render("q quit")
	return lipgloss.JoinVertical(lipgloss.Left, top, "", body, "", help)
}

// Run shows the view until the user quits or ctx ends.
func Run(ctx context.Context, board *Board, theme ui.Theme) error {
	p := tea.NewProgram(New(board, theme), tea.WithContext(ctx), tea.WithAltScreen())
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
