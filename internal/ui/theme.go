// Package ui holds the colour themes used by the status view.
package ui

import (
	"slices"

	"github.com/charmbracelet/lipgloss"
)

const DefaultTheme = "rainbow"

type Theme struct {
	Name    string
	Title   lipgloss.Style
	Track   lipgloss.Style
	Artist  lipgloss.Style
	Album   lipgloss.Style
	Dim     lipgloss.Style
	Border  lipgloss.Style
	Playing lipgloss.Style
	Idle    lipgloss.Style
	Error   lipgloss.Style
}

type palette struct {
	title, track, artist, album, dim, border, playing, idle, bad string
}

var palettes = map[string]palette{
	"rainbow": {
		title: "#8EEBFF", track: "#FF6FF7", artist: "#E6E6FA", album: "#FFA7C4",
		dim: "#6C6F93", border: "#7C7CFF", playing: "#5CFF5C", idle: "#FFD166", bad: "#FF5F56",
	},
	"navidrome": {
		title: "#4BA3FF", track: "#FFFFFF", artist: "#B7D7FF", album: "#8AB4F8",
		dim: "#5F6B7A", border: "#1E6FD9", playing: "#4BD18B", idle: "#F2C94C", bad: "#EB5757",
	},
	"nord": {
		title: "#88C0D0", track: "#ECEFF4", artist: "#D8DEE9", album: "#81A1C1",
		dim: "#4C566A", border: "#5E81AC", playing: "#A3BE8C", idle: "#EBCB8B", bad: "#BF616A",
	},
	"mono": {
		title: "#FFFFFF", track: "#FFFFFF", artist: "#CCCCCC", album: "#AAAAAA",
		dim: "#666666", border: "#888888", playing: "#CCCCCC", idle: "#AAAAAA", bad: "#FFFFFF",
	},
}

// ThemeNames lists the selectable themes, nocolor included.
func ThemeNames() []string {
	return []string{"rainbow", "navidrome", "nord", "mono", "nocolor"}
}

func ValidTheme(name string) bool {
	return slices.Contains(ThemeNames(), name)
}

// GetTheme returns the named theme, falling back to the default. noColor
// (the NO_COLOR convention) wins over any name.
func GetTheme(name string, noColor bool) Theme {
	if noColor || name == "nocolor" {
		return NoColor()
	}
	p, ok := palettes[name]
	if !ok {
		name, p = DefaultTheme, palettes[DefaultTheme]
	}
	fg := func(c string) lipgloss.Style { return lipgloss.NewStyle().Foreground(lipgloss.Color(c)) }
	return Theme{
		Name:    name,
		Title:   fg(p.title).Bold(true),
		Track:   fg(p.track).Bold(true),
		Artist:  fg(p.artist),
		Album:   fg(p.album).Italic(true),
		Dim:     fg(p.dim),
		Border:  fg(p.border),
		Playing: fg(p.playing).Bold(true),
		Idle:    fg(p.idle),
		Error:   fg(p.bad).Bold(true),
	}
}

// NoColor relies on bold, italic and reverse only.
func NoColor() Theme {
	plain := lipgloss.NewStyle()
	return Theme{
		Name:    "nocolor",
		Title:   plain.Bold(true),
		Track:   plain.Bold(true),
		Artist:  plain,
		Album:   plain.Italic(true),
		Dim:     plain,
		Border:  plain,
		Playing: plain.Reverse(true),
		Idle:    plain,
		Error:   plain.Bold(true),
	}
}
