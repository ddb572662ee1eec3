// Package tui – styles.go
// Shared color palette & lipgloss styles for the console REPL and
// approval prompts.
package tui

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// ─── Color palette ─────────────────────────────────────────────────────
var (
	ColorPrimary   = lipgloss.Color("#cc7700") // orange – user messages, accents
	ColorSecondary = lipgloss.Color("#5599dd") // sky blue – assistant, strings
	ColorAccent    = lipgloss.Color("#445566") // muted blue-gray – badges, tasks
	ColorPanel     = lipgloss.Color("#555555") // gray – tool borders, separators
	ColorSurface   = lipgloss.Color("#111111") // near-black – subtle backgrounds
	ColorMuted     = lipgloss.Color("#888888") // muted text – timestamps, hints
	ColorWarn      = lipgloss.Color("#aaaa00") // yellow – warnings, caution
	ColorError     = lipgloss.Color("#cc3333") // red – errors, high usage
	ColorText      = lipgloss.Color("#dddddd") // off-white – normal text
	ColorBg        = lipgloss.Color("#000000") // pure black – background
)

// ─── Border types ──────────────────────────────────────────────────────
//
//	thick = heavy vertical  ┃  – errors, system messages
//	wide  = light vertical  │  – secondary panels
//	tall  = right half-block ▐  – confirm prompts
var (
	ThickBorder = lipgloss.Border{Left: "┃"}
	WideBorder  = lipgloss.Border{Left: "│"}
	TallBorder  = lipgloss.Border{Left: "▐"}
)

// ─── Block styles ──────────────────────────────────────────────────────

// ErrorBlockStyle – border-left thick $error, for console error output.
var ErrorBlockStyle = lipgloss.NewStyle().
	Border(ThickBorder).
	BorderLeft(true).BorderTop(false).BorderBottom(false).BorderRight(false).
	BorderForeground(ColorError).
	PaddingLeft(1)

// SystemBlockStyle renders informational console messages.
var SystemBlockStyle = lipgloss.NewStyle().
	Border(ThickBorder).
	BorderLeft(true).BorderTop(false).BorderBottom(false).BorderRight(false).
	BorderForeground(ColorPanel).
	PaddingLeft(1).
	Foreground(ColorPanel)

// SystemWarnBlockStyle renders console warnings (e.g. demo mode active).
var SystemWarnBlockStyle = lipgloss.NewStyle().
	Border(ThickBorder).
	BorderLeft(true).BorderTop(false).BorderBottom(false).BorderRight(false).
	BorderForeground(ColorWarn).
	PaddingLeft(1).
	Foreground(ColorWarn)

// ConfirmBlockStyle frames an approve/reject confirmation prompt in the console REPL.
var ConfirmBlockStyle = lipgloss.NewStyle().
	Border(TallBorder).
	BorderLeft(true).BorderTop(false).BorderBottom(false).BorderRight(false).
	BorderForeground(ColorPrimary).
	PaddingLeft(1).PaddingRight(2).PaddingTop(1).PaddingBottom(1).
	Background(ColorSurface)

// PromptOptionStyle – unselected option: subtle left border, dimmed text.
var PromptOptionStyle = lipgloss.NewStyle().
	PaddingLeft(1).
	Foreground(ColorMuted)

// PromptOptionSelectedStyle – selected option: bright left border, highlighted bg, bright text.
var PromptOptionSelectedStyle = lipgloss.NewStyle().
	Border(TallBorder).
	BorderLeft(true).BorderTop(false).BorderBottom(false).BorderRight(false).
	BorderForeground(ColorPrimary).
	PaddingLeft(1).
	Foreground(ColorText).
	Background(lipgloss.Color("#1a1a2e")) // subtle highlight bg

// PromptTitleStyle renders a prompt's title line.
var PromptTitleStyle = lipgloss.NewStyle().
	Foreground(ColorText).
	PaddingBottom(1)

// ─── Branding ──────────────────────────────────────────────────────────

const (
	BrandName = "docwallet-agent"
	BrandFull = "Document Wallet Agent"
)

// BrandLogo returns a compact startup banner with the product name.
func BrandLogo(version string) string {
	mark := []string{
		` ┌──────┐`,
		` │ $  $ │`,
		` │  ▢▢  │`,
		` └──────┘`,
	}
	markStyle := lipgloss.NewStyle().Foreground(ColorPrimary)
	nameStyle := lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)
	verStyle := lipgloss.NewStyle().Foreground(ColorMuted)
	var b strings.Builder
	for _, line := range mark {
		b.WriteString(markStyle.Render(line))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(nameStyle.Render("  " + BrandFull))
	if version != "" {
		b.WriteString(" ")
		b.WriteString(verStyle.Render(version))
	}
	b.WriteString("\n")
	return b.String()
}

// ─── Text styles ───────────────────────────────────────────────────────

var (
	PrimaryText   = lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)
	SecondaryText = lipgloss.NewStyle().Bold(true).Foreground(ColorSecondary)
	MutedText     = lipgloss.NewStyle().Foreground(ColorMuted)
	AccentText    = lipgloss.NewStyle().Foreground(ColorAccent)
	WarnText      = lipgloss.NewStyle().Bold(true).Foreground(ColorWarn)
	ErrorText     = lipgloss.NewStyle().Bold(true).Foreground(ColorError)
	NormalText    = lipgloss.NewStyle().Foreground(ColorText)
	PanelText     = lipgloss.NewStyle().Foreground(ColorPanel)
)

// ─── Input box ─────────────────────────────────────────────────────────

var InputBoxStyle = lipgloss.NewStyle().
	Border(lipgloss.NormalBorder()).
	BorderForeground(ColorPanel).
	Background(ColorSurface).
	Padding(0, 1)

var InputBoxFocusedStyle = lipgloss.NewStyle().
	Border(lipgloss.NormalBorder()).
	BorderForeground(ColorPrimary).
	Background(ColorSurface).
	Padding(0, 1)

// ─── Footer bar ────────────────────────────────────────────────────────
var FooterStyle = lipgloss.NewStyle().
	Background(ColorSurface).
	Foreground(ColorMuted)

// ─── Spinner ───────────────────────────────────────────────────────────
var SpinnerFrameSet = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// ─── Dimension helpers ─────────────────────────────────────────────────

// TerminalWidth returns the current terminal width, defaulting to 80.
func TerminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

// TerminalHeight returns the current terminal height, defaulting to 24.
func TerminalHeight() int {
	_, h, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || h <= 0 {
		return 24
	}
	return h
}

// MaxContentWidth caps content at 100 columns for readability.
func MaxContentWidth(termW int) int {
	if termW > 100 {
		return 100
	}
	return termW
}
