// Package tui is the terminal front end of the operator: one screen showing
// the newest stored post, its summary and the outcome of the last action.
package tui

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"instapost/internal/domain"
	"instapost/internal/imaging"
	"instapost/internal/service"
	"instapost/internal/twitter"
)

const thumbnailColumns = 56

// Operator is the session the screen drives.
type Operator interface {
	ShowLatest(ctx context.Context) (*service.LatestView, error)
	Summarize(ctx context.Context) (string, error)
	Publish(ctx context.Context, withImage bool) (*domain.Tweet, error)
	Summary() string
	SummarySource() *domain.Post
}

type latestMsg struct {
	view *service.LatestView
	err  error
}

type summaryMsg struct {
	summary string
	err     error
}

type publishedMsg struct {
	tweet     *domain.Tweet
	withImage bool
	err       error
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle   = lipgloss.NewStyle().Bold(true)
	footerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// Model is the Bubble Tea model for the operator screen. Only one action
// runs at a time; keys pressed while busy are dropped.
type Model struct {
	ctx context.Context
	op  Operator

	busy    bool
	status  string
	failed  bool
	view    *service.LatestView
	thumb   string
	summary string
}

func NewModel(ctx context.Context, op Operator) Model {
	return Model{
		ctx:    ctx,
		op:     op,
		status: "Press l to load the latest post.",
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case latestMsg:
		m.busy = false
		if msg.err != nil {
			return m.fail(msg.err), nil
		}
		m.view = msg.view
		m.summary = m.op.Summary()
		m.thumb = ""
		if msg.view.Image != nil {
			m.thumb = Thumbnail(msg.view.Image, thumbnailColumns)
		}
		m.failed = false
		m.status = "Latest post loaded."
		if msg.view.ImageErr != nil {
			m.status = "Latest post loaded, image unavailable."
		}

	case summaryMsg:
		m.busy = false
		if msg.err != nil {
			return m.fail(msg.err), nil
		}
		m.summary = msg.summary
		m.failed = false
		m.status = fmt.Sprintf("Summary ready (%d characters).", len([]rune(msg.summary)))

	case publishedMsg:
		m.busy = false
		if msg.err != nil {
			return m.fail(msg.err), nil
		}
		m.failed = false
		kind := "text only"
		if msg.withImage {
			kind = "with image"
		}
		m.status = fmt.Sprintf("Published %s.", kind)
		if msg.tweet != nil && msg.tweet.ID != "" {
			m.status = fmt.Sprintf("Published %s as %s.", kind, msg.tweet.ID)
		}
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	if m.busy {
		return m, nil
	}

	switch msg.String() {
	case "q":
		return m, tea.Quit

	case "l":
		return m.start("Loading latest post...", m.showLatest())

	case "s":
		return m.start("Summarizing...", m.summarize())

	case "i":
		return m.start("Publishing with image...", m.publish(true))

	case "t":
		return m.start("Publishing text only...", m.publish(false))
	}

	return m, nil
}

func (m Model) start(status string, cmd tea.Cmd) (tea.Model, tea.Cmd) {
	m.busy = true
	m.failed = false
	m.status = status
	return m, cmd
}

func (m Model) fail(err error) Model {
	m.failed = true
	m.status = Describe(err)
	return m
}

func (m Model) showLatest() tea.Cmd {
	return func() tea.Msg {
		view, err := m.op.ShowLatest(m.ctx)
		return latestMsg{view: view, err: err}
	}
}

func (m Model) summarize() tea.Cmd {
	return func() tea.Msg {
		summary, err := m.op.Summarize(m.ctx)
		return summaryMsg{summary: summary, err: err}
	}
}

func (m Model) publish(withImage bool) tea.Cmd {
	return func() tea.Msg {
		tweet, err := m.op.Publish(m.ctx, withImage)
		return publishedMsg{tweet: tweet, withImage: withImage, err: err}
	}
}

// View implements tea.Model
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("instapost operator"))
	b.WriteString("\n\n")

	if m.view != nil && m.view.Post != nil {
		post := m.view.Post
		b.WriteString(labelStyle.Render("Caption"))
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Width(80).Render(post.Caption))
		b.WriteString("\n\n")
		if m.thumb != "" {
			b.WriteString(m.thumb)
			b.WriteString("\n\n")
		}
	}

	if m.summary != "" {
		label := "Summary"
		if src := m.op.SummarySource(); src != nil && m.view != nil && m.view.Post != nil && src.ID != m.view.Post.ID {
			label = fmt.Sprintf("Summary (of post %d)", src.ID)
		}
		b.WriteString(labelStyle.Render(label))
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Width(80).Render(m.summary))
		b.WriteString("\n\n")
	}

	if m.failed {
		b.WriteString(errorStyle.Render(m.status))
	} else {
		b.WriteString(successStyle.Render(m.status))
	}
	b.WriteString("\n\n")

	b.WriteString(footerStyle.Render("l: latest • s: summarize • i: publish with image • t: publish text • q: quit"))
	return b.String()
}

// Describe turns an action error into a one-line message for the screen.
func Describe(err error) string {
	switch {
	case errors.Is(err, domain.ErrNoPosts):
		return "No posts stored yet. Run the scraper first."
	case errors.Is(err, service.ErrNoCaption):
		return "No caption loaded. Press l first."
	case errors.Is(err, service.ErrNoSummary):
		return "No summary yet. Press s first."
	case errors.Is(err, twitter.ErrPublishFailed):
		return "Publishing failed. See the log for details."
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Action cancelled."
	default:
		return "Action failed. See the log for details."
	}
}

// Thumbnail renders img as columns wide rows of half-block glyphs, two
// pixels per cell, keeping the aspect ratio.
func Thumbnail(img image.Image, columns int) string {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 || columns <= 0 {
		return ""
	}

	rows := columns * b.Dy() / b.Dx() / 2
	if rows < 1 {
		rows = 1
	}
	small := imaging.Resize(img, columns, rows*2)

	var out strings.Builder
	for y := 0; y < rows; y++ {
		for x := 0; x < columns; x++ {
			top := hexColor(small.At(x, 2*y))
			bottom := hexColor(small.At(x, 2*y+1))
			out.WriteString(lipgloss.NewStyle().
				Foreground(lipgloss.Color(top)).
				Background(lipgloss.Color(bottom)).
				Render("▀"))
		}
		if y < rows-1 {
			out.WriteString("\n")
		}
	}
	return out.String()
}

func hexColor(c color.Color) string {
	r, g, b, _ := c.RGBA()
	return fmt.Sprintf("#%02x%02x%02x", r>>8, g>>8, b>>8)
}

// Run starts the operator screen and blocks until the user quits.
func Run(ctx context.Context, op Operator) error {
	p := tea.NewProgram(NewModel(ctx, op), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
