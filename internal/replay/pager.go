package replay

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"
	"github.com/muesli/reflow/wordwrap"
)

// Pager is an interactive terminal pager for rendered timelines.
type Pager struct {
	title string
}

var (
	pagerTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	pagerInfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	pagerHelpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))
)

// NewPager creates a pager with the given title.
func NewPager(title string) *Pager {
	return &Pager{title: title}
}

// Run starts the pager over static content.
func (p *Pager) Run(content string) error {
	prog := tea.NewProgram(
		&pagerModel{
			title:   p.title,
			content: content,
		},
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	_, err := prog.Run()
	return err
}

// RunLive starts the pager and re-renders whenever the watched file
// changes.
func (p *Pager) RunLive(path string, render func() (string, error)) error {
	content, err := render()
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("could not create watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return fmt.Errorf("could not watch %s: %w", path, err)
	}

	prog := tea.NewProgram(
		&pagerModel{
			title:   p.title,
			content: content,
			live:    true,
			render:  render,
			watcher: watcher,
		},
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	_, err = prog.Run()
	watcher.Close()
	return err
}

// fileChangedMsg is sent when the watched file changes.
type fileChangedMsg struct{}

// pagerModel is the Bubble Tea model for the pager.
type pagerModel struct {
	viewport viewport.Model
	title    string
	content  string
	wrapped  string // wrapped content, what the viewport actually shows
	ready    bool

	live    bool
	render  func() (string, error)
	watcher *fsnotify.Watcher

	// Search state
	searching    bool
	searchInput  textinput.Model
	searchQuery  string
	searchLines  []int // matching line numbers in wrapped content
	searchIndex  int
	searchFailed bool
}

func (m *pagerModel) Init() tea.Cmd {
	if m.live && m.watcher != nil {
		return m.watchFile()
	}
	return nil
}

// watchFile returns a command that waits for the next file change.
func (m *pagerModel) watchFile() tea.Cmd {
	return func() tea.Msg {
		for {
			select {
			case event, ok := <-m.watcher.Events:
				if !ok {
					return nil
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					// Debounce: let the write settle before reloading.
					time.Sleep(100 * time.Millisecond)
					return fileChangedMsg{}
				}
			case _, ok := <-m.watcher.Errors:
				if !ok {
					return nil
				}
			}
		}
	}
}

func (m *pagerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.searching {
		return m.updateSearch(msg)
	}

	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case fileChangedMsg:
		m.reload()
		cmds = append(cmds, m.watchFile())

	case tea.KeyMsg:
		if model, cmd, handled := m.handleKey(msg); handled {
			return model, cmd
		}

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// updateSearch handles input while the search prompt is open.
func (m *pagerModel) updateSearch(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "enter":
			m.searchQuery = m.searchInput.Value()
			m.searching = false
			m.executeSearch()
			if len(m.searchLines) > 0 {
				m.jumpToMatch(0)
			}
			return m, nil
		case "esc", "ctrl+c":
			m.searching = false
			m.clearSearch()
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}

// handleKey processes pager key bindings. The third return reports
// whether the key was consumed.
func (m *pagerModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit, true
	case "esc":
		if m.searchQuery != "" {
			m.clearSearch()
			return m, nil, true
		}
		return m, tea.Quit, true
	case "g":
		m.viewport.GotoTop()
		return m, nil, true
	case "G":
		m.viewport.GotoBottom()
		return m, nil, true
	case "f", "F":
		// Follow the tail while a run is still writing.
		if m.live {
			m.viewport.GotoBottom()
		}
		return m, nil, true
	case "/":
		m.searching = true
		m.searchInput = textinput.New()
		m.searchInput.Placeholder = "Search..."
		m.searchInput.Focus()
		m.searchInput.CharLimit = 100
		m.searchInput.Width = 40
		if m.searchQuery != "" {
			m.searchInput.SetValue(m.searchQuery)
		}
		return m, textinput.Blink, true
	case "n":
		if len(m.searchLines) > 0 {
			m.searchIndex = (m.searchIndex + 1) % len(m.searchLines)
			m.jumpToMatch(m.searchIndex)
		}
		return m, nil, true
	case "N":
		if len(m.searchLines) > 0 {
			m.searchIndex--
			if m.searchIndex < 0 {
				m.searchIndex = len(m.searchLines) - 1
			}
			m.jumpToMatch(m.searchIndex)
		}
		return m, nil, true
	}
	return m, nil, false
}

// reload re-renders the watched file, preserving the scroll position.
func (m *pagerModel) reload() {
	if m.render == nil {
		return
	}
	content, err := m.render()
	if err != nil {
		return
	}

	oldOffset := m.viewport.YOffset
	m.content = content
	m.wrapped = wrapContent(m.content, m.viewport.Width)
	m.viewport.SetContent(m.wrapped)

	if oldOffset <= m.viewport.TotalLineCount()-m.viewport.Height || oldOffset > 0 {
		m.viewport.YOffset = oldOffset
	}
	if m.searchQuery != "" {
		m.executeSearch()
	}
}

func (m *pagerModel) resize(width, height int) {
	headerHeight := 1
	footerHeight := 1

	if !m.ready {
		m.viewport = viewport.New(width, height-headerHeight-footerHeight)
		m.viewport.YPosition = headerHeight
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = height - headerHeight - footerHeight
	}

	m.wrapped = wrapContent(m.content, width)
	m.viewport.SetContent(m.wrapped)
	if m.searchQuery != "" {
		m.executeSearch()
	}
}

func (m *pagerModel) clearSearch() {
	m.searchQuery = ""
	m.searchLines = nil
	m.searchFailed = false
}

// executeSearch finds all lines in the wrapped content matching the query.
func (m *pagerModel) executeSearch() {
	m.searchLines = nil
	m.searchIndex = 0
	m.searchFailed = false

	if m.searchQuery == "" {
		return
	}

	query := strings.ToLower(m.searchQuery)
	for i, line := range strings.Split(m.wrapped, "\n") {
		if strings.Contains(strings.ToLower(line), query) {
			m.searchLines = append(m.searchLines, i)
		}
	}
	if len(m.searchLines) == 0 {
		m.searchFailed = true
	}
}

// jumpToMatch scrolls so the given match sits near the screen center.
func (m *pagerModel) jumpToMatch(index int) {
	if index < 0 || index >= len(m.searchLines) {
		return
	}

	target := m.searchLines[index] - m.viewport.Height/2
	maxOffset := m.viewport.TotalLineCount() - m.viewport.Height
	if target > maxOffset {
		target = maxOffset
	}
	if target < 0 {
		target = 0
	}
	m.viewport.YOffset = target
}

func (m *pagerModel) View() string {
	if !m.ready {
		return "\n  Loading..."
	}

	title := pagerTitleStyle.Render(m.title)
	line := strings.Repeat("─", max(0, m.viewport.Width-lipgloss.Width(title)))
	header := lipgloss.JoinHorizontal(lipgloss.Center, title, pagerInfoStyle.Render(line))

	return header + "\n" + m.viewport.View() + "\n" + m.footer()
}

func (m *pagerModel) footer() string {
	if m.searching {
		prompt := lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")).
			Render("/")
		return prompt + m.searchInput.View()
	}

	percent := 100
	if m.viewport.TotalLineCount() > m.viewport.Height {
		percent = int(float64(m.viewport.YOffset) /
			float64(max(1, m.viewport.TotalLineCount()-m.viewport.Height)) * 100)
		if percent > 100 {
			percent = 100
		}
	}
	info := fmt.Sprintf(" %d%% ", percent)

	var help string
	switch {
	case m.searchFailed:
		notFound := lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Render("Pattern not found")
		help = fmt.Sprintf(" %s │ /: search ", notFound)
	case len(m.searchLines) > 0:
		matches := lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")).
			Render(fmt.Sprintf("[%d/%d]", m.searchIndex+1, len(m.searchLines)))
		help = fmt.Sprintf(" %s │ n/N: next/prev │ /: search │ esc: clear ", matches)
	case m.live:
		liveMark := lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("10")).
			Render("● LIVE")
		help = fmt.Sprintf(" %s │ q: quit │ /: search │ f: follow │ g/G: top/bottom ", liveMark)
	default:
		help = " q: quit │ /: search │ n/N: next/prev │ g/G: top/bottom "
	}

	filler := strings.Repeat("─", max(0, m.viewport.Width-lipgloss.Width(help)-lipgloss.Width(info)))
	return pagerHelpStyle.Render(help) + pagerInfoStyle.Render(filler) + pagerInfoStyle.Render(info)
}

// wrapContent wraps long lines to the given width. Timeline rows keep
// their column alignment: continuation lines are indented to the
// content column after the last │ separator.
func wrapContent(content string, width int) string {
	if width <= 0 {
		return content
	}

	var result []string
	for _, line := range strings.Split(content, "\n") {
		if lipgloss.Width(line) <= width {
			result = append(result, line)
			continue
		}

		if lastPipe := strings.LastIndex(line, "│"); lastPipe > 0 && lastPipe < len(line)-1 {
			prefixWidth := lipgloss.Width(line[:lastPipe+1]) + 1

			contentWidth := width - prefixWidth
			if contentWidth < 20 {
				contentWidth = 20
			}

			contentStart := lastPipe + len("│")
			for contentStart < len(line) && line[contentStart] == ' ' {
				contentStart++
			}

			wrapped := strings.Split(wordwrap.String(line[contentStart:], contentWidth), "\n")
			result = append(result, line[:contentStart]+wrapped[0])
			indent := strings.Repeat(" ", prefixWidth)
			for _, cont := range wrapped[1:] {
				result = append(result, indent+cont)
			}
			continue
		}

		result = append(result, strings.Split(wordwrap.String(line, width), "\n")...)
	}
	return strings.Join(result, "\n")
}
