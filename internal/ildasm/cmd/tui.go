package cmd

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	pathpkg "path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/v2/list"
	"github.com/charmbracelet/bubbles/v2/spinner"
	"github.com/charmbracelet/bubbles/v2/viewport"
	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/lipgloss/v2"

	"github.com/Trazarw/dotnet-ildasm/internal/dasm"
	"github.com/Trazarw/dotnet-ildasm/internal/decoder"
	"github.com/Trazarw/dotnet-ildasm/internal/filter"
	"github.com/Trazarw/dotnet-ildasm/internal/ildasm/styles"
	"github.com/Trazarw/dotnet-ildasm/internal/logging"
	"github.com/Trazarw/dotnet-ildasm/internal/metadata"
	"github.com/Trazarw/dotnet-ildasm/internal/ui/colorize"
)

type viewMode int

const (
	viewOverview viewMode = iota
	viewTypes
	viewDisasm
)

type typeItem struct {
	name     string
	fullName string
	methods  int
}

func (i typeItem) Title() string       { return i.fullName }
func (i typeItem) Description() string { return "" }
func (i typeItem) FilterValue() string { return i.fullName }

type itemDelegate struct{}

func (d itemDelegate) Height() int                               { return 1 }
func (d itemDelegate) Spacing() int                              { return 0 }
func (d itemDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d itemDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	item, ok := listItem.(typeItem)
	if !ok {
		return
	}

	line := fmt.Sprintf("%s (%d methods)", item.fullName, item.methods)

	itemStyle := lipgloss.NewStyle().PaddingLeft(4)
	selectedStyle := lipgloss.NewStyle().PaddingLeft(2).Foreground(lipgloss.Color("170"))

	if index == m.Index() {
		fmt.Fprint(w, selectedStyle.Render("> "+line))
		return
	}
	fmt.Fprint(w, itemStyle.Render(line))
}

type model struct {
	viewport        viewport.Model
	typesList       list.Model
	disasmView      viewport.Model
	spinner         spinner.Model
	mode            viewMode
	filepath        string
	digest          string
	assembly        *metadata.Assembly
	decodeErr       string
	loadingAssembly bool
	loadingDigest   bool
	width           int
	height          int
}

// Message types
type digestCalculatedMsg struct {
	digest string
}

type assemblyMsg struct {
	assembly *metadata.Assembly
	err      error
}

// Commands
func calculateDigestCmd(filepath string) tea.Cmd {
	return func() tea.Msg {
		file, err := os.Open(filepath)
		if err != nil {
			return digestCalculatedMsg{digest: fmt.Sprintf("error: %v", err)}
		}
		defer file.Close()

		hash := sha256.New()
		if _, err := io.Copy(hash, file); err != nil {
			return digestCalculatedMsg{digest: fmt.Sprintf("error: %v", err)}
		}
		return digestCalculatedMsg{digest: fmt.Sprintf("%x", hash.Sum(nil))}
	}
}

func decodeAssemblyCmd(filepath string) tea.Cmd {
	return func() tea.Msg {
		logger := logging.NewLogger()
		defer logger.Close()

		asm, err := decoder.Decode(filepath, logger.Logger)
		return assemblyMsg{assembly: asm, err: err}
	}
}

func NewModel(filepath string) model {
	vp := viewport.New()
	vp.SetWidth(80)
	vp.SetHeight(24)

	typesList := list.New([]list.Item{}, itemDelegate{}, 80, 24)
	typesList.SetShowStatusBar(false)
	typesList.SetFilteringEnabled(true)
	typesList.Title = "Types"
	typesList.Styles.Title = lipgloss.NewStyle().
		Foreground(lipgloss.Color("99")).
		MarginLeft(2)
	typesList.SetShowHelp(true)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))

	dvp := viewport.New()
	dvp.SetWidth(80)
	dvp.SetHeight(24)

	m := model{
		viewport:        vp,
		typesList:       typesList,
		disasmView:      dvp,
		spinner:         s,
		mode:            viewOverview,
		filepath:        filepath,
		loadingAssembly: true,
		loadingDigest:   true,
		width:           80,
		height:          24,
	}
	m.updateContent()
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		calculateDigestCmd(m.filepath),
		decodeAssemblyCmd(m.filepath),
		m.spinner.Tick,
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case digestCalculatedMsg:
		m.digest = msg.digest
		m.loadingDigest = false
		m.updateContent()
		return m, nil

	case assemblyMsg:
		m.loadingAssembly = false
		if msg.err != nil {
			m.decodeErr = msg.err.Error()
		} else {
			m.assembly = msg.assembly
			m.updateTypesList()
		}
		m.updateContent()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.loadingDigest || m.loadingAssembly {
			m.updateContent()
			return m, cmd
		}
		return m, nil

	case tea.WindowSizeMsg:
		if msg.Width != m.width || msg.Height != m.height {
			m.width = msg.Width
			m.height = msg.Height
			m.viewport.SetWidth(msg.Width)
			m.viewport.SetHeight(msg.Height - 2)
			m.typesList.SetWidth(msg.Width)
			m.typesList.SetHeight(msg.Height - 2)
			m.disasmView.SetWidth(msg.Width)
			m.disasmView.SetHeight(msg.Height - 2)
			m.updateContent()
		}

	case tea.KeyMsg:
		// While the types list is filtering, only quit keys are
		// intercepted.
		if m.mode == viewTypes && m.typesList.FilterState() == list.Filtering {
			switch msg.String() {
			case "q", "ctrl+c":
				return m, tea.Quit
			}
		} else {
			switch msg.String() {
			case "q", "ctrl+c":
				return m, tea.Quit
			case "o":
				m.mode = viewOverview
				return m, nil
			case "t":
				if m.assembly != nil {
					m.mode = viewTypes
				}
				return m, nil
			case "esc":
				if m.mode == viewDisasm {
					m.mode = viewTypes
					return m, nil
				}
			case "enter":
				if m.mode == viewTypes {
					if selectedItem := m.typesList.SelectedItem(); selectedItem != nil {
						if item, ok := selectedItem.(typeItem); ok && m.assembly != nil {
							m.disasmView.SetContent(m.renderTypeDisassembly(item))
							m.disasmView.GotoTop()
							m.mode = viewDisasm
						}
					}
				}
				return m, nil
			case "tab":
				switch m.mode {
				case viewOverview:
					if m.assembly != nil {
						m.mode = viewTypes
					}
				case viewTypes:
					m.mode = viewOverview
				case viewDisasm:
					m.mode = viewTypes
				}
				return m, nil
			}
		}
	}

	switch m.mode {
	case viewTypes:
		m.typesList, cmd = m.typesList.Update(msg)
	case viewDisasm:
		m.disasmView, cmd = m.disasmView.Update(msg)
	default:
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

func (m model) View() string {
	var content string
	switch m.mode {
	case viewTypes:
		content = m.typesList.View()
	case viewDisasm:
		content = m.disasmView.View()
	default:
		content = m.viewport.View()
	}

	var menu string
	switch m.mode {
	case viewTypes:
		menu = " Enter: disassemble • O: overview • Tab: cycle • Q: quit "
	case viewDisasm:
		menu = " Esc: back to types • O: overview • Q: quit "
	default:
		if m.assembly != nil {
			menu = " T: types • Tab: cycle • Q: quit "
		} else {
			menu = " Q: quit "
		}
	}

	menuStyle := lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Foreground(lipgloss.Color("252")).
		Padding(0, 1).
		Width(m.width)

	return content + "\n" + menuStyle.Render(menu)
}

// renderTypeDisassembly runs the core renderer over a single type and
// colorizes the result for the viewport.
func (m *model) renderTypeDisassembly(item typeItem) string {
	typeFilter, err := filter.New(filter.WithType(item.name))
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}

	var buf bytes.Buffer
	if err := dasm.Render(m.assembly, typeFilter, dasm.NewWriterSink(&buf)); err != nil {
		return fmt.Sprintf("error: %v", err)
	}

	colored, err := colorize.Disassembly(buf.String())
	if err != nil {
		return buf.String()
	}
	return colored
}

func (m *model) updateContent() {
	relPath := m.filepath
	if cwd, err := os.Getwd(); err == nil {
		if rel, err := pathpkg.Rel(cwd, m.filepath); err == nil {
			relPath = rel
		}
	}

	var lines []string
	dir := pathpkg.Dir(relPath)
	base := pathpkg.Base(relPath)

	if dir != "." {
		lines = append(lines, fmt.Sprintf("// %s/", dir))
	}
	lines = append(lines, fmt.Sprintf("// %s", base))

	if m.digest != "" {
		lines = append(lines, fmt.Sprintf("// %s", m.digest))
	} else if m.loadingDigest {
		lines = append(lines, "// Calculating digest...")
	}

	markdown := fmt.Sprintf("# ildasm\n\n```\n%s\n```", strings.Join(lines, "\n"))

	if m.decodeErr != "" {
		markdown += "\n\n## Error\n\n" + m.decodeErr
	} else if m.assembly != nil {
		markdown += "\n\n## Assembly\n\n"
		v := m.assembly.Version
		markdown += fmt.Sprintf("- Name: `%s`\n", m.assembly.Name)
		markdown += fmt.Sprintf("- Version: `%d.%d.%d.%d`\n", v.Major, v.Minor, v.Build, v.Revision)
		markdown += fmt.Sprintf("- Hash algorithm: `0x%08x`\n", m.assembly.HashAlgorithm)
		markdown += fmt.Sprintf("- References: %d\n", len(m.assembly.References))
		types := 0
		for i := range m.assembly.Modules {
			types += len(m.assembly.Modules[i].Types)
		}
		markdown += fmt.Sprintf("- Types: %d\n", types)
	}

	if m.loadingAssembly {
		markdown += fmt.Sprintf("\n\n%s Decoding assembly...", m.spinner.View())
	}
	if m.loadingDigest && m.digest == "" {
		markdown += fmt.Sprintf("\n\n%s Calculating digest...", m.spinner.View())
	}

	width := m.width
	if width == 0 {
		width = 80
	}
	renderer := styles.GetMarkdownRenderer(width - 2)
	rendered, _ := renderer.Render(markdown)
	m.viewport.SetContent(strings.TrimSuffix(rendered, "\n"))
}

func (m *model) updateTypesList() {
	if m.assembly == nil {
		return
	}
	var items []list.Item
	for i := range m.assembly.Modules {
		for _, t := range m.assembly.Modules[i].Types {
			if t.Name == "<Module>" {
				continue
			}
			items = append(items, typeItem{
				name:     t.Name,
				fullName: t.FullName,
				methods:  len(t.Methods),
			})
		}
	}
	m.typesList.SetItems(items)
	m.typesList.Title = fmt.Sprintf("Types (%d total)", len(items))
}
