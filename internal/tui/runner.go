// internal/tui/runner.go
//
// Interactive ritual runner built on bubbletea. The runner walks one ritual
// session phase by phase: the user speaks (or types) each block, sees which
// anchor phrases were missing, records a vow during renewal and rates the
// emotional intensity before and after.

package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/linaje/internal/bridge"
	"github.com/kingrea/linaje/internal/ritual"
	"github.com/kingrea/linaje/internal/voice"
)

type runnerMode int

const (
	modeIntensityBefore runnerMode = iota
	modeBlocks
	modeVowDescription
	modeVowDuration
	modeVowCategory
	modeIntensityAfter
	modeDone
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	phaseStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F7B801"))
	passStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	bodyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	selectedBox  = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("#5B8DEF")).Padding(0, 1)
	footerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).MarginTop(1)
	anchorBullet = "  • "
)

// Finisher persists a finalized session.
type Finisher func(*ritual.Machine) (ritual.Session, error)

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithTranscripts feeds transcripts from the bridge into the runner. Each
// transcript is submitted to its block, or to the selected one.
func WithTranscripts(ch <-chan bridge.Transcript) RunnerOption {
	return func(r *Runner) { r.transcripts = ch }
}

// WithFinisher sets what happens once the session completes or is abandoned.
func WithFinisher(fn Finisher) RunnerOption {
	return func(r *Runner) { r.finish = fn }
}

type transcriptMsg bridge.Transcript

// Runner is the bubbletea model for one ritual session.
type Runner struct {
	machine     *ritual.Machine
	finish      Finisher
	transcripts <-chan bridge.Transcript

	mode     runnerMode
	input    textinput.Model
	selected int
	last     *voice.Validation
	lastID   string
	status   string
	err      error
	vow      ritual.Vow
	saved    *ritual.Session

	width  int
	height int
}

// NewRunner prepares a runner for m.
func NewRunner(m *ritual.Machine, opts ...RunnerOption) *Runner {
	input := textinput.New()
	input.Prompt = "› "
	input.CharLimit = bridge.MaxTextBytes
	input.Focus()
	r := &Runner{machine: m, input: input}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	r.syncMode()
	return r
}

// Session returns the persisted session once the runner is done.
func (r *Runner) Session() (ritual.Session, bool) {
	if r.saved == nil {
		return ritual.Session{}, false
	}
	return r.saved.Clone(), true
}

// Init starts listening for bridge transcripts.
func (r *Runner) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, r.waitTranscript())
}

func (r *Runner) waitTranscript() tea.Cmd {
	if r.transcripts == nil {
		return nil
	}
	ch := r.transcripts
	return func() tea.Msg {
		t, ok := <-ch
		if !ok {
			return nil
		}
		return transcriptMsg(t)
	}
}

// Update handles keys, window changes and incoming transcripts.
func (r *Runner) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		r.width = msg.Width
		r.height = msg.Height
		r.input.Width = max(20, msg.Width-8)
		return r, nil
	case transcriptMsg:
		if r.mode == modeBlocks {
			blockID := msg.BlockID
			if blockID == "" {
				blockID = r.currentBlockID()
			}
			r.submit(blockID, msg.Text)
		}
		return r, r.waitTranscript()
	case tea.KeyMsg:
		return r.handleKey(msg)
	}
	var cmd tea.Cmd
	r.input, cmd = r.input.Update(msg)
	return r, cmd
}

func (r *Runner) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if r.mode == modeDone {
		switch msg.Type {
		case tea.KeyEnter, tea.KeyEsc, tea.KeyCtrlC:
			return r, tea.Quit
		}
		return r, nil
	}
	switch msg.Type {
	case tea.KeyCtrlC:
		r.abandon()
		return r, tea.Quit
	case tea.KeyCtrlX:
		r.abandon()
		return r, nil
	case tea.KeyTab:
		r.cycleBlock(1)
		return r, nil
	case tea.KeyShiftTab:
		r.cycleBlock(-1)
		return r, nil
	case tea.KeyCtrlN:
		if r.mode == modeBlocks {
			r.advance()
		}
		return r, nil
	case tea.KeyEnter:
		value := r.input.Value()
		r.input.Reset()
		r.enter(value)
		return r, nil
	}
	var cmd tea.Cmd
	r.input, cmd = r.input.Update(msg)
	return r, cmd
}

func (r *Runner) enter(value string) {
	r.err = nil
	value = strings.TrimSpace(value)
	switch r.mode {
	case modeIntensityBefore:
		n, ok := r.parseIntensity(value)
		if !ok {
			return
		}
		if _, err := r.machine.Begin(n); err != nil {
			r.err = err
			return
		}
		r.status = "Comienza la preparación."
	case modeBlocks:
		if value == "" {
			if len(r.blocks()) == 0 {
				r.advance()
			}
			return
		}
		r.submit(r.currentBlockID(), value)
		return
	case modeVowDescription:
		if value == "" {
			r.err = errors.New("describe tu voto")
			return
		}
		r.vow.Description = value
		r.mode = modeVowDuration
		return
	case modeVowDuration:
		days, err := strconv.Atoi(value)
		if err != nil || days < 1 {
			r.err = errors.New("la duración debe ser un número de días mayor que cero")
			return
		}
		r.vow.DurationDays = days
		r.mode = modeVowCategory
		return
	case modeVowCategory:
		r.vow.Category = parseCategory(value)
		if err := r.machine.RecordVow(r.vow); err != nil {
			r.err = err
			return
		}
		r.status = "Voto registrado."
		r.mode = modeIntensityAfter
		return
	case modeIntensityAfter:
		n, ok := r.parseIntensity(value)
		if !ok {
			return
		}
		if _, err := r.machine.Complete(n); err != nil {
			r.err = err
			return
		}
		r.status = "Ritual completado."
		r.done()
		return
	}
	r.syncMode()
}

func (r *Runner) parseIntensity(value string) (int, bool) {
	if value == "" {
		return 0, true
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < ritual.MinIntensity || n > ritual.MaxIntensity {
		r.err = fmt.Errorf("la intensidad va de %d a %d", ritual.MinIntensity, ritual.MaxIntensity)
		return 0, false
	}
	return n, true
}

func (r *Runner) submit(blockID, text string) {
	if blockID == "" {
		return
	}
	v, err := r.machine.Submit(blockID, text)
	if err != nil {
		r.err = err
		return
	}
	r.last = &v
	r.lastID = blockID
	if !v.Success {
		r.status = fmt.Sprintf("%s: %d%% de anclas, faltan %d.", blockID, v.PercentLabel(), len(v.MissingPhrases))
		return
	}
	r.status = fmt.Sprintf("%s validado (%d%%).", blockID, v.PercentLabel())
	if len(r.machine.PendingBlocks()) == 0 {
		r.advance()
		return
	}
	r.selectPending()
}

func (r *Runner) advance() {
	if r.machine.State() == ritual.StateRenewal {
		if pending := r.machine.PendingBlocks(); len(pending) > 0 {
			r.err = fmt.Errorf("faltan bloques por validar: %s", strings.Join(pending, ", "))
			return
		}
		r.mode = modeVowDescription
		return
	}
	res, err := r.machine.Advance()
	if err != nil {
		if len(res.FailedBlocks) > 0 {
			r.err = fmt.Errorf("faltan bloques por validar: %s", strings.Join(res.FailedBlocks, ", "))
		} else {
			r.err = err
		}
		return
	}
	r.last = nil
	r.selected = 0
	r.status = fmt.Sprintf("Fase: %s", res.To.Label())
	r.syncMode()
}

func (r *Runner) abandon() {
	if r.machine.Session().IsFinalized() {
		return
	}
	if _, err := r.machine.Abandon(); err != nil {
		r.err = err
		return
	}
	r.status = "Ritual abandonado. Lo validado queda guardado."
	r.done()
}

func (r *Runner) done() {
	r.mode = modeDone
	r.input.Blur()
	if r.finish == nil {
		s := r.machine.Session()
		r.saved = &s
		return
	}
	s, err := r.finish(r.machine)
	if err != nil {
		r.err = err
		return
	}
	r.saved = &s
}

func (r *Runner) syncMode() {
	switch state := r.machine.State(); {
	case state == ritual.StateIdle:
		r.mode = modeIntensityBefore
	case state.IsTerminal():
		r.mode = modeDone
	case state == ritual.StateRenewal && len(r.blocks()) == 0:
		r.mode = modeVowDescription
	default:
		r.mode = modeBlocks
	}
}

func (r *Runner) blocks() []ritual.Block {
	return r.machine.Definition().Blocks(r.machine.State())
}

func (r *Runner) currentBlockID() string {
	blocks := r.blocks()
	if len(blocks) == 0 {
		return ""
	}
	if r.selected >= len(blocks) {
		r.selected = 0
	}
	return blocks[r.selected].ID
}

func (r *Runner) cycleBlock(step int) {
	n := len(r.blocks())
	if n == 0 {
		return
	}
	r.selected = ((r.selected+step)%n + n) % n
}

func (r *Runner) selectPending() {
	pending := r.machine.PendingBlocks()
	if len(pending) == 0 {
		return
	}
	for i, b := range r.blocks() {
		if b.ID == pending[0] {
			r.selected = i
			return
		}
	}
}

func parseCategory(value string) ritual.VowCategory {
	value = strings.ToLower(strings.TrimSpace(value))
	switch value {
	case "", "custom", "otro", "otra":
		return ritual.VowCustom
	case "presencia":
		return ritual.VowPresence
	case "comunicacion", "comunicación":
		return ritual.VowCommunication
	case "autocuidado":
		return ritual.VowSelfCare
	case "limites", "límites":
		return ritual.VowBoundaries
	}
	return ritual.VowCategory(value)
}

// View renders the current phase.
func (r *Runner) View() string {
	def := r.machine.Definition()
	session := r.machine.Session()
	var b strings.Builder
	b.WriteString(titleStyle.Render(def.Name))
	b.WriteString("\n")
	b.WriteString(phaseStyle.Render(session.State.Label()))
	b.WriteString(mutedStyle.Render("  · sesión " + session.ID))
	b.WriteString("\n\n")

	switch r.mode {
	case modeIntensityBefore:
		b.WriteString(bodyStyle.Render("¿Qué intensidad sientes ahora? (1-10, Enter para omitir)"))
	case modeBlocks:
		r.renderBlocks(&b, session)
	case modeVowDescription:
		b.WriteString(bodyStyle.Render("Escribe el voto que asumes."))
	case modeVowDuration:
		b.WriteString(bodyStyle.Render("¿Durante cuántos días?"))
	case modeVowCategory:
		b.WriteString(bodyStyle.Render("Categoría: presencia, comunicación, autocuidado, límites u otro."))
	case modeIntensityAfter:
		b.WriteString(bodyStyle.Render("¿Qué intensidad sientes al cerrar? (1-10, Enter para omitir)"))
	case modeDone:
		r.renderSummary(&b, session)
	}
	b.WriteString("\n")
	if r.mode != modeDone {
		b.WriteString("\n")
		b.WriteString(r.input.View())
		b.WriteString("\n")
	}
	if r.status != "" {
		b.WriteString("\n")
		b.WriteString(bodyStyle.Render(r.status))
	}
	if r.err != nil {
		b.WriteString("\n")
		b.WriteString(failStyle.Render(r.err.Error()))
	}
	b.WriteString(footerStyle.Render(r.footer()))
	return b.String()
}

func (r *Runner) renderBlocks(b *strings.Builder, session ritual.Session) {
	blocks := r.blocks()
	if len(blocks) == 0 {
		b.WriteString(bodyStyle.Render("Esta fase no tiene bloques. Enter o ctrl+n para continuar."))
		return
	}
	for i, block := range blocks {
		mark := mutedStyle.Render("·")
		if session.Passed(session.State, block.ID) {
			mark = passStyle.Render("✓")
		}
		line := fmt.Sprintf("%s %s", mark, block.Title)
		if i != r.selected {
			b.WriteString(line + "\n")
			continue
		}
		var detail strings.Builder
		detail.WriteString(line)
		if block.Prompt != "" {
			detail.WriteString("\n" + bodyStyle.Render(block.Prompt))
		}
		for _, anchor := range block.Anchors {
			detail.WriteString("\n" + anchorBullet + anchor)
		}
		if r.last != nil && r.lastID == block.ID && !r.last.Success && len(r.last.MissingPhrases) > 0 {
			detail.WriteString("\n" + failStyle.Render("Faltó decir:"))
			for _, phrase := range r.last.MissingPhrases {
				detail.WriteString("\n" + anchorBullet + phrase)
			}
		}
		b.WriteString(selectedBox.Render(detail.String()) + "\n")
	}
}

func (r *Runner) renderSummary(b *strings.Builder, session ritual.Session) {
	passed := 0
	for _, rec := range session.Records {
		if rec.Validation.Success {
			passed++
		}
	}
	fmt.Fprintf(b, "Bloques validados: %d\n", passed)
	if session.Vow != nil {
		fmt.Fprintf(b, "Voto: %s (%d días, %s)\n", session.Vow.Description, session.Vow.DurationDays, session.Vow.Category)
	}
	if session.IntensityBefore != nil && session.IntensityAfter != nil {
		fmt.Fprintf(b, "Intensidad: %d → %d\n", *session.IntensityBefore, *session.IntensityAfter)
	}
}

func (r *Runner) footer() string {
	switch r.mode {
	case modeDone:
		return "enter: salir"
	case modeBlocks:
		return "enter: validar · tab: siguiente bloque · ctrl+n: avanzar fase · ctrl+x: abandonar · ctrl+c: salir"
	default:
		return "enter: confirmar · ctrl+x: abandonar · ctrl+c: salir"
	}
}
