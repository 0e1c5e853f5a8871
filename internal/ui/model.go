// ABOUTME: Bubbletea model for player TUI
// ABOUTME: Defines application state, key handling and rendering
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/Resonate-Protocol/relay-go/pkg/relay"
	tea "github.com/charmbracelet/bubbletea"
)

// scrubStep is how far one arrow press moves the pending seek target
const scrubStep = 5000

// Model represents the TUI state
type Model struct {
	// Connection
	connected  bool
	serverName string
	mode       string

	// Stream
	sampleRate int
	channels   int

	// Playback
	state      string
	durationMs int64
	positionMs int64
	scrubbing  bool
	scrubMs    int64
	volume     int
	muted      bool
	ended      bool
	errText    string

	// Stats
	stats relay.Stats

	// Debug
	showDebug bool

	// Dimensions
	width  int
	height int

	controls *Controls
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	case DurationMsg:
		m.durationMs = msg.Ms
	case ProgressMsg:
		if !m.scrubbing {
			m.positionMs = msg.Ms
		}
	case EndedMsg:
		m.ended = true
		m.state = relay.StateStopped.String()
		if msg.Err != nil {
			m.errText = msg.Err.Error()
		}
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := ""
	s += m.renderHeader()
	s += m.renderStreamInfo()
	s += m.renderProgress()
	s += m.renderControls()
	s += m.renderStats()

	if m.showDebug {
		s += m.renderDebug()
	}

	s += m.renderHelp()

	return s
}

// renderHeader renders connection status
func (m Model) renderHeader() string {
	connStatus := "Disconnected"
	if m.connected {
		connStatus = fmt.Sprintf("Connected to %s (%s)", m.serverName, m.mode)
	}
	if m.ended {
		connStatus = "Stream ended"
	}

	s := fmt.Sprintf(`┌─ Relay Player ───────────────────────────────────────┐
│ Status: %-45s │
`, truncate(connStatus, 45))
	if m.errText != "" {
		s += fmt.Sprintf("│ Error:  %-45s │\n", truncate(m.errText, 45))
	}
	s += "├──────────────────────────────────────────────────────┤\n"
	return s
}

// renderStreamInfo renders the negotiated format
func (m Model) renderStreamInfo() string {
	if m.sampleRate == 0 {
		return "│ Waiting for stream                                   │\n"
	}

	return fmt.Sprintf("│ Format: PCM %dHz %s 16-bit%-22s │\n│ State:  %-45s │\n",
		m.sampleRate, channelName(m.channels), "", m.state)
}

// renderProgress renders position and duration
func (m Model) renderProgress() string {
	pos := m.positionMs
	label := ""
	if m.scrubbing {
		pos = m.scrubMs
		label = " (seek)"
	}

	if m.durationMs <= 0 {
		return fmt.Sprintf("│ Position: %-43s │\n", formatMs(pos)+label)
	}

	bar := renderBar(int(min(pos, m.durationMs)/1000), int(m.durationMs/1000), 24)
	return fmt.Sprintf("│ [%s] %s / %s%-*s │\n",
		bar, formatMs(pos), formatMs(m.durationMs), 15-len(label), label)
}

// renderControls renders volume
func (m Model) renderControls() string {
	muteIcon := ""
	if m.muted {
		muteIcon = " (muted)"
	}

	volumeBar := renderBar(m.volume, 100, 10)

	return fmt.Sprintf("│ Volume: [%s] %3d%%%-*s │\n",
		volumeBar, m.volume, 29, muteIcon)
}

// renderStats renders playback statistics
func (m Model) renderStats() string {
	if m.mode == "tcp" {
		return fmt.Sprintf(`├──────────────────────────────────────────────────────┤
│ Stats:  RX: %-10s Written: %-10d Cmds: %-5d │
`, formatBytes(m.stats.BytesReceived), m.stats.FramesWritten, m.stats.CommandsSent)
	}
	return fmt.Sprintf(`├──────────────────────────────────────────────────────┤
│ Stats:  RX: %-6d Played: %-6d Silence: %-6d     │
│         Late: %-5d Buffer: %-5d                     │
`, m.stats.PacketsReceived, m.stats.PacketsPlayed, m.stats.SilenceBlocks,
		m.stats.StaleDiscarded, m.stats.BufferDepth)
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	if m.mode == "tcp" {
		return `│ space:Pause ←/→:Scrub enter:Seek ↑/↓:Vol m:Mute q:Quit│
└──────────────────────────────────────────────────────┘
`
	}
	return `│ ↑/↓:Volume  m:Mute  d:Debug  q:Quit                  │
└──────────────────────────────────────────────────────┘
`
}

// renderDebug renders debug information
func (m Model) renderDebug() string {
	return fmt.Sprintf(`│ DEBUG:                                               │
│   Frames played: %-10d Malformed: %-10d     │
│   Commands dropped: %-10d                       │
`, m.stats.FramesPlayed, m.stats.Malformed, m.stats.CommandsDropped)
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.controls.quit()
		return m, tea.Quit
	case "up":
		m.volume = clampVolume(m.volume + 5)
		m.controls.send(ControlMsg{Action: ActionVolume, Volume: m.volume})
	case "down":
		m.volume = clampVolume(m.volume - 5)
		m.controls.send(ControlMsg{Action: ActionVolume, Volume: m.volume})
	case "m":
		m.muted = !m.muted
		m.controls.send(ControlMsg{Action: ActionMute, Muted: m.muted})
	case "d":
		m.showDebug = !m.showDebug
	}

	if m.mode != "tcp" || m.ended {
		return m, nil
	}

	switch msg.String() {
	case " ", "space":
		m.controls.send(ControlMsg{Action: ActionTogglePause})
	case "left":
		m.scrub(-scrubStep)
	case "right":
		m.scrub(scrubStep)
	case "enter":
		if m.scrubbing {
			m.scrubbing = false
			m.positionMs = m.scrubMs
			m.controls.send(ControlMsg{Action: ActionSeek, Ms: m.scrubMs})
			m.controls.send(ControlMsg{Action: ActionScrub, Scrubbing: false})
		}
	case "esc":
		if m.scrubbing {
			m.scrubbing = false
			m.controls.send(ControlMsg{Action: ActionScrub, Scrubbing: false})
		}
	}

	return m, nil
}

// scrub moves the pending seek target, entering scrub mode on first use
func (m *Model) scrub(deltaMs int64) {
	if !m.scrubbing {
		m.scrubbing = true
		m.scrubMs = m.positionMs
		m.controls.send(ControlMsg{Action: ActionScrub, Scrubbing: true})
	}

	m.scrubMs += deltaMs
	if m.scrubMs < 0 {
		m.scrubMs = 0
	}
	if m.durationMs > 0 && m.scrubMs > m.durationMs {
		m.scrubMs = m.durationMs
	}
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Connected != nil {
		m.connected = *msg.Connected
	}
	if msg.ServerName != "" {
		m.serverName = msg.ServerName
	}
	if msg.Mode != "" {
		m.mode = msg.Mode
	}
	if msg.SampleRate != 0 {
		m.sampleRate = msg.SampleRate
		m.channels = msg.Channels
	}
	if msg.State != "" && !m.ended {
		m.state = msg.State
	}
	if msg.Volume != 0 {
		m.volume = msg.Volume
	}
	if msg.Stats != nil {
		m.stats = *msg.Stats
	}
}

// StatusMsg updates TUI state
type StatusMsg struct {
	Connected  *bool
	ServerName string
	Mode       string
	SampleRate int
	Channels   int
	State      string
	Volume     int
	Stats      *relay.Stats
}

// DurationMsg carries the stream duration once known
type DurationMsg struct {
	Ms int64
}

// ProgressMsg carries the current playback position
type ProgressMsg struct {
	Ms int64
}

// EndedMsg reports that the session is over
type EndedMsg struct {
	Err error
}

// Utility functions
func renderBar(value, max, width int) string {
	if max <= 0 {
		return strings.Repeat("░", width)
	}
	filled := (value * width) / max
	if filled > width {
		filled = width
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

func channelName(channels int) string {
	if channels == 1 {
		return "Mono"
	}
	return "Stereo"
}

func clampVolume(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// formatMs renders milliseconds as m:ss
func formatMs(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	minutes := int(d / time.Minute)
	seconds := int((d % time.Minute) / time.Second)
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1fMB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1fKB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%dB", n)
	}
}
