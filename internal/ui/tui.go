// ABOUTME: TUI initialization and control
// ABOUTME: Wraps bubbletea program and the channels carrying user actions
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Action is a user request raised from the TUI
type Action int

const (
	ActionTogglePause Action = iota
	ActionSeek
	ActionScrub
	ActionVolume
	ActionMute
)

// ControlMsg carries one user action to the player
type ControlMsg struct {
	Action    Action
	Ms        int64 // ActionSeek
	Scrubbing bool  // ActionScrub
	Volume    int   // ActionVolume
	Muted     bool  // ActionMute
}

// Controls holds channels for user action communication
type Controls struct {
	Changes chan ControlMsg
	Quit    chan struct{}
}

// NewControls creates a new control handler
func NewControls() *Controls {
	return &Controls{
		Changes: make(chan ControlMsg, 10),
		Quit:    make(chan struct{}, 1),
	}
}

// send never blocks the UI; a full channel drops the action
func (c *Controls) send(msg ControlMsg) {
	if c == nil {
		return
	}
	select {
	case c.Changes <- msg:
	default:
	}
}

func (c *Controls) quit() {
	if c == nil {
		return
	}
	select {
	case c.Quit <- struct{}{}:
	default:
	}
}

// NewModel creates a new TUI model
func NewModel(controls *Controls) Model {
	return Model{
		volume:   100,
		state:    "idle",
		controls: controls,
	}
}

// Run creates the TUI program; the caller starts it with Run
func Run(controls *Controls) (*tea.Program, error) {
	p := tea.NewProgram(NewModel(controls), tea.WithAltScreen())
	return p, nil
}
