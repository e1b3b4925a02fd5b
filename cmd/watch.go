package cmd

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/sitincloud/owlyshield-predict/config"
	"github.com/sitincloud/owlyshield-predict/ui"
)

// RunWatch launches the live terminal view, polling a daemon already
// running on cfg.RPCAddr. It does not start a daemon of its own.
func RunWatch(cfg config.Config) error {
	m := ui.NewModel(cfg.RPCAddr)
	p := tea.NewProgram(m)
	_, err := p.Run()
	return err
}
