package connectors

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/sitincloud/owlyshield-predict/model"
)

// DesktopNotifier is the C9 user-notification sink. The actual toast/HTML
// report rendering is out of scope (§1: "Presentation/notification sinks
// ... invoked through narrow interfaces") so this shells out to the host's
// notification command, exactly the narrow-contract shape spec.md asks for:
// one line in, the platform handles presentation.
type DesktopNotifier struct {
	command string // e.g. "notify-send" on Linux; empty disables the sink
}

// NewDesktopNotifier creates a sink that invokes command with a summary and
// body argument per notification. An empty command makes the sink inert.
func NewDesktopNotifier(command string) *DesktopNotifier {
	return &DesktopNotifier{command: command}
}

func (d *DesktopNotifier) Name() string { return "desktop-notify" }

func (d *DesktopNotifier) OnStartup(cfg map[string]string) error { return nil }

func (d *DesktopNotifier) OnTimestep(view model.FamilyView, step model.Timestep) error { return nil }

func (d *DesktopNotifier) OnKill(view model.FamilyView, score float32) error {
	if d.command == "" {
		return nil
	}
	summary := "Owlyshield-Predict: threat neutralized"
	body := fmt.Sprintf("%s (gid %d) scored %.2f and was %s", view.AppName, view.FamilyID, score, view.State)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, d.command, summary, body)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("desktop-notify: %w", err)
	}
	return nil
}
