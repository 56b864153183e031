package actions

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/normanking/jarvis/internal/intent"
	"github.com/normanking/jarvis/internal/logging"
)

// Launcher starts the external program behind a launch or power action.
type Launcher interface {
	Launch(ctx context.Context, action intent.ActionID, argv []string) error
}

// LogLauncher only records what would have been run. It is the default so
// that a fresh install never powers off the machine by accident.
type LogLauncher struct {
	Log *logging.Logger
}

// Launch logs argv.
func (l LogLauncher) Launch(_ context.Context, action intent.ActionID, argv []string) error {
	log := l.Log
	if log == nil {
		log = logging.Global()
	}
	log.Info("[dry-run] %s: %s", action, strings.Join(argv, " "))
	return nil
}

// ExecLauncher starts argv as a detached child process and does not wait for
// it to finish.
type ExecLauncher struct {
	Log *logging.Logger
}

// Launch starts argv[0] with the remaining arguments.
func (l ExecLauncher) Launch(_ context.Context, action intent.ActionID, argv []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("no command configured for %s", action)
	}

	// Not CommandContext: the program must outlive the request.
	cmd := exec.Command(argv[0], argv[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", argv[0], err)
	}
	go func() {
		if err := cmd.Wait(); err != nil && l.Log != nil {
			l.Log.Debug("%s exited: %v", argv[0], err)
		}
	}()
	return nil
}

// DefaultCommands returns the launch table for goos.
func DefaultCommands(goos string) map[intent.ActionID][]string {
	switch goos {
	case "windows":
		return map[intent.ActionID][]string{
			intent.ActionOpenBrowser:      {"cmd", "/c", "start", "chrome"},
			intent.ActionOpenCamera:       {"cmd", "/c", "start", "microsoft.windows.camera:"},
			intent.ActionOpenFileExplorer: {"explorer"},
			intent.ActionShutdown:         {"shutdown", "/s", "/t", "10"},
			intent.ActionRestart:          {"shutdown", "/r", "/t", "10"},
		}
	case "darwin":
		return map[intent.ActionID][]string{
			intent.ActionOpenBrowser:      {"open", "-a", "Google Chrome"},
			intent.ActionOpenCamera:       {"open", "-a", "Photo Booth"},
			intent.ActionOpenFileExplorer: {"open", "."},
			intent.ActionShutdown:         {"sudo", "shutdown", "-h", "+1"},
			intent.ActionRestart:          {"sudo", "shutdown", "-r", "+1"},
		}
	default:
		return map[intent.ActionID][]string{
			intent.ActionOpenBrowser:      {"google-chrome"},
			intent.ActionOpenCamera:       {"cheese"},
			intent.ActionOpenFileExplorer: {"nautilus"},
			intent.ActionShutdown:         {"sudo", "shutdown", "-h", "+1"},
			intent.ActionRestart:          {"sudo", "reboot"},
		}
	}
}

// ResolveCommands overlays configured argv lists on the defaults for the
// running OS. Unknown action names are rejected.
func ResolveCommands(overrides map[string][]string) (map[intent.ActionID][]string, error) {
	cmds := DefaultCommands(runtime.GOOS)
	for name, argv := range overrides {
		id, err := intent.ParseActionID(name)
		if err != nil {
			return nil, fmt.Errorf("actions.commands: %w", err)
		}
		if len(argv) == 0 {
			return nil, fmt.Errorf("actions.commands.%s: empty command", name)
		}
		cmds[id] = append([]string(nil), argv...)
	}
	return cmds, nil
}
