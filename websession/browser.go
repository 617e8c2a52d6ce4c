package websession

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// OpenBrowser opens the URL in the platform's default browser.
func OpenBrowser(targetURL string) error {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "windows":
		cmd = "rundll32"
		args = []string{"url.dll,FileProtocolHandler", targetURL}
	case "darwin":
		cmd = "open"
		args = []string{targetURL}
	case "linux":
		if _, err := exec.LookPath("xdg-open"); err != nil {
			return fmt.Errorf("xdg-open not found in PATH: %w", err)
		}
		cmd = "xdg-open"
		args = []string{targetURL}
	default:
		return fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	return exec.Command(cmd, args...).Start()
}

// HasGUIEnvironment reports whether a GUI session appears to be available.
// On Linux a browser launch without one will silently do nothing; callers
// can use this to decide whether to print the URL instead.
func HasGUIEnvironment() bool {
	if runtime.GOOS != "linux" {
		return true
	}
	for _, envVar := range []string{"DISPLAY", "WAYLAND_DISPLAY", "XDG_SESSION_TYPE"} {
		if os.Getenv(envVar) != "" {
			return true
		}
	}
	return false
}
