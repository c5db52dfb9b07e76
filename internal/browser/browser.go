// Package browser opens the X authorization page in the user's default browser
// during CLI login.
package browser

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"

	log "github.com/sirupsen/logrus"
	"github.com/skratchdot/open-golang/open"
)

// openFunc and startFunc are replaced in tests.
var (
	openFunc  = open.Run
	startFunc = func(cmd *exec.Cmd) error { return cmd.Start() }
	lookPath  = exec.LookPath
)

// linuxBrowsers is tried in order when open-golang fails on Linux.
var linuxBrowsers = []string{"xdg-open", "x-www-browser", "www-browser", "firefox", "chromium", "google-chrome"}

// OpenURL opens url in the default web browser. It tries open-golang first
// and falls back to platform commands.
func OpenURL(url string) error {
	err := openFunc(url)
	if err == nil {
		log.Debug("opened authorization page with open-golang")
		return nil
	}
	log.Debugf("open-golang failed: %v, trying platform-specific commands", err)
	return openURLPlatformSpecific(runtime.GOOS, url)
}

// Available reports whether a browser can plausibly be launched, so the CLI
// can go straight to printing the URL on headless machines.
func Available() bool {
	switch runtime.GOOS {
	case "darwin", "windows":
		return true
	case "linux":
		if os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == "" {
			return false
		}
		for _, b := range linuxBrowsers {
			if _, err := lookPath(b); err == nil {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func openURLPlatformSpecific(goos, url string) error {
	var cmd *exec.Cmd

	switch goos {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "linux":
		for _, b := range linuxBrowsers {
			if path, err := lookPath(b); err == nil {
				cmd = exec.Command(path, url)
				break
			}
		}
		if cmd == nil {
			return fmt.Errorf("no suitable browser found on Linux system")
		}
	default:
		return fmt.Errorf("unsupported operating system: %s", goos)
	}

	if err := startFunc(cmd); err != nil {
		return fmt.Errorf("failed to start browser command: %w", err)
	}
	log.Debugf("opened authorization page with %s", cmd.Path)
	return nil
}
