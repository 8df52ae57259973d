// Package browser opens URLs in the user's default browser, best effort.
package browser

import (
	"fmt"
	"os/exec"
	"runtime"
)

// OpenURL launches the platform opener for the given URL. Callers treat a
// failure as "present the URL and code for manual entry", never as fatal.
func OpenURL(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("opening browser: %w", err)
	}
	// Release the child; the browser outlives us.
	go func() {
		_ = cmd.Wait()
	}()
	return nil
}
