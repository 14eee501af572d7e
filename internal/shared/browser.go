package shared

import (
	"fmt"
	"os/exec"
	"runtime"
)

var currentOS = func() string { return runtime.GOOS }

// OpenBrowser launches the user's default browser at url. Used by the
// OAuth flow; callers should print the URL as a fallback when this
// fails.
func OpenBrowser(url string) error {
	launchers := map[string][]string{
		"darwin":  {"open", url},
		"linux":   {"xdg-open", url},
		"windows": {"cmd", "/c", "start", url},
	}

	os := currentOS()
	argv, ok := launchers[os]
	if !ok {
		return fmt.Errorf("no browser launcher for platform %s", os)
	}

	if err := exec.Command(argv[0], argv[1:]...).Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}

	return nil
}
