//go:build darwin

package notify

import (
	"context"
	"fmt"
	"os/exec"
)

func desktopNotify(ctx context.Context, subject, body string) error {
	script := fmt.Sprintf("display notification %q with title %q", body, subject)
	if out, err := exec.CommandContext(ctx, "osascript", "-e", script).CombinedOutput(); err != nil {
		return fmt.Errorf("osascript failed: %s: %w", out, err)
	}
	return nil
}
