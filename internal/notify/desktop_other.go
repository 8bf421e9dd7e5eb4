//go:build !darwin

package notify

import (
	"context"
	"fmt"
	"os/exec"
)

func desktopNotify(ctx context.Context, subject, body string) error {
	path, err := exec.LookPath("notify-send")
	if err != nil {
		return fmt.Errorf("no desktop notifier available: %w", err)
	}
	if out, err := exec.CommandContext(ctx, path, subject, body).CombinedOutput(); err != nil {
		return fmt.Errorf("notify-send failed: %s: %w", out, err)
	}
	return nil
}
