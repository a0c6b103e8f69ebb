package internal

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// HDiffPatcher applies an hdiff delta to src and writes the result to out.
type HDiffPatcher interface {
	Patch(ctx context.Context, src, patch, out string) error
}

// hpatchzSuccess is printed by hpatchz on stdout once the output is written.
const hpatchzSuccess = "patch ok!"

// Hpatchz runs the hpatchz binary.
type Hpatchz struct {
	Path string
}

func NewHpatchz(path string) *Hpatchz {
	if path == "" {
		path = "hpatchz"
	}
	return &Hpatchz{Path: path}
}

func (h *Hpatchz) LogName() string {
	return "hpatchz"
}

func (h *Hpatchz) Patch(ctx context.Context, src, patch, out string) error {
	cmd := exec.CommandContext(ctx, h.Path, "-f", src, patch, out)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	PushLogDebug(h, fmt.Sprintf("Running %s -f %s %s %s", h.Path, src, patch, out))
	if err := cmd.Run(); err != nil {
		return newPatchingError(fmt.Sprintf("%s failed: %s", h.Path, strings.TrimSpace(stderr.String())), err)
	}
	if !strings.Contains(stdout.String(), hpatchzSuccess) {
		return newPatchingError(fmt.Sprintf("%s did not report success: %s", h.Path, strings.TrimSpace(stdout.String())), nil)
	}
	return nil
}
