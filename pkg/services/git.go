package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrNoGit is returned by Diff when no git binary is on PATH.
var ErrNoGit = errors.New("git not found in PATH")

// Diff returns a unified diff from current to normalized text of one content
// file, labelled with name. It is empty when the two are equal.
func Diff(ctx context.Context, name string, current, normalized []byte) (string, error) {
	if string(current) == string(normalized) {
		return "", nil
	}
	gitPath, err := exec.LookPath("git")
	if err != nil {
		return "", ErrNoGit
	}

	dir, err := os.MkdirTemp("", "hugo-content-diff-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)

	f1Path := filepath.Join(dir, "a")
	f2Path := filepath.Join(dir, "b")
	if err := os.WriteFile(f1Path, current, 0600); err != nil {
		return "", err
	}
	if err := os.WriteFile(f2Path, normalized, 0600); err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, gitPath, "diff", "--no-index", "--no-color", "--", f1Path, f2Path)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	// git diff exits 1 when the files differ
	if err != nil && cmd.ProcessState != nil && cmd.ProcessState.ExitCode() == 1 {
		return relabel(string(output), f1Path, f2Path, name), nil
	}
	if err != nil {
		return "", fmt.Errorf("git diff: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return "", nil
}

func relabel(diff, f1Path, f2Path, name string) string {
	// git prints temp paths without the leading slash
	for _, p := range []string{f1Path, f2Path} {
		diff = strings.ReplaceAll(diff, "a/"+strings.TrimPrefix(filepath.ToSlash(p), "/"), "a/"+name)
		diff = strings.ReplaceAll(diff, "b/"+strings.TrimPrefix(filepath.ToSlash(p), "/"), "b/"+name)
	}
	lines := strings.SplitAfter(diff, "\n")
	out := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(line, "index ") {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "")
}
