package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dotcommander/crew/internal/present"
)

func drainStdin() {
	if present.IsInputTTY() {
		return
	}
	_, _ = io.Copy(io.Discard, os.Stdin)
}

// readStdin returns piped stdin content, or "" on a TTY.
func readStdin() (string, error) {
	if present.IsInputTTY() {
		return "", nil
	}
	content, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimSpace(string(content)), nil
}
