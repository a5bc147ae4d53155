package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jakechorley/shelter-shifts/pkg/core/notify"
	"github.com/jakechorley/shelter-shifts/pkg/core/services"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorDim    = "\033[2m"
)

// askYesNo prints prompt and reads a y/n answer. Anything but y/yes/s/sí is no.
func askYesNo(in *bufio.Reader, out io.Writer, prompt string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N] ", prompt)
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes", "s", "si", "sí":
		return true, nil
	}
	return false, nil
}

// askDestructive requires the operator to type the confirmation word exactly
func askDestructive(in *bufio.Reader, out io.Writer, prompt, word string) (bool, error) {
	fmt.Fprintf(out, "%s%s%s\nType %q to confirm: ", colorRed, prompt, colorReset, word)
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}
	return strings.TrimSpace(line) == word, nil
}

// printOutcome shows the notice attached to an assignment outcome
func printOutcome(out io.Writer, o *services.Outcome) {
	if o == nil {
		return
	}
	if o.Notice == nil {
		switch o.Status {
		case services.StatusCancelled:
			fmt.Fprintf(out, "%sCancelled, nothing changed.%s\n", colorDim, colorReset)
		case services.StatusRejected:
			fmt.Fprintf(out, "%s✗ %v%s\n", colorYellow, o.Reason, colorReset)
		}
		return
	}

	color := colorReset
	mark := "•"
	switch o.Notice.Severity {
	case notify.Success:
		color, mark = colorGreen, "✓"
	case notify.Warning:
		color, mark = colorYellow, "⚠"
	case notify.Error:
		color, mark = colorRed, "✗"
	}
	fmt.Fprintf(out, "%s%s %s%s\n", color, mark, o.Notice.Text, colorReset)
}
