package app

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// confirm asks a yes/no question, then requires phrase to be typed exactly.
// Anything else, including end of input, declines.
func confirm(in *bufio.Reader, out io.Writer, action, phrase string) (bool, error) {
	fmt.Fprintf(out, "This will %s. Continue? [y/N]: ", action)
	answer, err := readLine(in)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
	default:
		fmt.Fprintln(out, "Cancelled.")
		return false, nil
	}

	fmt.Fprintf(out, "Type %q to confirm: ", phrase)
	typed, err := readLine(in)
	if err != nil {
		return false, err
	}
	if typed != phrase {
		fmt.Fprintln(out, "Confirmation phrase did not match. Cancelled.")
		return false, nil
	}
	return true, nil
}

func readLine(in *bufio.Reader) (string, error) {
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read confirmation: %w", err)
	}
	return strings.TrimSpace(line), nil
}
