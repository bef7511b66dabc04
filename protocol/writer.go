package protocol

import (
	"fmt"
	"io"
)

// WriteCommand encodes and writes a client command frame.
func WriteCommand(w io.Writer, cmd Command) error {
	_, err := w.Write(cmd.Encode())
	return err
}

// WriteOK writes a bare "<seq> OK\n" response with no data section.
func WriteOK(w io.Writer, seq uint32) error {
	_, err := fmt.Fprintf(w, "%d %s\n", seq, OK)
	return err
}

// WriteOKLines writes an OK response whose data section is the given lines,
// one per line.
func WriteOKLines(w io.Writer, seq uint32, lines ...string) error {
	if len(lines) == 0 {
		return WriteOK(w, seq)
	}

	if _, err := fmt.Fprintf(w, "%d %s\n", seq, OK); err != nil {
		return err
	}

	for _, line := range lines {
		if _, err := fmt.Fprintf(w, "%s\n", line); err != nil {
			return err
		}
	}

	return nil
}

// WriteError writes an ERROR response carrying a human-readable message.
func WriteError(w io.Writer, seq uint32, message string) error {
	_, err := fmt.Fprintf(w, "%d %s\n%s\n", seq, ERROR, message)
	return err
}
