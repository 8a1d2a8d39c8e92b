package session

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// ReaderPrompt asks for the two-factor code on out and reads one line from in.
func ReaderPrompt(in io.Reader, out io.Writer) TwoFactorPrompt {
	reader := bufio.NewReader(in)
	return func(ctx context.Context) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		fmt.Fprint(out, "two-factor code: ")
		line, err := reader.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}
}
