// Package safety decides whether a model-suggested command needs explicit
// confirmation before it runs.
package safety

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/llamacli/llamacli/internal/render"
	"github.com/samber/lo"
)

// Denylist holds the substrings that mark a command as dangerous.
// Matching is plain case-sensitive containment, so "format" matches "rm".
var Denylist = []string{"rm", "rmdir", "sudo rm"}

// Matches returns the denylist entries contained in command, in denylist
// order.
func Matches(command string) []string {
	return lo.Filter(Denylist, func(pattern string, _ int) bool {
		return strings.Contains(command, pattern)
	})
}

// Prompt builds the confirmation question for the matched patterns.
func Prompt(matches []string) string {
	quoted := lo.Map(matches, func(m string, _ int) string {
		return "'" + m + "'"
	})
	return fmt.Sprintf(
		"The command contains a potentially dangerous operation (%s). Are you sure you want to execute it? (y/n): ",
		strings.Join(quoted, ", "),
	)
}

// Confirm asks the user to approve a dangerous command. It reads one line
// from in and approves only when that line is exactly "y". Reaching EOF
// without an answer is a refusal.
//
// The line is read one byte at a time so that input following the answer
// stays in in for the command that runs next. When ctx is cancelled before
// an answer arrives, Confirm returns ctx.Err() and the pending read is
// abandoned.
func Confirm(ctx context.Context, in io.Reader, out io.Writer, matches []string) (bool, error) {
	fmt.Fprint(out, render.WarningStyle.Render(Prompt(matches)))

	type result struct {
		line string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		line, err := readLine(in)
		done <- result{line, err}
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case r := <-done:
		if r.err != nil && !errors.Is(r.err, io.EOF) {
			return false, fmt.Errorf("failed to read confirmation: %w", r.err)
		}
		return r.line == "y", nil
	}
}

// readLine reads up to and including the next newline and returns the line
// without its terminator.
func readLine(in io.Reader) (string, error) {
	var line []byte
	b := make([]byte, 1)
	for {
		n, err := in.Read(b)
		if n > 0 {
			if b[0] == '\n' {
				break
			}
			line = append(line, b[0])
		}
		if err != nil {
			return strings.TrimSuffix(string(line), "\r"), err
		}
	}
	return strings.TrimSuffix(string(line), "\r"), nil
}
