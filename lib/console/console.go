// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package console writes relayed application output to the local
// terminal and builds the process logger. Standard output is copied
// verbatim; standard error is colored when the destination supports it.
package console

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/bureau-foundation/qmlrun/runcontrol"
)

// Color modes accepted by [ParseColorMode].
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// ColorModes returns every mode [ParseColorMode] accepts.
func ColorModes() []string {
	return []string{ColorAuto, ColorAlways, ColorNever}
}

// stderrColor is bright red in the 16-color palette.
const stderrColor = lipgloss.Color("9")

// ParseColorMode resolves mode against out. "auto" colors only when out
// is a terminal.
func ParseColorMode(mode string, out io.Writer) (bool, error) {
	switch mode {
	case ColorAlways:
		return true, nil
	case ColorNever:
		return false, nil
	case ColorAuto, "":
		return isTerminal(out), nil
	default:
		return false, fmt.Errorf("unknown color mode %q (want auto, always, or never)", mode)
	}
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}

// Sink is a runcontrol.MessageSink that writes stdout-tagged text to one
// writer and stderr-tagged text to another. Text is written as received:
// no newline is added, and partial lines stay partial.
type Sink struct {
	mu     sync.Mutex
	stdout io.Writer
	stderr io.Writer

	// styled is false when stderr text is copied without escapes.
	styled     bool
	errorStyle lipgloss.Style
}

var _ runcontrol.MessageSink = (*Sink)(nil)

// NewSink returns a Sink writing to stdout and stderr. When color is
// true, stderr text is rendered in red with a forced ANSI profile.
func NewSink(stdout, stderr io.Writer, color bool) *Sink {
	sink := &Sink{stdout: stdout, stderr: stderr, styled: color}
	if color {
		// SetColorProfile is needed as well: the renderer otherwise
		// re-detects the profile from the writer and finds no terminal.
		renderer := lipgloss.NewRenderer(stderr, termenv.WithProfile(termenv.ANSI256))
		renderer.SetColorProfile(termenv.ANSI256)
		sink.errorStyle = renderer.NewStyle().
			Foreground(stderrColor).
			TabWidth(lipgloss.NoTabConversion)
	}
	return sink
}

// AppendMessage writes text to the writer for stream. Write errors are
// dropped: the console has nowhere to report them.
func (s *Sink) AppendMessage(text string, stream runcontrol.Stream) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stream == runcontrol.StreamStderr {
		if s.styled {
			text = s.renderLines(text)
		}
		io.WriteString(s.stderr, text)
		return
	}
	io.WriteString(s.stdout, text)
}

// renderLines styles each line separately. Rendering the whole block at
// once would pad every line to the width of the longest one.
func (s *Sink) renderLines(text string) string {
	var builder strings.Builder
	for line := range strings.SplitAfterSeq(text, "\n") {
		body, ending := splitLineEnding(line)
		if body != "" {
			builder.WriteString(s.errorStyle.Render(body))
		}
		builder.WriteString(ending)
	}
	return builder.String()
}

func splitLineEnding(line string) (body, ending string) {
	for _, suffix := range []string{"\r\n", "\n", "\r"} {
		if trimmed, ok := strings.CutSuffix(line, suffix); ok {
			return trimmed, suffix
		}
	}
	return line, ""
}
