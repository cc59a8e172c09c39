package errors

import (
	stderrors "errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/vango-dev/resync/pkg/deps"
	"github.com/vango-dev/resync/pkg/effect"
)

const (
	ansiReset = "\033[0m"
	ansiBold  = "\033[1m"
	ansiRed   = "\033[31m"
	ansiBlue  = "\033[34m"
	ansiCyan  = "\033[36m"
	ansiWhite = "\033[37m"
	ansiGray  = "\033[90m"
)

const (
	indent     = "  "
	textWidth  = 70
	gutterSize = 4
)

// colorEnabled controls whether Format emits ANSI escapes.
var colorEnabled = true

// DisableColors turns off ANSI output in Format.
func DisableColors() {
	colorEnabled = false
}

// EnableColors turns ANSI output back on.
func EnableColors() {
	colorEnabled = true
}

func paint(text string, codes ...string) string {
	if !colorEnabled || len(codes) == 0 {
		return text
	}
	return strings.Join(codes, "") + text + ansiReset
}

// Format renders the error for a terminal: header, cause, dependency
// details, source excerpt, detail, hint, example and doc link.
func (e *Error) Format() string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(e.header())
	b.WriteString("\n\n")

	if e.Wrapped != nil {
		b.WriteString(indent + paint("Cause: ", ansiGray) + e.Wrapped.Error() + "\n\n")
	}
	writeBlock(&b, paint("Dependencies:", ansiCyan), dependencyLines(e.Wrapped))
	e.writeSource(&b)
	if e.Detail != "" {
		for _, line := range wrapText(e.Detail, textWidth) {
			b.WriteString(indent + line + "\n")
		}
		b.WriteString("\n")
	}
	if e.Suggestion != "" {
		b.WriteString(indent + paint("Hint: ", ansiCyan) + e.Suggestion + "\n\n")
	}
	if e.Example != "" {
		writeBlock(&b, paint("Example:", ansiCyan), strings.Split(e.Example, "\n"))
	}
	if e.DocURL != "" {
		b.WriteString(indent + paint("Learn more: ", ansiGray) + paint(e.DocURL, ansiBlue) + "\n")
	}
	return b.String()
}

func (e *Error) header() string {
	if e.Code == "" {
		return paint("ERROR: ", ansiRed, ansiBold) + paint(e.Message, ansiWhite)
	}
	return paint("ERROR ", ansiRed, ansiBold) + paint(e.Code+": ", ansiWhite, ansiBold) + paint(e.Message, ansiWhite)
}

// writeBlock writes a titled block with its lines indented under it.
func writeBlock(b *strings.Builder, title string, lines []string) {
	if len(lines) == 0 {
		return
	}
	b.WriteString(indent + title + "\n")
	for _, line := range lines {
		b.WriteString(indent + indent + line + "\n")
	}
	b.WriteString("\n")
}

// writeSource prints the location and, when known, the surrounding scenario
// lines with the failing one marked.
func (e *Error) writeSource(b *strings.Builder) {
	if e.Location == nil {
		return
	}
	b.WriteString(indent + paint(e.Location.String(), ansiCyan) + "\n\n")
	if len(e.Context) == 0 {
		return
	}
	first := e.Location.Line - len(e.Context)/2
	for i, line := range e.Context {
		n := first + i
		marker := indent
		if n == e.Location.Line {
			marker = paint("> ", ansiRed)
		}
		fmt.Fprintf(b, "%s%s%*d%s%s\n", indent, marker, gutterSize, n, paint(" | ", ansiGray), line)
		if n == e.Location.Line && e.Location.Column > 0 {
			pad := strings.Repeat(" ", len(indent)*2+gutterSize)
			fmt.Fprintf(b, "%s%s%s%s\n", pad, paint(" | ", ansiGray),
				strings.Repeat(" ", e.Location.Column-1), paint("^", ansiRed))
		}
	}
	b.WriteString("\n")
}

// dependencyLines describes the dependency list problem in err's chain, if
// there is one.
func dependencyLines(err error) []string {
	if err == nil {
		return nil
	}
	var arity *deps.ArityError
	if stderrors.As(err, &arity) {
		if arity.PrevShape != arity.NextShape {
			return []string{
				"previous pass: " + arity.PrevShape.String(),
				"this pass:     " + arity.NextShape.String(),
			}
		}
		return []string{
			fmt.Sprintf("previous pass: %d inputs", arity.PrevLen),
			fmt.Sprintf("this pass:     %d inputs", arity.NextLen),
		}
	}
	var unstable *effect.UnstableConstantError
	if stderrors.As(err, &unstable) {
		positions := make([]string, len(unstable.Positions))
		for i, p := range unstable.Positions {
			positions[i] = strconv.Itoa(p)
		}
		return []string{
			"effect:        " + unstable.Effect,
			"stable inputs: " + strings.Join(positions, ", "),
		}
	}
	return nil
}

// FormatCompact returns a compact single-line error format.
func (e *Error) FormatCompact() string {
	var b strings.Builder

	if e.Location != nil {
		b.WriteString(e.Location.String())
		b.WriteString(": ")
	}

	if e.Code != "" {
		b.WriteString(e.Code)
		b.WriteString(": ")
	}

	b.WriteString(e.Message)

	return b.String()
}

// FormatJSON returns the error as a JSON object.
func (e *Error) FormatJSON() string {
	var b strings.Builder
	b.WriteString("{")

	if e.Code != "" {
		b.WriteString(fmt.Sprintf(`"code":%q,`, e.Code))
	}
	b.WriteString(fmt.Sprintf(`"category":%q,`, e.Category))
	b.WriteString(fmt.Sprintf(`"message":%q`, e.Message))

	if e.Detail != "" {
		b.WriteString(fmt.Sprintf(`,"detail":%q`, e.Detail))
	}
	if e.Location != nil {
		b.WriteString(fmt.Sprintf(`,"location":{"file":%q,"line":%d,"column":%d}`,
			e.Location.File, e.Location.Line, e.Location.Column))
	}
	if e.Suggestion != "" {
		b.WriteString(fmt.Sprintf(`,"suggestion":%q`, e.Suggestion))
	}
	if e.DocURL != "" {
		b.WriteString(fmt.Sprintf(`,"docUrl":%q`, e.DocURL))
	}
	if e.Wrapped != nil {
		b.WriteString(fmt.Sprintf(`,"cause":%q`, e.Wrapped.Error()))
	}

	b.WriteString("}")
	return b.String()
}

// wrapText wraps text to the specified width.
func wrapText(text string, width int) []string {
	if text == "" {
		return nil
	}
	if len(text) <= width {
		return []string{text}
	}

	var lines []string
	words := strings.Fields(text)
	var current strings.Builder

	for _, word := range words {
		if current.Len()+len(word)+1 > width {
			if current.Len() > 0 {
				lines = append(lines, current.String())
				current.Reset()
			}
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(word)
	}

	if current.Len() > 0 {
		lines = append(lines, current.String())
	}

	return lines
}

// PrintError prints a formatted error to stderr. Errors without a code are
// classified first.
func PrintError(err error) {
	fmt.Fprint(os.Stderr, Resolve(err).Format())
}

