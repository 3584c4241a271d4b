// Package colorize applies terminal syntax highlighting to rendered
// IL text. Highlighting is best effort: any failure falls back to
// plain text, and ILDASM_NO_COLOR disables it entirely.
package colorize

import (
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// getILLexer returns a lexer suited to IL-like assembly text with
// fallbacks. Chroma has no dedicated CIL lexer, so we degrade to
// lexers that at least tokenize directives, numbers and strings.
func getILLexer() chroma.Lexer {
	candidates := []string{"cil", "csharp", "nasm", "gas"}
	for _, name := range candidates {
		if lexer := lexers.Get(name); lexer != nil {
			return lexer
		}
	}
	return nil
}

// getILStyle returns the IL style with fallbacks. ILDASM_STYLE
// overrides the default candidate order.
func getILStyle() *chroma.Style {
	candidates := []string{"il-dark", "dracula", "monokai"}
	if name := os.Getenv("ILDASM_STYLE"); name != "" {
		candidates = append([]string{name}, candidates...)
	}
	for _, name := range candidates {
		if style := styles.Get(name); style != nil {
			return style
		}
	}
	return styles.Fallback
}

// getTerminalFormatter returns an appropriate terminal formatter.
func getTerminalFormatter() chroma.Formatter {
	candidates := []string{"terminal16m", "terminal256"}
	for _, name := range candidates {
		if formatter := formatters.Get(name); formatter != nil {
			return formatter
		}
	}
	return formatters.Fallback
}

// Disassembly applies syntax highlighting to a block of IL text.
func Disassembly(code string) (string, error) {
	if os.Getenv("ILDASM_NO_COLOR") != "" {
		return code, nil
	}

	lexer := getILLexer()
	if lexer == nil {
		return code, nil
	}

	// Make sure our custom style is registered.
	_ = ILDark

	style := getILStyle()
	formatter := getTerminalFormatter()

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code, err
	}

	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code, err
	}
	return buf.String(), nil
}
