package colorize

import (
	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/styles"
)

func init() {
	// Register our custom IL style on package initialization
	_ = ILDark
}

// ILDark is a custom style for IL disassembly output
var ILDark = styles.Register(chroma.MustNewStyle("il-dark", chroma.StyleEntries{
	chroma.Text:       "#D4D4D4",    // Default light gray text
	chroma.Background: "bg:#1e1e1e", // Dark background
	chroma.Comment:    "#6A9955",    // Green comments

	// Directives (.class, .method, .assembly) come through as keywords
	chroma.Keyword:       "#569CD6",
	chroma.KeywordPseudo: "#569CD6",
	chroma.Name:          "#D4D4D4",
	chroma.NameBuiltin:   "#DCDCAA",
	chroma.NameFunction:  "#DCDCAA",

	// IL_xxxx labels in gold
	chroma.NameLabel: "#FFD700",

	// Numbers
	chroma.LiteralNumber:        "#B5CEA8",
	chroma.LiteralNumberHex:     "#B5CEA8",
	chroma.LiteralNumberInteger: "#B5CEA8",
	chroma.LiteralNumberFloat:   "#B5CEA8",

	// Strings
	chroma.String: "#CE9178",

	chroma.Operator:    "#D4D4D4",
	chroma.Punctuation: "#D4D4D4",
}))
