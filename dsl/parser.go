package dsl

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"golang.org/x/text/unicode/norm"
)

var (
	dslLexer = lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
		{Name: "BlockComment", Pattern: `/\*[^*]*\*+(?:[^/*][^*]*\*+)*/`},
		{Name: "LineComment", Pattern: `//[^\n]*`},
		{Name: "Color", Pattern: `#(?:[0-9A-Fa-f]{6}|[0-9A-Fa-f]{3})\b`},
		{Name: "HashComment", Pattern: `#[^\n]*`},
		{Name: "Number", Pattern: `(?:\d+\.\d+|\d+)(?:pt|mm|cm|in|x)?`},
		{Name: "String", Pattern: `"(?:\\.|[^"])*"`},
		{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_-]*`},
		{Name: "Symbol", Pattern: `[][,;:]`},
		{Name: "LBrace", Pattern: `{`},
		{Name: "RBrace", Pattern: `}`},
	})

	documentParser = participle.MustBuild[Document](
		participle.Lexer(dslLexer),
		participle.Elide("Whitespace", "LineComment", "BlockComment", "HashComment"),
	)
)

// Document is the root AST node of a manuscript file:
//
//	manuscript "Title" {
//	  meta { author: "Ada" }
//	  body {
//	    para { "Plain, " strong "bold" note "A footnote." }
//	  }
//	}
type Document struct {
	Pos      lexer.Position `parser:"" json:"-"`
	Title    StringLiteral  `parser:"'manuscript' @String"`
	Sections []*Section     `parser:"'{' @@* '}'"`
}

// Section is either the meta block or the body.
type Section struct {
	Meta *MetaSection `parser:"  @@"`
	Body *BodySection `parser:"| @@"`
}

// Kind returns the human-readable section type.
func (s *Section) Kind() string {
	switch {
	case s == nil:
		return "unknown"
	case s.Meta != nil:
		return "meta"
	case s.Body != nil:
		return "body"
	default:
		return "unknown"
	}
}

// MetaSection captures metadata assignments.
type MetaSection struct {
	Entries []*Assignment `parser:"'meta' '{' ( @@ ';'? )* '}'"`
}

// BodySection is the ordered list of paragraphs.
type BodySection struct {
	Blocks []*Block `parser:"'body' '{' @@* '}'"`
}

// Block is one paragraph-level element (para/heading/quote) with optional attributes.
type Block struct {
	Pos     lexer.Position `parser:"" json:"-"`
	Kind    string         `parser:"@('para' | 'heading' | 'quote')"`
	Attrs   []*Assignment  `parser:"( '[' ( @@ ( ',' @@ )* )? ']' )?"`
	Inlines []*Inline      `parser:"'{' @@* '}'"`
}

// Inline is a string literal, optionally marked up.
type Inline struct {
	Pos  lexer.Position `parser:"" json:"-"`
	Mark string         `parser:"@('strong' | 'em' | 'code' | 'note')?"`
	Text StringLiteral  `parser:"@String"`
}

// Assignment uses colon syntax (key: value).
type Assignment struct {
	Key   string `parser:"@Ident"`
	Value *Value `parser:"':' @@"`
}

// Value represents property values.
type Value struct {
	String *StringLiteral `parser:"  @String"`
	Number *string        `parser:"| @Number"`
	Color  *string        `parser:"| @Color"`
	Ident  *string        `parser:"| @Ident"`
	Array  *ArrayValue    `parser:"| @@"`
}

// ArrayValue captures `[ ... ]` expressions.
type ArrayValue struct {
	Values []*Value `parser:"'[' ( @@ ( ','? @@ )* )? ']'"`
}

// Text renders the value as plain text; arrays are joined with ", ".
func (v *Value) Text() string {
	switch {
	case v == nil:
		return ""
	case v.String != nil:
		return string(*v.String)
	case v.Number != nil:
		return *v.Number
	case v.Color != nil:
		return *v.Color
	case v.Ident != nil:
		return *v.Ident
	case v.Array != nil:
		parts := make([]string, 0, len(v.Array.Values))
		for _, item := range v.Array.Values {
			parts = append(parts, item.Text())
		}
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}

// StringLiteral unquotes Go-style strings on capture and normalises them to NFC.
type StringLiteral string

// Capture implements participle.Capture.
func (s *StringLiteral) Capture(values []string) error {
	if len(values) == 0 {
		return fmt.Errorf("string literal capture requires value")
	}
	val, err := strconv.Unquote(values[0])
	if err != nil {
		return err
	}
	*s = StringLiteral(norm.NFC.String(val))
	return nil
}

// Parse parses DSL content from an io.Reader.
func Parse(r io.Reader) (*Document, error) {
	return documentParser.Parse("", r)
}

// ParseString parses DSL content from a string.
func ParseString(input string) (*Document, error) {
	return documentParser.ParseString("", input)
}
