package schema

import "strings"

// Quote characters accepted around identifiers in configuration files and
// backend metadata.
const quoteChars = "\"'`"

// Canonical strips a single pair of surrounding quote characters from an
// identifier. Only one pair is removed: `""x""` canonicalizes to `"x"`.
func Canonical(raw string) string {
	if len(raw) >= 2 {
		first := raw[0]
		if strings.IndexByte(quoteChars, first) >= 0 && raw[len(raw)-1] == first {
			return raw[1 : len(raw)-1]
		}
	}
	return raw
}

// SameName reports whether two raw identifier strings name the same object
// once canonicalized.
func SameName(a, b string) bool {
	return Canonical(a) == Canonical(b)
}

// Identifier carries the canonical form of a SQL identifier and produces
// its quoted form on demand. All interpolation of table, column and alias
// names into SQL text goes through Quoted or QuotedWith; literal values
// never do, they flow through bound parameters.
type Identifier struct {
	name string
}

// NewIdentifier canonicalizes raw into an Identifier.
func NewIdentifier(raw string) Identifier {
	return Identifier{name: Canonical(raw)}
}

// Name returns the canonical (unquoted) form.
func (id Identifier) Name() string {
	return id.name
}

// Quoted returns the identifier in ANSI double-quote syntax, doubling any
// embedded quote character.
func (id Identifier) Quoted() string {
	return `"` + strings.ReplaceAll(id.name, `"`, `""`) + `"`
}

// QuotedWith quotes the identifier with a dialect-specific quote byte,
// such as a backtick for MySQL.
func (id Identifier) QuotedWith(q byte) string {
	qs := string(q)
	return qs + strings.ReplaceAll(id.name, qs, qs+qs) + qs
}

// Equal compares two identifiers by canonical name.
func (id Identifier) Equal(other Identifier) bool {
	return id.name == other.name
}
