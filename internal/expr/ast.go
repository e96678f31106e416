// Package expr compiles monitor formulas and alert conditions into a typed
// AST and evaluates them against a value lookup. The grammar covers numeric
// literals, ${webhook:ID} / ${monitor:ID} references, arithmetic with the
// usual precedence, abs/max/min, comparisons, and &&/|| combinators.
package expr

import "fmt"

// RefTag distinguishes the two reference spellings. Both resolve identically
// against the value store; the tag is metadata for the dashboard UI.
type RefTag string

const (
	RefWebhook RefTag = "webhook"
	RefMonitor RefTag = "monitor"
)

// Node is one node of a compiled expression tree.
type Node interface {
	// Pos returns the 1-based position of the node in the source text.
	Pos() int
}

// Number is a numeric literal.
type Number struct {
	Value float64
	pos   int
}

// Ref is a ${webhook:ID} or ${monitor:ID} reference.
type Ref struct {
	Tag RefTag
	ID  string
	pos int
}

// Neg is unary minus.
type Neg struct {
	X   Node
	pos int
}

// Binary is an arithmetic operation: + - * /.
type Binary struct {
	Op   string
	X, Y Node
	pos  int
}

// Compare is a comparison producing a boolean: > >= < <= == !=.
type Compare struct {
	Op   string
	X, Y Node
	pos  int
}

// Logical is a boolean combinator: && ||.
type Logical struct {
	Op   string
	X, Y Node
	pos  int
}

// Call is a function call: abs, max, min.
type Call struct {
	Fn   string
	Args []Node
	pos  int
}

func (n *Number) Pos() int  { return n.pos }
func (n *Ref) Pos() int     { return n.pos }
func (n *Neg) Pos() int     { return n.pos }
func (n *Binary) Pos() int  { return n.pos }
func (n *Compare) Pos() int { return n.pos }
func (n *Logical) Pos() int { return n.pos }
func (n *Call) Pos() int    { return n.pos }

// ParseError describes a rejected formula or condition. Pos is the 1-based
// offset into the source text.
type ParseError struct {
	Pos int
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at position %d: %s", e.Pos, e.Msg)
}

func errAt(pos int, format string, args ...interface{}) *ParseError {
	return &ParseError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// References returns the distinct references of the tree in first-appearance
// order. The graph builder uses the IDs; the admin surface uses the tags.
func References(n Node) []Ref {
	var out []Ref
	seen := make(map[string]bool)
	walkRefs(n, seen, &out)
	return out
}

func walkRefs(n Node, seen map[string]bool, out *[]Ref) {
	switch v := n.(type) {
	case *Ref:
		if !seen[v.ID] {
			seen[v.ID] = true
			*out = append(*out, *v)
		}
	case *Neg:
		walkRefs(v.X, seen, out)
	case *Binary:
		walkRefs(v.X, seen, out)
		walkRefs(v.Y, seen, out)
	case *Compare:
		walkRefs(v.X, seen, out)
		walkRefs(v.Y, seen, out)
	case *Logical:
		walkRefs(v.X, seen, out)
		walkRefs(v.Y, seen, out)
	case *Call:
		for _, a := range v.Args {
			walkRefs(a, seen, out)
		}
	}
}
