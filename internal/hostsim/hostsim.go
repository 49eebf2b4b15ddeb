// Package hostsim stands in for "the host interpreter and its dispatch
// loop" — explicitly out of scope for the runtime itself, but something
// has to drive begin/end calls realistically for the CLI and for tests.
// It offers a small synthetic function table and call tree, the same way
// the teacher's proc.Collector is selected by a pluggable backend at
// construction rather than hard-wired.
package hostsim

// FuncKind classifies an entry the way R_FunTab's eval/10%10 digit does:
// internal dispatch vs. primitive dispatch.
type FuncKind int

const (
	Internal FuncKind = iota
	Primitive
)

func (k FuncKind) String() string {
	switch k {
	case Internal:
		return "internal"
	case Primitive:
		return "primitive"
	default:
		return "unknown"
	}
}

// FuncEntry is one record in the host's function table.
type FuncEntry struct {
	Name string
	Kind FuncKind
}

// FunctionTable is the read-only iteration contract spec.md §6 asks the
// host to provide: "an ordered finite sequence of records (name, kind)."
type FunctionTable interface {
	Len() int
	At(i int) FuncEntry
}

// StaticTable is a FunctionTable backed by a fixed slice, standing in for
// R_FunTab.
type StaticTable []FuncEntry

func (t StaticTable) Len() int           { return len(t) }
func (t StaticTable) At(i int) FuncEntry { return t[i] }

// DefaultTable returns a small, representative function table exercising
// both internal and primitive dispatch kinds.
func DefaultTable() StaticTable {
	return StaticTable{
		{Name: "cons", Kind: Internal},
		{Name: "allocVector", Kind: Internal},
		{Name: "doArith", Kind: Primitive},
		{Name: "doMatprod", Kind: Primitive},
		{Name: "Match", Kind: Internal},
		{Name: "Eval", Kind: Primitive},
	}
}

// CallNode is one node of a synthetic call tree used to exercise the fast
// path with realistic nesting and sibling patterns.
type CallNode struct {
	Label    string
	Work     int // arbitrary "work units"; descriptive only, Walk does not read it
	Children []CallNode
}

// Walk depth-first traverses tree, invoking enter before descending into
// children and exit after, mirroring how a real dispatch loop would
// bracket a call. enter/exit are caller-supplied so tests and the CLI can
// wire them to Runtime.Begin/Runtime.End without hostsim depending on the
// root package (which in turn depends on hostsim for FunctionTable).
func Walk(nodes []CallNode, enter func(label string) func()) {
	for _, n := range nodes {
		exit := enter(n.Label)
		Walk(n.Children, enter)
		exit()
	}
}

// SampleCallTree returns a small nested synthetic workload: three
// top-level calls, two of which have children (one with two sequential
// children), exercising sequential siblings and one level of nesting at
// once.
func SampleCallTree() []CallNode {
	return []CallNode{
		{
			Label: "doArith",
			Work:  10,
			Children: []CallNode{
				{Label: "cons", Work: 3},
			},
		},
		{
			Label: "Match",
			Work:  5,
		},
		{
			Label: "doMatprod",
			Work:  20,
			Children: []CallNode{
				{Label: "allocVector", Work: 4},
				{Label: "allocVector", Work: 4},
			},
		},
	}
}
