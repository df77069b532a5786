package module

import (
	"slices"
	"strings"
)

// Separator joins a module id and a local future name into a future id.
const Separator = "#"

// FutureID returns the deterministic id of future name in module moduleID.
func FutureID(moduleID, name string) string {
	return moduleID + Separator + name
}

// Module is a validated, immutable collection of futures plus the subset of
// futures whose values are reported as the deployment's results.
type Module struct {
	id      string
	futures []Future
	byID    map[string]Future
	results []string
	graph   *Graph
}

// New validates futures and builds a Module. Futures are kept in the given
// (declaration) order and must not be modified afterwards. Returns a
// *StructuralError for duplicate ids, malformed futures, dangling or
// ill-typed references, unknown results, or cycles.
func New(id string, futures []Future, results []string) (*Module, error) {
	if id == "" || strings.Contains(id, Separator) {
		return nil, structuralf(ErrCodeInvalidModule, "", "module id %q must be non-empty and must not contain %q", id, Separator)
	}

	m := &Module{
		id:      id,
		futures: slices.Clone(futures),
		byID:    make(map[string]Future, len(futures)),
		results: slices.Clone(results),
	}

	for _, f := range futures {
		fid := f.ID()
		if !strings.HasPrefix(fid, id+Separator) || len(fid) == len(id)+len(Separator) {
			return nil, structuralf(ErrCodeInvalidFuture, fid, "future id must have the form %s%s<name>", id, Separator)
		}
		if _, dup := m.byID[fid]; dup {
			return nil, structuralf(ErrCodeDuplicateFuture, fid, "future declared more than once")
		}
		m.byID[fid] = f
	}

	for _, f := range futures {
		if err := validateFuture(f); err != nil {
			return nil, err
		}
		for _, dep := range f.Dependencies() {
			if dep == f.ID() {
				return nil, &StructuralError{Code: ErrCodeCycle, FutureID: dep, Message: "future depends on itself", Path: []string{dep, dep}}
			}
			if _, ok := m.byID[dep]; !ok {
				return nil, structuralf(ErrCodeDanglingReference, f.ID(), "references unknown future %s", dep)
			}
		}
		if err := m.validateReferences(f); err != nil {
			return nil, err
		}
	}

	for _, r := range results {
		if _, ok := m.byID[r]; !ok {
			return nil, structuralf(ErrCodeUnknownResult, r, "result is not a future of module %s", id)
		}
	}

	m.graph = newGraph(m.futures)
	if !m.graph.computeOrder() {
		path := findCycle(m.graph.order, m.graph.deps)
		return nil, &StructuralError{Code: ErrCodeCycle, Message: "futures form a dependency cycle", Path: path}
	}
	return m, nil
}

func validateFuture(f Future) error {
	switch fut := f.(type) {
	case *DeployContract:
		if fut.Contract == "" {
			return structuralf(ErrCodeInvalidFuture, f.ID(), "contract name is required")
		}
		if fut.Initialize != nil && fut.Initialize.Function == "" {
			return structuralf(ErrCodeInvalidFuture, f.ID(), "initializer function name is required")
		}
	case *CallFunction:
		if fut.Contract == "" || fut.Function == "" {
			return structuralf(ErrCodeInvalidFuture, f.ID(), "contract and function are required")
		}
	case *StaticCall:
		if fut.Contract == "" || fut.Function == "" {
			return structuralf(ErrCodeInvalidFuture, f.ID(), "contract and function are required")
		}
	case *ReadEventArgument:
		if fut.Emitter == "" || fut.Event == "" || fut.Argument == "" {
			return structuralf(ErrCodeInvalidFuture, f.ID(), "emitter, event and argument are required")
		}
		if fut.Index < 0 {
			return structuralf(ErrCodeInvalidFuture, f.ID(), "event index must not be negative")
		}
	case *SendData:
		if fut.To == nil {
			return structuralf(ErrCodeInvalidFuture, f.ID(), "recipient is required")
		}
	case *ContractAt:
		if fut.Contract == "" || fut.Address == nil {
			return structuralf(ErrCodeInvalidFuture, f.ID(), "contract and address are required")
		}
	default:
		return structuralf(ErrCodeInvalidFuture, f.ID(), "unknown future type %T", f)
	}
	return nil
}

// validateReferences checks that contract references point at futures that
// produce a contract, and event reads point at futures that send a
// transaction to a known contract.
func (m *Module) validateReferences(f Future) error {
	switch fut := f.(type) {
	case *CallFunction:
		return m.requireContract(f.ID(), fut.Contract)
	case *StaticCall:
		return m.requireContract(f.ID(), fut.Contract)
	case *ReadEventArgument:
		switch m.byID[fut.Emitter].(type) {
		case *DeployContract, *CallFunction:
			return nil
		default:
			return structuralf(ErrCodeInvalidReference, f.ID(), "emitter %s must be a contract deployment or function call", fut.Emitter)
		}
	}
	return nil
}

func (m *Module) requireContract(from, target string) error {
	switch m.byID[target].(type) {
	case *DeployContract, *ContractAt:
		return nil
	default:
		return structuralf(ErrCodeInvalidReference, from, "%s is not a contract", target)
	}
}

// ID returns the module id.
func (m *Module) ID() string { return m.id }

// Futures returns all futures in declaration order.
func (m *Module) Futures() []Future { return slices.Clone(m.futures) }

// Future returns the future with the given id.
func (m *Module) Future(id string) (Future, bool) {
	f, ok := m.byID[id]
	return f, ok
}

// ResultFutures returns the ids of the futures reported as results.
func (m *Module) ResultFutures() []string { return slices.Clone(m.results) }

// Graph returns the module's dependency graph.
func (m *Module) Graph() *Graph { return m.graph }

// Parameters returns every module parameter referenced by any future,
// deduplicated by name, in first-occurrence order.
func (m *Module) Parameters() []Param {
	seen := map[string]bool{}
	var out []Param
	for _, f := range m.futures {
		var ps []Param
		for _, a := range f.args() {
			ps = params(a, ps)
		}
		for _, p := range ps {
			if !seen[p.Name] {
				seen[p.Name] = true
				out = append(out, p)
			}
		}
	}
	return out
}

// ContractName returns the artifact name behind a contract-producing future.
func (m *Module) ContractName(id string) (string, bool) {
	switch f := m.byID[id].(type) {
	case *DeployContract:
		return f.Contract, true
	case *ContractAt:
		return f.Contract, true
	}
	return "", false
}
