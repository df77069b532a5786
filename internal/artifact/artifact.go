// Package artifact models compiled contract artifacts and how they are found.
package artifact

import (
	"fmt"
	"strings"
)

// Artifact is the compiled form of one contract: its interface (ABI) and
// creation bytecode.
type Artifact struct {
	ContractName string     `json:"contractName"`
	ABI          []ABIEntry `json:"abi"`
	Bytecode     string     `json:"bytecode"`
}

// ABIEntry describes one constructor, function or event.
type ABIEntry struct {
	Type            string     `json:"type"`
	Name            string     `json:"name,omitempty"`
	Inputs          []ABIParam `json:"inputs,omitempty"`
	Outputs         []ABIParam `json:"outputs,omitempty"`
	StateMutability string     `json:"stateMutability,omitempty"`
}

// ABIParam is a single typed input, output or event field.
type ABIParam struct {
	Name       string     `json:"name"`
	Type       string     `json:"type"`
	Indexed    bool       `json:"indexed,omitempty"`
	Components []ABIParam `json:"components,omitempty"`
}

// Signature returns name(type1,type2) for the entry.
func (e ABIEntry) Signature() string {
	types := make([]string, len(e.Inputs))
	for i, in := range e.Inputs {
		types[i] = in.Type
	}
	return e.Name + "(" + strings.Join(types, ",") + ")"
}

// ReadOnly reports whether a function can be called without a transaction.
func (e ABIEntry) ReadOnly() bool {
	return e.StateMutability == "view" || e.StateMutability == "pure"
}

// Constructor returns the constructor entry. A contract without one takes
// no constructor arguments.
func (a Artifact) Constructor() ABIEntry {
	for _, e := range a.ABI {
		if e.Type == "constructor" {
			return e
		}
	}
	return ABIEntry{Type: "constructor"}
}

// Function looks a function up by bare name or by full signature. A bare
// name that matches several overloads is an error; use the signature.
func (a Artifact) Function(name string) (ABIEntry, error) {
	var matches []ABIEntry
	for _, e := range a.ABI {
		if e.Type != "function" {
			continue
		}
		if e.Signature() == name {
			return e, nil
		}
		if e.Name == name {
			matches = append(matches, e)
		}
	}
	switch len(matches) {
	case 0:
		return ABIEntry{}, fmt.Errorf("contract %s has no function %q", a.ContractName, name)
	case 1:
		return matches[0], nil
	default:
		sigs := make([]string, len(matches))
		for i, m := range matches {
			sigs[i] = m.Signature()
		}
		return ABIEntry{}, fmt.Errorf("function %q of contract %s is overloaded; use one of %s",
			name, a.ContractName, strings.Join(sigs, ", "))
	}
}

// Event looks an event up by name.
func (a Artifact) Event(name string) (ABIEntry, error) {
	for _, e := range a.ABI {
		if e.Type == "event" && (e.Name == name || e.Signature() == name) {
			return e, nil
		}
	}
	return ABIEntry{}, fmt.Errorf("contract %s has no event %q", a.ContractName, name)
}

// HasInput reports whether the entry has an input named name.
func (e ABIEntry) HasInput(name string) bool {
	for _, in := range e.Inputs {
		if in.Name == name {
			return true
		}
	}
	return false
}
