package strategy

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/roach88/ignite/internal/artifact"
	"github.com/roach88/ignite/internal/ir"
)

var (
	addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	bytesPattern   = regexp.MustCompile(`^0x([0-9a-fA-F]{2})*$`)
	arrayPattern   = regexp.MustCompile(`^(.*)\[(\d*)\]$`)
)

// checkArgs verifies that values fit the inputs of entry in number and kind.
func checkArgs(entry artifact.ABIEntry, values []ir.Value) error {
	if len(values) != len(entry.Inputs) {
		return fmt.Errorf("%s expects %d arguments, got %d", describeEntry(entry), len(entry.Inputs), len(values))
	}
	for i, in := range entry.Inputs {
		if err := CheckKind(in, values[i]); err != nil {
			name := in.Name
			if name == "" {
				name = fmt.Sprintf("#%d", i)
			}
			return fmt.Errorf("%s argument %s: %w", describeEntry(entry), name, err)
		}
	}
	return nil
}

func describeEntry(entry artifact.ABIEntry) string {
	if entry.Type == "constructor" {
		return "constructor"
	}
	return entry.Signature()
}

// CheckKind reports whether v can be encoded as the ABI type of p. It checks
// value kinds and shapes only; range checks are left to the encoder.
func CheckKind(p artifact.ABIParam, v ir.Value) error {
	if m := arrayPattern.FindStringSubmatch(p.Type); m != nil {
		arr, ok := v.(ir.Array)
		if !ok {
			return fmt.Errorf("want %s, got %s", p.Type, ir.Kind(v))
		}
		if m[2] != "" && m[2] != fmt.Sprint(len(arr)) {
			return fmt.Errorf("want %s, got %d elements", p.Type, len(arr))
		}
		elem := artifact.ABIParam{Name: p.Name, Type: m[1], Components: p.Components}
		for i, e := range arr {
			if err := CheckKind(elem, e); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		return nil
	}

	switch {
	case p.Type == "address":
		if s, ok := v.(ir.String); ok && addressPattern.MatchString(string(s)) {
			return nil
		}
	case p.Type == "bool":
		if _, ok := v.(ir.Bool); ok {
			return nil
		}
	case p.Type == "string":
		if _, ok := v.(ir.String); ok {
			return nil
		}
	case strings.HasPrefix(p.Type, "bytes"):
		if s, ok := v.(ir.String); ok && bytesPattern.MatchString(string(s)) {
			return nil
		}
	case strings.HasPrefix(p.Type, "uint"), strings.HasPrefix(p.Type, "int"):
		return checkInteger(p.Type, v)
	case p.Type == "tuple":
		return checkTuple(p, v)
	default:
		return fmt.Errorf("unsupported ABI type %s", p.Type)
	}
	return fmt.Errorf("want %s, got %s", p.Type, ir.Kind(v))
}

// checkInteger accepts Int values and decimal strings, which carry amounts
// beyond int64.
func checkInteger(typ string, v ir.Value) error {
	var n *big.Int
	switch val := v.(type) {
	case ir.Int:
		n = big.NewInt(int64(val))
	case ir.String:
		var ok bool
		if n, ok = new(big.Int).SetString(string(val), 10); !ok {
			return fmt.Errorf("want %s, got non-numeric string %q", typ, string(val))
		}
	default:
		return fmt.Errorf("want %s, got %s", typ, ir.Kind(v))
	}
	if strings.HasPrefix(typ, "uint") && n.Sign() < 0 {
		return fmt.Errorf("want %s, got negative value %s", typ, n)
	}
	return nil
}

func checkTuple(p artifact.ABIParam, v ir.Value) error {
	switch val := v.(type) {
	case ir.Array:
		if len(val) != len(p.Components) {
			return fmt.Errorf("tuple expects %d components, got %d", len(p.Components), len(val))
		}
		for i, c := range p.Components {
			if err := CheckKind(c, val[i]); err != nil {
				return fmt.Errorf("component %d: %w", i, err)
			}
		}
		return nil
	case ir.Object:
		for _, c := range p.Components {
			field, ok := val[c.Name]
			if !ok {
				return fmt.Errorf("tuple component %q missing", c.Name)
			}
			if err := CheckKind(c, field); err != nil {
				return fmt.Errorf("component %s: %w", c.Name, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("want tuple, got %s", ir.Kind(v))
	}
}
