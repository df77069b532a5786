package module

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ignite/internal/ir"
)

func TestResolve(t *testing.T) {
	env := Env{
		ModuleID: "M",
		Completed: map[string]ir.Value{
			"M#A": ir.String("0x00000000000000000000000000000000000000a1"),
			"M#S": ir.Object{"owner": ir.String("0x01"), "pair": ir.Array{ir.Int(3), ir.Int(4)}},
		},
		Parameters: map[string]ir.Object{"M": {"supply": ir.Int(500)}},
		Accounts:   []string{"0xaa", "0xbb"},
	}

	tests := []struct {
		name string
		arg  Arg
		want ir.Value
	}{
		{"literal", Lit(ir.Int(7)), ir.Int(7)},
		{"nil", nil, ir.Null{}},
		{"reference", Ref("M#A"), ir.String("0x00000000000000000000000000000000000000a1")},
		{"projection", RefPath("M#S", "pair.1"), ir.Int(4)},
		{"parameter", Param{Name: "supply"}, ir.Int(500)},
		{"parameter default", Param{Name: "missing", Default: ir.Bool(true)}, ir.Bool(true)},
		{"account", Account{Index: 1}, ir.String("0xbb")},
		{"list", List{Ref("M#A"), Lit(ir.Int(1))}, ir.Array{ir.String("0x00000000000000000000000000000000000000a1"), ir.Int(1)}},
		{"map", Map{"o": RefPath("M#S", "owner")}, ir.Object{"o": ir.String("0x01")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.arg, env)
			require.NoError(t, err)
			assert.True(t, ir.Equal(tt.want, got), "got %#v", got)
		})
	}
}

func TestResolveErrors(t *testing.T) {
	env := Env{ModuleID: "M", Completed: map[string]ir.Value{"M#A": ir.Int(1)}}

	_, err := Resolve(Ref("M#B"), env)
	assert.ErrorContains(t, err, "has not completed")

	_, err = Resolve(RefPath("M#A", "x"), env)
	assert.Error(t, err)

	_, err = Resolve(Param{Name: "p"}, env)
	assert.ErrorContains(t, err, "not provided")

	_, err = Resolve(Account{Index: 0}, env)
	assert.ErrorContains(t, err, "out of range")

	_, err = ResolveAll([]Arg{Lit(ir.Int(1)), Ref("M#B")}, env)
	assert.ErrorContains(t, err, "argument 1")
}

func TestResolveIsPure(t *testing.T) {
	env := Env{Completed: map[string]ir.Value{"M#A": ir.Array{ir.Int(1)}}}
	arg := List{Ref("M#A"), Ref("M#A")}

	first, err := Resolve(arg, env)
	require.NoError(t, err)
	second, err := Resolve(arg, env)
	require.NoError(t, err)
	assert.True(t, ir.Equal(first, second))
}
