package txmanager

import (
	"math/big"

	"github.com/roach88/ignite/internal/config"
)

// bumpFee returns the fee of bump number n (1-based) given the fee of the
// previous attempt and the fee of the first one. The result always exceeds
// prev, since ledgers reject same-nonce replacements that do not raise it.
func bumpFee(strategy config.BumpStrategy, factor float64, base, prev *big.Int, n int) *big.Int {
	var next *big.Int
	switch strategy {
	case config.BumpLinear:
		// base + n*(factor-1)*base
		step := scale(base, factor-1)
		next = new(big.Int).Mul(step, big.NewInt(int64(n)))
		next.Add(next, base)
	default:
		next = scale(prev, factor)
	}

	if next.Cmp(prev) <= 0 {
		next = new(big.Int).Add(prev, big.NewInt(1))
	}
	return next
}

func scale(x *big.Int, factor float64) *big.Int {
	f := new(big.Float).SetInt(x)
	f.Mul(f, big.NewFloat(factor))
	out, _ := f.Int(nil)
	return out
}
