// Package accountant is the pure pool-accounting engine: swap quotes, zap-in
// splits, and LP share math over constant-product reserves. No I/O, no state.
//
// All arithmetic is 256-bit integer math in the multiplied-through form the
// pool contracts use, so quotes agree bit-for-bit with on-chain execution.
// Fees are expressed in basis points and applied to the input amount;
// truncation always rounds in the pool's favor.
package accountant

import (
	"github.com/holiman/uint256"

	dErrors "greenchain/pkg/domain-errors"
)

// FeeDenominator is the basis-point scale for pool fees.
const FeeDenominator = 10_000

var wad = new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(18))

// SwapOut quotes the output of swapping amountIn against (reserveIn, reserveOut)
// with the given fee. Computed as
//
//	out = amountIn·g·reserveOut / (reserveIn·10000 + amountIn·g), g = 10000 - feeBps
//
// which is the constant-product formula with the fee applied to the input and
// no intermediate truncation. The result is truncated down so the pool is
// never overpaid.
func SwapOut(reserveIn, reserveOut, amountIn *uint256.Int, feeBps uint64) (*uint256.Int, error) {
	if err := validateFee(feeBps); err != nil {
		return nil, err
	}
	if reserveIn == nil || reserveOut == nil || reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, dErrors.New(dErrors.CodeInsufficientLiquidity, "pool has empty reserves")
	}
	if amountIn == nil || amountIn.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "swap amount must be positive")
	}

	g := uint256.NewInt(FeeDenominator - feeBps)
	inAfterFee, err := mul(amountIn, g)
	if err != nil {
		return nil, err
	}
	num, err := mul(inAfterFee, reserveOut)
	if err != nil {
		return nil, err
	}
	den, err := mul(reserveIn, uint256.NewInt(FeeDenominator))
	if err != nil {
		return nil, err
	}
	den, err = add(den, inAfterFee)
	if err != nil {
		return nil, err
	}

	out := new(uint256.Int).Div(num, den)
	if out.IsZero() {
		return nil, dErrors.New(dErrors.CodeInsufficientLiquidity, "swap output rounds to zero")
	}
	if out.Cmp(reserveOut) >= 0 {
		return nil, dErrors.New(dErrors.CodeInsufficientLiquidity, "swap would drain the pool")
	}
	return out, nil
}

// ZapSplit determines how much of a single-asset input must be swapped to the
// counter-asset so that the remainder plus the swap proceeds deposit at the
// pool's post-swap ratio with no leftover. Solved algebraically from the
// constant-product invariant: with R = reserveIn, A = amountIn, g = 10000 - fee,
// the swap portion s is the positive root of
//
//	g·s² + R·(10000 + g)·s - 10000·A·R = 0
//
// so the result is deterministic, not an iterative approximation.
func ZapSplit(reserveIn, reserveOut, amountIn *uint256.Int, feeBps uint64) (swapPortion, depositPortion *uint256.Int, err error) {
	if err := validateFee(feeBps); err != nil {
		return nil, nil, err
	}
	if reserveIn == nil || reserveOut == nil || reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, nil, dErrors.New(dErrors.CodeInsufficientLiquidity, "pool has empty reserves")
	}
	if amountIn == nil || amountIn.IsZero() {
		return nil, nil, dErrors.New(dErrors.CodeBadRequest, "zap amount must be positive")
	}

	g := FeeDenominator - feeBps
	// term = R·(10000 + g)
	term, err := mul(reserveIn, uint256.NewInt(FeeDenominator+g))
	if err != nil {
		return nil, nil, err
	}
	// disc = term² + 4·g·10000·A·R
	disc, err := mul(term, term)
	if err != nil {
		return nil, nil, err
	}
	cross, err := mul(amountIn, reserveIn)
	if err != nil {
		return nil, nil, err
	}
	cross, err = mul(cross, uint256.NewInt(4*g*FeeDenominator))
	if err != nil {
		return nil, nil, err
	}
	disc, err = add(disc, cross)
	if err != nil {
		return nil, nil, err
	}

	root := new(uint256.Int).Sqrt(disc)
	if root.Cmp(term) <= 0 {
		return nil, nil, dErrors.New(dErrors.CodeInsufficientLiquidity, "zap amount too small to split")
	}
	s := new(uint256.Int).Sub(root, term)
	s.Div(s, uint256.NewInt(2*g))
	if s.IsZero() {
		return nil, nil, dErrors.New(dErrors.CodeInsufficientLiquidity, "zap amount too small to split")
	}

	return s, new(uint256.Int).Sub(amountIn, s), nil
}

// LPSharesForDeposit computes the LP shares minted for depositing
// (amount0, amount1) into a pool with the given reserves and share supply.
//
// The first deposit seeds supply with the geometric mean √(amount0·amount1);
// later deposits mint the minimum of the two proportional contributions so a
// depositor cannot mint shares disproportionate to either reserve.
func LPSharesForDeposit(reserve0, reserve1, totalSupply, amount0, amount1 *uint256.Int) (*uint256.Int, error) {
	if amount0 == nil || amount1 == nil || amount0.IsZero() || amount1.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "deposit amounts must be positive")
	}

	if totalSupply == nil || totalSupply.IsZero() {
		product, err := mul(amount0, amount1)
		if err != nil {
			return nil, err
		}
		shares := new(uint256.Int).Sqrt(product)
		if shares.IsZero() {
			return nil, dErrors.New(dErrors.CodeInsufficientLiquidity, "initial deposit too small")
		}
		return shares, nil
	}

	if reserve0 == nil || reserve1 == nil || reserve0.IsZero() || reserve1.IsZero() {
		return nil, dErrors.New(dErrors.CodeInsufficientLiquidity, "pool has empty reserves")
	}

	share0, err := mulDiv(amount0, totalSupply, reserve0)
	if err != nil {
		return nil, err
	}
	share1, err := mulDiv(amount1, totalSupply, reserve1)
	if err != nil {
		return nil, err
	}

	shares := share0
	if share1.Cmp(share0) < 0 {
		shares = share1
	}
	if shares.IsZero() {
		return nil, dErrors.New(dErrors.CodeInsufficientLiquidity, "deposit too small for current supply")
	}
	return shares, nil
}

// PoolShareOf returns the holder's fraction of the pool scaled by 1e18
// (a wad: 1e18 = 100%). An empty pool yields a zero share.
func PoolShareOf(lpAmount, totalSupply *uint256.Int) (*uint256.Int, error) {
	if lpAmount == nil || totalSupply == nil || totalSupply.IsZero() {
		return new(uint256.Int), nil
	}
	return mulDiv(lpAmount, wad, totalSupply)
}

// ReservesOwned returns the reserve amounts a holder of lpAmount shares could
// withdraw. Computed directly from lpAmount/totalSupply, not via PoolShareOf,
// so reporting cannot drift from deposit math.
func ReservesOwned(lpAmount, totalSupply, reserve0, reserve1 *uint256.Int) (amount0, amount1 *uint256.Int, err error) {
	if lpAmount == nil || totalSupply == nil || totalSupply.IsZero() {
		return new(uint256.Int), new(uint256.Int), nil
	}
	amount0, err = mulDiv(lpAmount, reserve0, totalSupply)
	if err != nil {
		return nil, nil, err
	}
	amount1, err = mulDiv(lpAmount, reserve1, totalSupply)
	if err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}

func validateFee(feeBps uint64) error {
	if feeBps >= FeeDenominator {
		return dErrors.Newf(dErrors.CodeBadRequest, "fee %d bps is not below %d", feeBps, FeeDenominator)
	}
	return nil
}

func mul(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, dErrors.New(dErrors.CodeBadRequest, "amount overflows 256-bit arithmetic")
	}
	return z, nil
}

func add(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, dErrors.New(dErrors.CodeBadRequest, "amount overflows 256-bit arithmetic")
	}
	return z, nil
}

func mulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	z, err := mul(x, y)
	if err != nil {
		return nil, err
	}
	return z.Div(z, d), nil
}
