package accountant

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "greenchain/pkg/domain-errors"
)

func wadMul(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), wad)
}

func TestSwapOut_QuoteMatchesContractFormula(t *testing.T) {
	// Reserves (1000, 1000), 30 bps fee, 100 in:
	// out = 100·9970·1000 / (1000·10000 + 100·9970) = 90 (truncated).
	out, err := SwapOut(uint256.NewInt(1000), uint256.NewInt(1000), uint256.NewInt(100), 30)
	require.NoError(t, err)
	assert.Equal(t, uint64(90), out.Uint64())
}

func TestSwapOut_ConstantProductNeverDecreases(t *testing.T) {
	cases := []struct {
		name       string
		rIn, rOut  *uint256.Int
		in         *uint256.Int
		feeBps     uint64
	}{
		{"small pool no fee", uint256.NewInt(1000), uint256.NewInt(1000), uint256.NewInt(100), 0},
		{"small pool 30bps", uint256.NewInt(1000), uint256.NewInt(1000), uint256.NewInt(100), 30},
		{"skewed reserves", uint256.NewInt(50_000), uint256.NewInt(3), uint256.NewInt(40_000), 100},
		{"wad scale", wadMul(1_000_000), wadMul(250_000), wadMul(1234), 30},
		{"input larger than reserve", uint256.NewInt(500), uint256.NewInt(500), uint256.NewInt(5000), 30},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := SwapOut(tc.rIn, tc.rOut, tc.in, tc.feeBps)
			require.NoError(t, err)
			require.True(t, out.Cmp(tc.rOut) < 0, "swap may not drain the pool")

			kBefore := new(uint256.Int).Mul(tc.rIn, tc.rOut)
			rInAfter := new(uint256.Int).Add(tc.rIn, tc.in)
			rOutAfter := new(uint256.Int).Sub(tc.rOut, out)
			kAfter := new(uint256.Int).Mul(rInAfter, rOutAfter)
			assert.True(t, kAfter.Cmp(kBefore) >= 0,
				"k decreased: before=%s after=%s", kBefore.Dec(), kAfter.Dec())
		})
	}
}

func TestSwapOut_Rejections(t *testing.T) {
	_, err := SwapOut(uint256.NewInt(0), uint256.NewInt(1000), uint256.NewInt(10), 30)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInsufficientLiquidity), "empty reserve")

	_, err = SwapOut(uint256.NewInt(1000), uint256.NewInt(1000), uint256.NewInt(0), 30)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest), "zero input")

	// Output truncates to zero: 1 in against a heavily skewed pool.
	_, err = SwapOut(uint256.NewInt(1_000_000), uint256.NewInt(10), uint256.NewInt(1), 30)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInsufficientLiquidity), "zero output")

	_, err = SwapOut(uint256.NewInt(1000), uint256.NewInt(1000), uint256.NewInt(10), 10_000)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest), "fee at denominator")
}

func TestZapSplit_ExactVector(t *testing.T) {
	// Fee-free closed form: s = √(R² + A·R) - R. With R=100, A=21: s = 10.
	swap, deposit, err := ZapSplit(uint256.NewInt(100), uint256.NewInt(110), uint256.NewInt(21), 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), swap.Uint64())
	assert.Equal(t, uint64(11), deposit.Uint64())

	// The remainder deposits at exactly the post-swap ratio.
	out, err := SwapOut(uint256.NewInt(100), uint256.NewInt(110), swap, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), out.Uint64())
	// deposit/out == (100+10)/(110-10) == 11/10 exactly.
	lhs := new(uint256.Int).Mul(deposit, uint256.NewInt(100))
	rhs := new(uint256.Int).Mul(out, uint256.NewInt(110))
	assert.True(t, lhs.Eq(rhs))
}

func TestZapSplit_DepositRatioMatchesPostSwapReserves(t *testing.T) {
	rIn := wadMul(500_000)
	rOut := wadMul(2_000_000)
	amountIn := wadMul(1000)
	const feeBps = 30

	swap, deposit, err := ZapSplit(rIn, rOut, amountIn, feeBps)
	require.NoError(t, err)
	require.True(t, new(uint256.Int).Add(swap, deposit).Eq(amountIn), "split must conserve the input")

	out, err := SwapOut(rIn, rOut, swap, feeBps)
	require.NoError(t, err)

	rInAfter := new(uint256.Int).Add(rIn, swap)
	rOutAfter := new(uint256.Int).Sub(rOut, out)

	// deposit/out ≈ rInAfter/rOutAfter, compared via cross-products.
	lhs := new(uint256.Int).Mul(deposit, rOutAfter)
	rhs := new(uint256.Int).Mul(out, rInAfter)
	diff := new(uint256.Int)
	if lhs.Cmp(rhs) >= 0 {
		diff.Sub(lhs, rhs)
	} else {
		diff.Sub(rhs, lhs)
	}
	// Truncation skew must stay below one part in 10^9 of the cross-product.
	bound := new(uint256.Int).Div(rhs, uint256.NewInt(1_000_000_000))
	assert.True(t, diff.Cmp(bound) <= 0,
		"ratio skew too large: lhs=%s rhs=%s", lhs.Dec(), rhs.Dec())
}

func TestZapSplit_TooSmallToSplit(t *testing.T) {
	_, _, err := ZapSplit(wadMul(1_000_000), wadMul(1_000_000), uint256.NewInt(1), 30)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInsufficientLiquidity))
}

func TestLPShares_FirstDepositSeedsGeometricMean(t *testing.T) {
	// √(400·900) = 600.
	shares, err := LPSharesForDeposit(nil, nil, nil, uint256.NewInt(400), uint256.NewInt(900))
	require.NoError(t, err)
	assert.Equal(t, uint64(600), shares.Uint64())
}

func TestLPShares_ProportionalDepositMintsProRata(t *testing.T) {
	// After the (400, 900) seed: a (40, 90) deposit is 10% of supply.
	shares, err := LPSharesForDeposit(
		uint256.NewInt(400), uint256.NewInt(900), uint256.NewInt(600),
		uint256.NewInt(40), uint256.NewInt(90))
	require.NoError(t, err)
	assert.Equal(t, uint64(60), shares.Uint64())
}

func TestLPShares_LopsidedDepositGetsMinimum(t *testing.T) {
	// Excess on one side mints no extra shares.
	shares, err := LPSharesForDeposit(
		uint256.NewInt(400), uint256.NewInt(900), uint256.NewInt(600),
		uint256.NewInt(400), uint256.NewInt(90))
	require.NoError(t, err)
	assert.Equal(t, uint64(60), shares.Uint64())
}

func TestPoolShareOf_AgreesWithReservesOwned(t *testing.T) {
	lp := uint256.NewInt(60)
	total := uint256.NewInt(600)

	frac, err := PoolShareOf(lp, total)
	require.NoError(t, err)
	// 10% in wad.
	assert.Equal(t, "100000000000000000", frac.Dec())

	a0, a1, err := ReservesOwned(lp, total, uint256.NewInt(440), uint256.NewInt(990))
	require.NoError(t, err)
	assert.Equal(t, uint64(44), a0.Uint64())
	assert.Equal(t, uint64(99), a1.Uint64())
}

func TestPoolShareOf_EmptyPool(t *testing.T) {
	frac, err := PoolShareOf(uint256.NewInt(10), uint256.NewInt(0))
	require.NoError(t, err)
	assert.True(t, frac.IsZero())

	a0, a1, err := ReservesOwned(uint256.NewInt(10), nil, uint256.NewInt(1), uint256.NewInt(1))
	require.NoError(t, err)
	assert.True(t, a0.IsZero())
	assert.True(t, a1.IsZero())
}
