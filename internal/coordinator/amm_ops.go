package coordinator

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel/attribute"

	"greenchain/internal/amm/accountant"
	"greenchain/internal/amm/poolregistry"
	"greenchain/pkg/domain"
	dErrors "greenchain/pkg/domain-errors"
)

// SwapQuote is a read-only swap preview.
type SwapQuote struct {
	Pool      domain.Address
	TokenIn   domain.Address
	AmountIn  *uint256.Int
	AmountOut *uint256.Int
	FeeBps    uint64
}

// ZapQuote is a read-only single-asset deposit preview.
type ZapQuote struct {
	Pool           domain.Address
	Token          domain.Address
	AmountIn       *uint256.Int
	SwapPortion    *uint256.Int
	DepositPortion *uint256.Int
	CounterAmount  *uint256.Int
	FeeBps         uint64
}

// SwapResult is a confirmed swap plus the quoted output it executed at.
type SwapResult struct {
	Result
	AmountOut *uint256.Int
}

// ZapResult is a confirmed zap-in plus the account's resulting position,
// read back from the ledger after confirmation.
type ZapResult struct {
	Result
	SwapPortion    *uint256.Int
	DepositPortion *uint256.Int
	Position       *poolregistry.Position
}

// orient returns (reserveIn, reserveOut) for the given input token.
func (c *Coordinator) orient(view *poolregistry.View, tokenIn domain.Address) (rIn, rOut *uint256.Int, err error) {
	switch tokenIn {
	case view.CertificateToken:
		return view.Reserve0, view.Reserve1, nil
	case c.clients.Fungible.Address():
		return view.Reserve1, view.Reserve0, nil
	}
	return nil, nil, dErrors.Newf(dErrors.CodeBadRequest, "token %s is not traded by pool %s",
		tokenIn.Short(), view.Pool.Short())
}

// QuoteSwap previews a swap against live reserves.
func (c *Coordinator) QuoteSwap(ctx context.Context, pool, tokenIn domain.Address, amountIn *uint256.Int) (*SwapQuote, error) {
	view, err := c.pools.View(ctx, pool)
	if err != nil {
		return nil, err
	}
	rIn, rOut, err := c.orient(view, tokenIn)
	if err != nil {
		return nil, err
	}
	out, err := accountant.SwapOut(rIn, rOut, amountIn, view.FeeBps)
	if err != nil {
		return nil, err
	}
	return &SwapQuote{
		Pool:      pool,
		TokenIn:   tokenIn,
		AmountIn:  new(uint256.Int).Set(amountIn),
		AmountOut: out,
		FeeBps:    view.FeeBps,
	}, nil
}

// QuoteZap previews a single-asset deposit split against live reserves.
func (c *Coordinator) QuoteZap(ctx context.Context, pool, token domain.Address, amountIn *uint256.Int) (*ZapQuote, error) {
	view, err := c.pools.View(ctx, pool)
	if err != nil {
		return nil, err
	}
	rIn, rOut, err := c.orient(view, token)
	if err != nil {
		return nil, err
	}
	swapPortion, depositPortion, err := accountant.ZapSplit(rIn, rOut, amountIn, view.FeeBps)
	if err != nil {
		return nil, err
	}
	counter, err := accountant.SwapOut(rIn, rOut, swapPortion, view.FeeBps)
	if err != nil {
		return nil, err
	}
	return &ZapQuote{
		Pool:           pool,
		Token:          token,
		AmountIn:       new(uint256.Int).Set(amountIn),
		SwapPortion:    swapPortion,
		DepositPortion: depositPortion,
		CounterAmount:  counter,
		FeeBps:         view.FeeBps,
	}, nil
}

// Swap trades amountIn of tokenIn through the pool: the spend allowance is
// raised first when short, then the swap submits and waits for confirmation.
func (c *Coordinator) Swap(ctx context.Context, actor, pool, tokenIn domain.Address, amountIn *uint256.Int) (_ *SwapResult, err error) {
	ctx, span := c.startSpan(ctx, "coordinator.Swap", actor)
	span.SetAttributes(attribute.String("pool", string(pool)))
	defer func() { endSpan(span, err) }()

	lock := c.lockAccount(actor)
	defer lock.release()

	subject := fmt.Sprintf("swap:%s:%s", pool, tokenIn)
	pending, err := c.pending.begin(KindSwap, actor, subject, amountIn, c.now())
	if err != nil {
		return nil, err
	}
	defer c.pending.finish(pending)

	quote, err := c.QuoteSwap(ctx, pool, tokenIn, amountIn)
	if err != nil {
		return nil, err
	}
	// Only the fungible token exposes an approval surface. Certificate-side
	// input is pulled by the pool directly.
	if tokenIn == c.clients.Fungible.Address() {
		if err := c.ensureAllowance(ctx, actor, pool, amountIn); err != nil {
			return nil, err
		}
	}

	pending.Tx, err = c.clients.Pools.Swap(ctx, actor, pool, tokenIn, amountIn)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnreachable, "submit swap")
	}

	lock.release()
	receipt, err := c.confirm(ctx, pending)
	if err != nil {
		return nil, err
	}
	c.publish(ctx, c.confirmedEvent(pending))
	return &SwapResult{
		Result:    Result{Kind: KindSwap, Tx: receipt.Tx, Block: receipt.Block},
		AmountOut: quote.AmountOut,
	}, nil
}

// ZapIn deposits a single asset: the pool swaps the computed portion
// internally and mints LP shares for the balanced remainder. The returned
// position is read back from the ledger, not assumed from the quote.
func (c *Coordinator) ZapIn(ctx context.Context, actor, pool, token domain.Address, amountIn *uint256.Int) (_ *ZapResult, err error) {
	ctx, span := c.startSpan(ctx, "coordinator.ZapIn", actor)
	span.SetAttributes(attribute.String("pool", string(pool)))
	defer func() { endSpan(span, err) }()

	lock := c.lockAccount(actor)
	defer lock.release()

	subject := fmt.Sprintf("zap:%s:%s", pool, token)
	pending, err := c.pending.begin(KindZap, actor, subject, amountIn, c.now())
	if err != nil {
		return nil, err
	}
	defer c.pending.finish(pending)

	quote, err := c.QuoteZap(ctx, pool, token, amountIn)
	if err != nil {
		return nil, err
	}
	if token == c.clients.Fungible.Address() {
		if err := c.ensureAllowance(ctx, actor, pool, amountIn); err != nil {
			return nil, err
		}
	}

	pending.Tx, err = c.clients.Pools.ZapIn(ctx, actor, pool, token, amountIn)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnreachable, "submit zap-in")
	}

	lock.release()
	receipt, err := c.confirm(ctx, pending)
	if err != nil {
		return nil, err
	}

	position, err := c.pools.PositionOf(ctx, pool, actor)
	if err != nil {
		return nil, err
	}
	c.publish(ctx, c.confirmedEvent(pending))
	return &ZapResult{
		Result:         Result{Kind: KindZap, Tx: receipt.Tx, Block: receipt.Block},
		SwapPortion:    quote.SwapPortion,
		DepositPortion: quote.DepositPortion,
		Position:       position,
	}, nil
}

// ensureAllowance raises the actor's fungible-token spend allowance for the
// pool when the current allowance does not cover amount, waiting for the
// approval to confirm before the dependent submission.
func (c *Coordinator) ensureAllowance(ctx context.Context, actor, spender domain.Address, amount *uint256.Int) error {
	allowance, err := c.clients.Fungible.Allowance(ctx, actor, spender)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnreachable, "read allowance")
	}
	if allowance.Cmp(amount) >= 0 {
		return nil
	}

	c.logger.InfoContext(ctx, "raising spend allowance",
		"account", actor.Short(), "spender", spender.Short(),
		"amount", domain.FormatUnits(amount))
	tx, err := c.clients.Fungible.Approve(ctx, actor, spender, amount)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnreachable, "submit allowance approval")
	}
	if _, err := c.confirm(ctx, &Pending{Kind: KindSwap, Account: actor, Subject: "allowance", Tx: tx}); err != nil {
		return err
	}
	return nil
}
