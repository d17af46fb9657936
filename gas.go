package txcontroller

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Gas estimation. The tiered policy avoids both under-estimating (the
// transaction gets stuck) and exceeding the block limit (the network rejects
// it outright):
//
//  1. a missing gas price is filled from the node's current suggestion
//  2. caller-specified gas is authoritative and returned unchanged
//  3. plain transfers to code-less destinations cost the intrinsic 21000
//  4. anything else is estimated against 95% of the latest block's gas
//     limit, then padded x1.5 and capped at 90% of that limit
//
// Custom networks skip the intrinsic shortcut and the padding: their gas
// rules are unknown, so the node's raw estimate is trusted as-is.

// estimateDraftGas computes the (gas, gasPrice) pair for a draft, issuing
// node queries only for the fields the caller left unset
func (c *TxController) estimateDraftGas(ctx context.Context, draft Draft) (uint64, *big.Int, error) {
	var gasPrice *big.Int
	if draft.GasPrice != nil {
		gasPrice = new(big.Int).Set((*big.Int)(draft.GasPrice))
	} else {
		suggested, err := c.node.SuggestGasPrice(ctx)
		if err != nil {
			return 0, nil, fmt.Errorf("couldn't get gas price from the node: %w", err)
		}
		gasPrice = suggested
	}

	if draft.Gas != nil {
		return uint64(*draft.Gas), gasPrice, nil
	}

	custom := c.chain.IsCustomNetwork()

	// Plain value transfer: no destination, or a destination with no call
	// data and no deployed code. Fixed intrinsic cost, no estimation call.
	if !custom {
		plain := draft.To == nil
		if !plain && len(draft.Data) == 0 {
			code, err := c.node.CodeAt(ctx, *draft.To)
			if err != nil {
				return 0, nil, fmt.Errorf("couldn't check destination code: %w", err)
			}
			plain = len(code) == 0
		}
		if plain {
			return IntrinsicTxGas, gasPrice, nil
		}
	}

	blockLimit, err := c.node.LatestBlockGasLimit(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("couldn't get latest block gas limit: %w", err)
	}

	call := ethereum.CallMsg{
		From: draft.From,
		To:   draft.To,
		Gas:  blockLimit * 19 / 20, // work against 95% of the block limit
		Data: draft.Data,
	}
	if draft.Value != nil {
		call.Value = (*big.Int)(draft.Value)
	}

	estimate, err := c.node.EstimateGas(ctx, call)
	if err != nil {
		return 0, nil, fmt.Errorf("couldn't estimate gas: %w", err)
	}

	return chooseGasLimit(estimate, blockLimit, custom), gasPrice, nil
}

// chooseGasLimit applies the padding/cap tier to a raw node estimate
func chooseGasLimit(estimate, blockLimit uint64, custom bool) uint64 {
	padded := estimate * 3 / 2     // x1.5
	ceiling := blockLimit * 9 / 10 // 90% of the block limit

	if estimate > ceiling || custom {
		return estimate
	}
	if padded < ceiling {
		return padded
	}
	return ceiling
}

// bumpGasPrice returns floor(price*num/den), never mutating price
func bumpGasPrice(price *big.Int, num, den int64) *big.Int {
	out := new(big.Int).Mul(price, big.NewInt(num))
	return out.Div(out, big.NewInt(den))
}

// draftGasPrice returns the draft's gas price as a big.Int, or nil
func draftGasPrice(d Draft) *big.Int {
	if d.GasPrice == nil {
		return nil
	}
	return (*big.Int)(d.GasPrice)
}

// hexUint64 returns a pointer-wrapped hexutil.Uint64, for draft fields
func hexUint64(v uint64) *hexutil.Uint64 {
	h := hexutil.Uint64(v)
	return &h
}
