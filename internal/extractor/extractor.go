// Package extractor implements the Swap Extractor (C4): it turns a hydrated
// RawTransaction into zero or more canonical Trades, preferring a
// structured swap event when the upstream provider supplies one and
// otherwise reconstructing a trade from raw token transfers. Grounded on
// the transfer-reconstruction heuristic used for DEX-fill detection in
// other_examples/c32099c5_0xsamyy-solwatch-v2 (an analyzer over raw
// balance diffs), adapted to this repo's RawTransaction/Trade shapes.
package extractor

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/walletdigest/wdapi/internal/model"
)

// Extract returns the Trades implied by tx for wallet, in emission order.
// Deterministic: the same RawTransaction always yields the same Trades.
func Extract(wallet string, tx model.RawTransaction) []model.Trade {
	if tx.SwapEvent != nil {
		trade, ok := fromSwapEvent(wallet, tx)
		if !ok {
			return nil
		}
		return []model.Trade{trade}
	}

	trade, ok := fromTransfers(wallet, tx)
	if !ok {
		return nil
	}
	return []model.Trade{trade}
}

func fromSwapEvent(wallet string, tx model.RawTransaction) (model.Trade, bool) {
	ev := tx.SwapEvent
	primary, ok := primaryMint(ev.TokenIn.Mint, ev.TokenOut.Mint)
	if !ok {
		return model.Trade{}, false
	}

	action := model.ActionSell
	amount := ev.TokenIn.Amount
	if ev.TokenOut.Mint == primary {
		action = model.ActionBuy
		amount = ev.TokenOut.Amount
	}

	return model.Trade{
		Wallet:           wallet,
		Signature:        tx.Signature,
		Slot:             tx.Slot,
		BlockTime:        tx.BlockTime,
		IntraTxIndex:     0,
		Action:           action,
		TokenIn:          ev.TokenIn,
		TokenOut:         ev.TokenOut,
		PrimaryTokenMint: primary,
		Amount:           amount,
		Dex:              ev.Source,
		TxType:           model.TxTypeSwap,
	}, true
}

// fromTransfers reconstructs a swap from token_transfers[] per spec.md
// §4.4: outs are transfers where from==wallet, ins where to==wallet. Valid
// shapes are {n outs, 1 in} with n∈{1,2,3}, or {1 out, m ins} with
// m∈{1,2,3} — n/m count literal transfers, not distinct mints, so a
// same-mint split across multiple transfers still counts toward the
// n∈{1,2,3} cap instead of collapsing to 1. Same-mint transfers on the
// multi side are summed; anything else (0/0, 1/0, 0/1, a pair with no
// SOL/stable counterparty, or a multi side that turns out to carry more
// than one distinct mint) is discarded.
func fromTransfers(wallet string, tx model.RawTransaction) (model.Trade, bool) {
	outs := map[string]decimal.Decimal{}
	ins := map[string]decimal.Decimal{}
	var nOutTransfers, nInTransfers int

	for _, t := range tx.TokenTransfers {
		switch {
		case t.From == wallet:
			outs[t.Mint] = outs[t.Mint].Add(t.Amount)
			nOutTransfers++
		case t.To == wallet:
			ins[t.Mint] = ins[t.Mint].Add(t.Amount)
			nInTransfers++
		}
	}
	for _, t := range tx.NativeTransfers {
		switch {
		case t.From == wallet:
			outs[model.NativeSolMint] = outs[model.NativeSolMint].Add(t.Amount)
			nOutTransfers++
		case t.To == wallet:
			ins[model.NativeSolMint] = ins[model.NativeSolMint].Add(t.Amount)
			nInTransfers++
		}
	}

	validShape := (nOutTransfers >= 1 && nOutTransfers <= 3 && nInTransfers == 1) ||
		(nOutTransfers == 1 && nInTransfers >= 1 && nInTransfers <= 3)
	if !validShape {
		return model.Trade{}, false
	}

	var outMint, inMint string
	var outAmt, inAmt decimal.Decimal
	var ok bool
	if nInTransfers == 1 {
		for m, a := range ins {
			inMint, inAmt = m, a
		}
		outMint, outAmt, ok = singleMintSide(outs)
	} else {
		for m, a := range outs {
			outMint, outAmt = m, a
		}
		inMint, inAmt, ok = singleMintSide(ins)
	}
	if !ok {
		return model.Trade{}, false
	}

	primary, ok := primaryMint(outMint, inMint)
	if !ok {
		return model.Trade{}, false
	}

	action := model.ActionBuy
	amount := inAmt
	if outMint == primary {
		action = model.ActionSell
		amount = outAmt
	}

	return model.Trade{
		Wallet:           wallet,
		Signature:        tx.Signature,
		Slot:             tx.Slot,
		BlockTime:        tx.BlockTime,
		IntraTxIndex:     0,
		Action:           action,
		TokenIn:          model.TokenAmount{Mint: outMint, Amount: outAmt},
		TokenOut:         model.TokenAmount{Mint: inMint, Amount: inAmt},
		PrimaryTokenMint: primary,
		Amount:           amount,
		TxType:           model.TxTypeTransferImplied,
	}, true
}

// singleMintSide resolves a side's summed-by-mint map into one (mint,
// amount) pair. It only succeeds when every transfer on that side shares a
// single mint (same-mint splits, already summed by the caller); a side
// that actually carries more than one distinct mint has no single
// reference price to fall back on, so the whole trade is rejected rather
// than silently keeping the dominant mint and dropping the rest.
func singleMintSide(side map[string]decimal.Decimal) (string, decimal.Decimal, bool) {
	if len(side) != 1 {
		if len(side) > 1 {
			slog.Warn("extractor: multi-distinct-mint side has no canonical mint, rejecting trade", "distinct_mints", len(side))
		}
		return "", decimal.Decimal{}, false
	}
	for m, a := range side {
		return m, a, true
	}
	return "", decimal.Decimal{}, false
}

// primaryMint picks the unique non-SOL, non-stablecoin mint in a pair. Pairs
// with zero or two such mints have no canonical reference price and are
// rejected by the caller.
func primaryMint(a, b string) (string, bool) {
	aRef, bRef := model.IsSolOrStable(a), model.IsSolOrStable(b)
	switch {
	case aRef && !bRef:
		return b, true
	case bRef && !aRef:
		return a, true
	default:
		return "", false
	}
}
