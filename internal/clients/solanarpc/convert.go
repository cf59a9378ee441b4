package solanarpc

import (
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"

	"github.com/walletdigest/wdapi/internal/model"
)

// ToRawTransaction turns a hydrated provider response into the pipeline's
// canonical RawTransaction by diffing pre/post balances — the standard way
// to recover transfers from a plain JSON-RPC transaction without decoding
// every program's instruction format. A structured SwapEvent is left nil
// here: this provider doesn't attach one, so every transaction flows
// through the extractor's fallback reconstruction path (spec.md §4.4).
func ToRawTransaction(sig solana.Signature, res *rpc.GetTransactionResult) *model.RawTransaction {
	out := &model.RawTransaction{Signature: model.Signature(sig.String())}
	if res == nil {
		return out
	}
	out.Slot = res.Slot
	if res.BlockTime != nil {
		out.BlockTime = time.Unix(int64(*res.BlockTime), 0).UTC()
	}
	if res.Meta == nil {
		return out
	}
	out.FeeLamports = res.Meta.Fee

	keys := accountKeys(res)

	out.NativeTransfers = nativeTransfers(keys, res.Meta.PreBalances, res.Meta.PostBalances)
	out.TokenTransfers = tokenTransfers(res.Meta.PreTokenBalances, res.Meta.PostTokenBalances)

	return out
}

func accountKeys(res *rpc.GetTransactionResult) []solana.PublicKey {
	if res.Transaction == nil {
		return nil
	}
	tx, err := res.Transaction.GetTransaction()
	if err != nil || tx == nil {
		return nil
	}
	keys := append([]solana.PublicKey{}, tx.Message.AccountKeys...)
	if res.Meta != nil {
		keys = append(keys, res.Meta.LoadedAddresses.Writable...)
		keys = append(keys, res.Meta.LoadedAddresses.ReadOnly...)
	}
	return keys
}

func nativeTransfers(keys []solana.PublicKey, pre, post []uint64) []model.NativeTransfer {
	n := len(pre)
	if len(post) < n {
		n = len(post)
	}
	if len(keys) < n {
		n = len(keys)
	}

	var out []model.NativeTransfer
	for i := 0; i < n; i++ {
		delta := int64(post[i]) - int64(pre[i])
		if delta == 0 {
			continue
		}
		amount := lamportsToSOL(delta)
		if delta < 0 {
			out = append(out, model.NativeTransfer{From: keys[i].String(), Amount: amount})
		} else {
			out = append(out, model.NativeTransfer{To: keys[i].String(), Amount: amount})
		}
	}
	return out
}

func lamportsToSOL(lamports int64) decimal.Decimal {
	abs := lamports
	if abs < 0 {
		abs = -abs
	}
	return decimal.New(abs, 0).Div(decimal.New(1, 9))
}

func tokenTransfers(pre, post []rpc.TokenBalance) []model.TokenTransfer {
	preByIndex := map[uint16]rpc.TokenBalance{}
	for _, b := range pre {
		preByIndex[b.AccountIndex] = b
	}
	postByIndex := map[uint16]rpc.TokenBalance{}
	for _, b := range post {
		postByIndex[b.AccountIndex] = b
	}

	seen := map[uint16]bool{}
	var out []model.TokenTransfer
	for idx, b := range preByIndex {
		seen[idx] = true
		out = append(out, diffTokenBalance(b, postByIndex[idx])...)
	}
	for idx, b := range postByIndex {
		if seen[idx] {
			continue
		}
		out = append(out, diffTokenBalance(rpc.TokenBalance{Mint: b.Mint, Owner: b.Owner}, b)...)
	}
	return out
}

func diffTokenBalance(pre, post rpc.TokenBalance) []model.TokenTransfer {
	preAmt := uiAmount(pre)
	postAmt := uiAmount(post)
	delta := postAmt.Sub(preAmt)
	if delta.IsZero() {
		return nil
	}

	mint := pre.Mint.String()
	if mint == (solana.PublicKey{}).String() {
		mint = post.Mint.String()
	}
	owner := ownerOf(pre)
	if owner == "" {
		owner = ownerOf(post)
	}

	if delta.IsNegative() {
		return []model.TokenTransfer{{Mint: mint, From: owner, Amount: delta.Neg()}}
	}
	return []model.TokenTransfer{{Mint: mint, To: owner, Amount: delta}}
}

func ownerOf(b rpc.TokenBalance) string {
	if b.Owner == nil {
		return ""
	}
	return b.Owner.String()
}

func uiAmount(b rpc.TokenBalance) decimal.Decimal {
	if b.UiTokenAmount == nil || b.UiTokenAmount.Amount == "" {
		return decimal.Zero
	}
	raw, err := strconv.ParseInt(b.UiTokenAmount.Amount, 10, 64)
	if err != nil {
		return decimal.Zero
	}
	return decimal.New(raw, 0).Div(decimal.New(1, int32(b.UiTokenAmount.Decimals)))
}
