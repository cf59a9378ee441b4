package solanarpc

import (
	"context"
	"log/slog"

	"github.com/gagliardetto/solana-go"
)

const (
	pageSize            = 1000
	maxConsecutiveEmpty = 3
)

// Page is one page of signatures from the upstream provider.
type Page struct {
	Signatures []solana.Signature
	// HasNext reports whether the provider handed back a cursor to
	// continue from. A page can be empty and still have HasNext=true
	// (a skipped run of version-0 transactions); the pager tolerates up
	// to maxConsecutiveEmpty of those before giving up (spec.md §4.2).
	HasNext bool
}

// fetcher abstracts one upstream page request so the pager's termination
// logic (spec.md §4.2, property 5, scenario S4) can be tested against a
// canned sequence of pages without a live RPC client.
type fetcher interface {
	FetchPage(ctx context.Context, before solana.Signature) (Page, error)
}

// Pager produces signatures newest-to-oldest, honoring the termination
// rules: (a) a page without a next cursor, (b) more than
// maxConsecutiveEmpty empty pages in a row, (c) the caller's max_pages cap.
type Pager struct {
	fetch fetcher
}

func NewPager(client *Client, wallet solana.PublicKey) *Pager {
	return &Pager{fetch: &liveFetcher{client: client, wallet: wallet}}
}

// newTestPager builds a Pager over an explicit fetcher, used by tests that
// replay a canned page sequence.
func newTestPager(f fetcher) *Pager { return &Pager{fetch: f} }

// Walk invokes yield once per non-empty page in order, stopping when a
// termination condition is hit or yield returns false (the caller wants to
// stop early, e.g. on cancellation). maxPages of 0 means unbounded.
func (p *Pager) Walk(ctx context.Context, maxPages int, yield func(Page) bool) {
	var before solana.Signature
	consecutiveEmpty := 0
	pagesRequested := 0

	for {
		if maxPages > 0 && pagesRequested >= maxPages {
			return
		}
		pagesRequested++

		page, err := p.fetch.FetchPage(ctx, before)
		if err != nil {
			slog.Error("pager: fetch failed", "error", err)
			return
		}

		if len(page.Signatures) == 0 {
			consecutiveEmpty++
			if !page.HasNext || consecutiveEmpty > maxConsecutiveEmpty {
				return
			}
			continue
		}
		consecutiveEmpty = 0
		before = page.Signatures[len(page.Signatures)-1]

		if !yield(page) {
			return
		}
		if !page.HasNext {
			return
		}
	}
}

// liveFetcher is the production fetcher: one upstream getSignaturesForAddress
// call per page, inferring HasNext from whether the page came back full.
type liveFetcher struct {
	client *Client
	wallet solana.PublicKey
}

func (f *liveFetcher) FetchPage(ctx context.Context, before solana.Signature) (Page, error) {
	results, err := f.client.GetSignaturesForAddress(ctx, f.wallet, before, pageSize)
	if err != nil {
		return Page{}, err
	}

	sigs := make([]solana.Signature, 0, len(results))
	for _, r := range results {
		sigs = append(sigs, r.Signature)
	}

	return Page{Signatures: sigs, HasNext: len(sigs) == pageSize}, nil
}
