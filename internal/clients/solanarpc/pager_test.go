package solanarpc

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

// scriptedFetcher replays a fixed sequence of pages regardless of the
// "before" cursor passed in, letting tests drive the pager through exact
// canned scenarios.
type scriptedFetcher struct {
	pages []Page
	calls int
}

func (s *scriptedFetcher) FetchPage(ctx context.Context, before solana.Signature) (Page, error) {
	if s.calls >= len(s.pages) {
		return Page{}, nil
	}
	p := s.pages[s.calls]
	s.calls++
	return p, nil
}

func sigsOfLen(n int) []solana.Signature {
	out := make([]solana.Signature, n)
	return out
}

// TestPager_TolerantOfEmptyPages covers scenario S4: pages A(1000), B(0),
// C(0), D(500), E(null cursor) collect 1500 signatures without the pager
// terminating at the first empty page.
func TestPager_TolerantOfEmptyPages(t *testing.T) {
	f := &scriptedFetcher{pages: []Page{
		{Signatures: sigsOfLen(1000), HasNext: true}, // A
		{Signatures: nil, HasNext: true},              // B
		{Signatures: nil, HasNext: true},              // C
		{Signatures: sigsOfLen(500), HasNext: true},   // D
		{Signatures: nil, HasNext: false},             // E
	}}
	p := newTestPager(f)

	total := 0
	p.Walk(context.Background(), 0, func(page Page) bool {
		total += len(page.Signatures)
		return true
	})

	require.Equal(t, 1500, total)
	require.Equal(t, 5, f.calls)
}

func TestPager_GivesUpAfterTooManyEmptyPages(t *testing.T) {
	f := &scriptedFetcher{pages: []Page{
		{Signatures: sigsOfLen(10), HasNext: true},
		{Signatures: nil, HasNext: true},
		{Signatures: nil, HasNext: true},
		{Signatures: nil, HasNext: true},
		{Signatures: nil, HasNext: true}, // 4th consecutive empty: exceeds tolerance
		{Signatures: sigsOfLen(10), HasNext: true},
	}}
	p := newTestPager(f)

	pages := 0
	p.Walk(context.Background(), 0, func(page Page) bool {
		pages++
		return true
	})

	require.Equal(t, 1, pages)
	require.Equal(t, 5, f.calls)
}

func TestPager_StopsOnShortFinalPage(t *testing.T) {
	f := &scriptedFetcher{pages: []Page{
		{Signatures: sigsOfLen(1000), HasNext: true},
		{Signatures: sigsOfLen(200), HasNext: false},
		{Signatures: sigsOfLen(999), HasNext: true}, // should never be reached
	}}
	p := newTestPager(f)

	total := 0
	p.Walk(context.Background(), 0, func(page Page) bool {
		total += len(page.Signatures)
		return true
	})

	require.Equal(t, 1200, total)
	require.Equal(t, 2, f.calls)
}

func TestPager_RespectsMaxPages(t *testing.T) {
	f := &scriptedFetcher{pages: []Page{
		{Signatures: sigsOfLen(1000), HasNext: true},
		{Signatures: sigsOfLen(1000), HasNext: true},
		{Signatures: sigsOfLen(1000), HasNext: true},
	}}
	p := newTestPager(f)

	pages := 0
	p.Walk(context.Background(), 2, func(page Page) bool {
		pages++
		return true
	})

	require.Equal(t, 2, pages)
	require.Equal(t, 2, f.calls)
}
