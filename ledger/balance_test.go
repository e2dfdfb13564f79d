package ledger_test

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/debt-ledger/ledger"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func tx(id int64, debtor, creditor, amount string) ledger.Transaction {
	return ledger.Transaction{
		ID:       ledger.TransactionID(id),
		Debtor:   debtor,
		Creditor: creditor,
		Amount:   dec(amount),
	}
}

func fixed(b ledger.Balances) map[string]string {
	out := make(map[string]string, len(b))
	for p, v := range b {
		out[p.Debtor+"->"+p.Creditor] = ledger.FormatAmount(v)
	}
	return out
}

func TestComputeBalances_SumsPerExactPair(t *testing.T) {
	txs := []ledger.Transaction{
		tx(1, "bob", "alice", "30.00"),
		tx(2, "carol", "alice", "30.00"),
		tx(3, "bob", "alice", "12.50"),
		tx(4, "alice", "bob", "5.00"),
	}

	got := ledger.ComputeBalances(txs)

	assert.Equal(t, map[string]string{
		"bob->alice":   "42.50",
		"carol->alice": "30.00",
		"alice->bob":   "5.00",
	}, fixed(got))
}

func TestComputeBalances_OppositeDirectionsAreNotNetted(t *testing.T) {
	// GIVEN: bob owes alice 30 and alice owes bob 30
	// WHEN: computing balances
	// THEN: both buckets remain, nothing cancels

	got := ledger.ComputeBalances([]ledger.Transaction{
		tx(1, "bob", "alice", "30"),
		tx(2, "alice", "bob", "30"),
	})

	require.Len(t, got, 2)
	assert.True(t, got.Get("bob", "alice").Equal(dec("30")))
	assert.True(t, got.Get("alice", "bob").Equal(dec("30")))
}

func TestComputeBalances_Empty(t *testing.T) {
	got := ledger.ComputeBalances(nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Empty(t, got.Sorted())
}

func TestComputeBalances_PermutationInvariant(t *testing.T) {
	names := []string{"alice", "bob", "carol", "dave"}
	rng := rand.New(rand.NewSource(42))

	var txs []ledger.Transaction
	want := make(map[ledger.Pair]decimal.Decimal)
	for i := 0; i < 200; i++ {
		d := names[rng.Intn(len(names))]
		c := names[rng.Intn(len(names))]
		cents := decimal.New(int64(rng.Intn(100000)+1), -2)
		txs = append(txs, ledger.Transaction{ID: ledger.TransactionID(i + 1), Debtor: d, Creditor: c, Amount: cents})
		p := ledger.Pair{Debtor: d, Creditor: c}
		want[p] = want[p].Add(cents)
	}

	base := fixed(ledger.ComputeBalances(txs))
	for p, v := range want {
		assert.Equal(t, ledger.FormatAmount(v), base[p.Debtor+"->"+p.Creditor])
	}

	for i := 0; i < 10; i++ {
		shuffled := append([]ledger.Transaction(nil), txs...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, base, fixed(ledger.ComputeBalances(shuffled)))
	}
}

func TestComputeBalances_DoesNotMutateInput(t *testing.T) {
	txs := []ledger.Transaction{tx(2, "bob", "alice", "1.005"), tx(1, "bob", "alice", "2")}
	before := append([]ledger.Transaction(nil), txs...)

	ledger.ComputeBalances(txs)
	ledger.History(txs)

	assert.Equal(t, before, txs)
}

func TestComputeBalances_RoundsOnceHalfAwayFromZero(t *testing.T) {
	// 0.005 + 0.005 is summed exactly (0.010) and rounded at the end.
	got := ledger.ComputeBalances([]ledger.Transaction{
		tx(1, "bob", "alice", "0.005"),
		tx(2, "bob", "alice", "0.005"),
	})
	assert.Equal(t, "0.01", ledger.FormatAmount(got.Get("bob", "alice")))

	// A lone half cent rounds away from zero, not to even.
	got = ledger.ComputeBalances([]ledger.Transaction{tx(1, "bob", "alice", "0.125")})
	assert.Equal(t, "0.13", ledger.FormatAmount(got.Get("bob", "alice")))
}

func TestBalances_Sorted(t *testing.T) {
	b := ledger.ComputeBalances([]ledger.Transaction{
		tx(1, "carol", "alice", "1"),
		tx(2, "bob", "dave", "2"),
		tx(3, "bob", "alice", "3"),
	})

	sorted := b.Sorted()
	require.Len(t, sorted, 3)
	assert.Equal(t, "bob", sorted[0].Debtor)
	assert.Equal(t, "alice", sorted[0].Creditor)
	assert.Equal(t, "bob", sorted[1].Debtor)
	assert.Equal(t, "dave", sorted[1].Creditor)
	assert.Equal(t, "carol", sorted[2].Debtor)
}

func TestHistory_GroupsPerPairInIDOrder(t *testing.T) {
	h := ledger.History([]ledger.Transaction{
		tx(3, "bob", "alice", "3"),
		tx(1, "bob", "alice", "1"),
		tx(2, "carol", "alice", "2"),
	})

	require.Len(t, h, 2)
	bob := h[ledger.Pair{Debtor: "bob", Creditor: "alice"}]
	require.Len(t, bob, 2)
	assert.Equal(t, ledger.TransactionID(1), bob[0].ID)
	assert.Equal(t, ledger.TransactionID(3), bob[1].ID)
}

func TestMemberTotals(t *testing.T) {
	b := ledger.ComputeBalances([]ledger.Transaction{
		tx(1, "bob", "alice", "30"),
		tx(2, "carol", "alice", "30"),
		tx(3, "alice", "bob", "10"),
	})

	totals := ledger.MemberTotals(b)
	require.Len(t, totals, 3)

	alice := totals[0]
	assert.Equal(t, "alice", alice.Member)
	assert.Equal(t, "10.00", ledger.FormatAmount(alice.Owes))
	assert.Equal(t, "60.00", ledger.FormatAmount(alice.Owed))
	assert.Equal(t, "50.00", ledger.FormatAmount(alice.Net()))

	bob := totals[1]
	assert.Equal(t, "-20.00", ledger.FormatAmount(bob.Net()))
}
