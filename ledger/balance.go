/*
balance.go - Balance calculation from the transaction log

PURPOSE:
  Reduces a snapshot of a chat's transactions to "who owes whom". This is
  pure: no storage access, no mutation of the input, no state.

KEY RULE:
  Buckets are keyed by the exact (debtor, creditor) pair. (A,B) and (B,A)
  are different buckets and are NOT netted against each other. A payback
  only lowers a displayed balance when it is recorded in the bucket of the
  original debt; see RecordPayback.

ROUNDING:
  Amounts are summed exactly with decimal arithmetic and rounded once per
  bucket at the end, half away from zero (RoundAmount).

VIEWS:
  ComputeBalances: pair -> summed amount
  Balances.Sorted: deterministic list for rendering
  History:         pair -> chronological transactions
  MemberTotals:    per-member owes/owed totals (informational)

SEE ALSO:
  - ledger.go: GetBalances wires store + this file
*/
package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Pair is an ordered (debtor, creditor) bucket.
type Pair struct {
	Debtor   string
	Creditor string
}

// Balance is one row of a balance listing.
type Balance struct {
	Debtor   string
	Creditor string
	Amount   decimal.Decimal
}

// Balances maps each pair seen in the log to its summed amount.
// Pairs with no transactions are absent.
type Balances map[Pair]decimal.Decimal

// ComputeBalances sums amounts per exact pair. The result does not depend
// on the order of txs.
func ComputeBalances(txs []Transaction) Balances {
	sums := make(Balances)
	for _, tx := range txs {
		p := tx.Pair()
		sums[p] = sums[p].Add(tx.Amount)
	}
	for p, v := range sums {
		sums[p] = RoundAmount(v)
	}
	return sums
}

// Get returns the balance for a pair, zero if absent.
func (b Balances) Get(debtor, creditor string) decimal.Decimal {
	return b[Pair{Debtor: debtor, Creditor: creditor}]
}

// Sorted lists balances by debtor, then creditor.
func (b Balances) Sorted() []Balance {
	out := make([]Balance, 0, len(b))
	for p, v := range b {
		out = append(out, Balance{Debtor: p.Debtor, Creditor: p.Creditor, Amount: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Debtor != out[j].Debtor {
			return out[i].Debtor < out[j].Debtor
		}
		return out[i].Creditor < out[j].Creditor
	})
	return out
}

// History groups the log per pair, each group ordered by id.
func History(txs []Transaction) map[Pair][]Transaction {
	groups := make(map[Pair][]Transaction)
	for _, tx := range txs {
		groups[tx.Pair()] = append(groups[tx.Pair()], tx)
	}
	for _, g := range groups {
		sort.SliceStable(g, func(i, j int) bool { return g[i].ID < g[j].ID })
	}
	return groups
}

// =============================================================================
// MEMBER TOTALS
// =============================================================================

// MemberTotal summarizes one member across all pairs.
type MemberTotal struct {
	Member string
	Owes   decimal.Decimal // sum of buckets where Member is the debtor
	Owed   decimal.Decimal // sum of buckets where Member is the creditor
}

// Net is positive when the member is owed more than they owe.
func (m MemberTotal) Net() decimal.Decimal {
	return m.Owed.Sub(m.Owes)
}

// MemberTotals derives per-member totals from pair balances, sorted by member.
func MemberTotals(b Balances) []MemberTotal {
	totals := make(map[string]*MemberTotal)
	get := func(name string) *MemberTotal {
		if _, ok := totals[name]; !ok {
			totals[name] = &MemberTotal{Member: name}
		}
		return totals[name]
	}
	for p, v := range b {
		d := get(p.Debtor)
		d.Owes = d.Owes.Add(v)
		c := get(p.Creditor)
		c.Owed = c.Owed.Add(v)
	}

	out := make([]MemberTotal, 0, len(totals))
	for _, t := range totals {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Member < out[j].Member })
	return out
}
