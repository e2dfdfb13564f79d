package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// SplitPlan is the outcome of dividing an expense equally.
type SplitPlan struct {
	Payer        string
	Participants []string // sorted, payer included
	Total        decimal.Decimal
	Share        decimal.Decimal
	// Remainder is Total - Share*len(Participants). Rounding the share can
	// lose or gain cents across the batch; the drift is reported, not fixed.
	Remainder decimal.Decimal
}

// Debtors returns every participant except the payer.
func (p SplitPlan) Debtors() []string {
	out := make([]string, 0, len(p.Participants))
	for _, name := range p.Participants {
		if name != p.Payer {
			out = append(out, name)
		}
	}
	return out
}

// PlanEqualSplit divides total among the payer and participants.
// Names are normalized and deduplicated; the payer is always counted.
func PlanEqualSplit(payer string, participants []string, total decimal.Decimal) (SplitPlan, error) {
	payer = NormalizeUsername(payer)
	if payer == "" {
		return SplitPlan{}, &RequestError{Field: "payer", Reason: "must not be empty"}
	}
	if !total.IsPositive() {
		return SplitPlan{}, &RequestError{Field: "amount", Reason: "must be positive"}
	}

	seen := map[string]bool{payer: true}
	involved := []string{payer}
	for _, raw := range participants {
		name := NormalizeUsername(raw)
		if name == "" {
			return SplitPlan{}, &RequestError{Field: "participants", Reason: "contains an empty name"}
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		involved = append(involved, name)
	}
	if len(involved) < 2 {
		return SplitPlan{}, &RequestError{Field: "participants", Reason: "nobody besides the payer"}
	}
	sort.Strings(involved)

	count := decimal.NewFromInt(int64(len(involved)))
	share := RoundAmount(total.Div(count))
	if !share.IsPositive() {
		return SplitPlan{}, &RequestError{Field: "amount", Reason: "too small to split"}
	}

	return SplitPlan{
		Payer:        payer,
		Participants: involved,
		Total:        total,
		Share:        share,
		Remainder:    total.Sub(share.Mul(count)),
	}, nil
}
