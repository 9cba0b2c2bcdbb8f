package service

import (
	"sort"

	"github.com/shopspring/decimal"
)

// splitAmount divides total across weights with the largest-remainder
// method: every share is floor(total*w/W), and the leftover cents go one
// each to the largest fractional remainders (earlier index wins ties).  The
// shares always sum to total.  Zero total weight falls back to equal
// weights.
func splitAmount(total int64, weights []decimal.Decimal) []int64 {
	out := make([]int64, len(weights))
	if len(weights) == 0 || total <= 0 {
		return out
	}

	sum := decimal.Zero
	for _, w := range weights {
		if w.IsPositive() {
			sum = sum.Add(w)
		}
	}
	if !sum.IsPositive() {
		eq := make([]decimal.Decimal, len(weights))
		for i := range eq {
			eq[i] = decimal.NewFromInt(1)
		}
		return splitAmount(total, eq)
	}

	type rem struct {
		idx int
		r   decimal.Decimal
	}
	rems := make([]rem, len(weights))
	t := decimal.NewFromInt(total)
	assigned := int64(0)
	for i, w := range weights {
		if !w.IsPositive() {
			rems[i] = rem{idx: i, r: decimal.Zero}
			continue
		}
		q, r := t.Mul(w).QuoRem(sum, 0)
		out[i] = q.IntPart()
		assigned += out[i]
		rems[i] = rem{idx: i, r: r}
	}

	sort.SliceStable(rems, func(a, b int) bool { return rems[a].r.GreaterThan(rems[b].r) })
	for left, k := total-assigned, 0; left > 0; left, k = left-1, k+1 {
		out[rems[k%len(rems)].idx]++
	}
	return out
}
