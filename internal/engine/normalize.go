package engine

import "math"

// 中文说明：
// 约束归一化：把 Oracle 的原始建议预算压进 [min,max] 区间，
// 并用水位填充（water-filling）把总和精确调整到 total。
// 朴素的线性 rescale（allocated *= total/Σ）会把已截断的变体重新推出边界，
// 这里通过迭代重分配避免该问题：每轮至少钉死一个变体，最多 n 轮收敛。

// Epsilon 金额比较精度（货币单位）。
const Epsilon = 1e-6

// Normalize 返回可行分配与可行性标记。
// 约束集不可行时返回尽力分配与 false，调用方据此区分
// “跑完但约束无法全部满足”与“完全没跑”。
// Σmin > total 时全员钉在 min 后按比例压缩到 total（逐项低于下界但总和守恒）；
// Σmax < total 时停在全员 max 的饱和分配上（上界不可突破，总和不足）。
func Normalize(raw []RawAllocation, bounds BoundSet, total float64) ([]FeasibleAllocation, bool) {
	n := len(raw)
	if n == 0 {
		return []FeasibleAllocation{}, true
	}

	mins := make([]float64, n)
	maxs := make([]float64, n)
	alloc := make([]float64, n)
	for i, r := range raw {
		bd := bounds.For(r.VariantID)
		mins[i] = bd.Min
		maxs[i] = math.Inf(1)
		if bd.Max != nil {
			maxs[i] = *bd.Max
		}
		alloc[i] = clamp(r.RecommendedBudget, mins[i], maxs[i])
	}

	feasible := waterFill(alloc, mins, maxs, total)
	if !feasible {
		if s := sum(alloc); s > total+Epsilon && s > Epsilon {
			// 下界冲突：压缩比例对全员一致，预算池总量保持精确
			factor := total / s
			for i := range alloc {
				alloc[i] *= factor
			}
		}
	}

	out := make([]FeasibleAllocation, n)
	for i, r := range raw {
		out[i] = FeasibleAllocation{
			VariantID:       r.VariantID,
			AllocatedBudget: alloc[i],
			OriginalBudget:  r.RecommendedBudget,
		}
	}
	return out, feasible
}

// waterFill 就地调整 alloc 使 Σalloc == total（Epsilon 内）。
// 每轮把差额按比例摊给未饱和的变体；新越界的变体钉在边界上，进入下一轮。
// 不变式：每轮至少一个变体被永久钉死，故最多 len(alloc) 轮终止。
func waterFill(alloc, mins, maxs []float64, total float64) bool {
	n := len(alloc)
	for iter := 0; iter <= n; iter++ {
		deficit := total - sum(alloc)
		if math.Abs(deficit) <= Epsilon {
			return true
		}
		if deficit > 0 {
			if !spreadSurplus(alloc, maxs, deficit) {
				// 全部顶到 max 仍装不下：Σmax < total
				return false
			}
		} else {
			if !drainExcess(alloc, mins, -deficit) {
				// 全部压到 min 仍超额：Σmin > total
				return false
			}
		}
	}
	return math.Abs(total-sum(alloc)) <= Epsilon
}

// spreadSurplus 把 surplus 按当前值加权摊给未到 max 的变体。
// 返回 false 表示已无可加仓的变体。
func spreadSurplus(alloc, maxs []float64, surplus float64) bool {
	var weight float64
	open := 0
	for i := range alloc {
		if alloc[i] < maxs[i]-Epsilon {
			weight += alloc[i]
			open++
		}
	}
	if open == 0 {
		return false
	}
	for i := range alloc {
		if alloc[i] >= maxs[i]-Epsilon {
			continue
		}
		var share float64
		if weight > Epsilon {
			share = surplus * alloc[i] / weight
		} else {
			// 候选全为 0 时退化为均摊
			share = surplus / float64(open)
		}
		alloc[i] = math.Min(alloc[i]+share, maxs[i])
	}
	return true
}

// drainExcess 把 excess 按照高出 min 的余量加权从变体上扣除。
// 余量加权保证单轮扣除绝不穿透 min；穿透只会以“钉在 min 上”的形式出现在下一轮。
func drainExcess(alloc, mins []float64, excess float64) bool {
	var headroom float64
	open := 0
	for i := range alloc {
		if alloc[i] > mins[i]+Epsilon {
			headroom += alloc[i] - mins[i]
			open++
		}
	}
	if open == 0 {
		return false
	}
	for i := range alloc {
		room := alloc[i] - mins[i]
		if room <= Epsilon {
			continue
		}
		share := excess * room / headroom
		alloc[i] = math.Max(alloc[i]-share, mins[i])
	}
	return true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func sum(vs []float64) float64 {
	var t float64
	for _, v := range vs {
		t += v
	}
	return t
}
