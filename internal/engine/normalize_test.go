package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func maxPtr(v float64) *float64 { return &v }

func totalOf(allocs []FeasibleAllocation) float64 {
	var t float64
	for _, a := range allocs {
		t += a.AllocatedBudget
	}
	return t
}

func TestNormalize_PassThroughWhenAlreadyFeasible(t *testing.T) {
	raw := []RawAllocation{
		{VariantID: "A", RecommendedBudget: 150},
		{VariantID: "B", RecommendedBudget: 50},
	}
	bounds := BoundSet{Default: Bound{Min: 50}}

	allocs, feasible := Normalize(raw, bounds, 200)
	require.True(t, feasible)
	require.Len(t, allocs, 2)
	assert.InDelta(t, 150, allocs[0].AllocatedBudget, Epsilon)
	assert.InDelta(t, 50, allocs[1].AllocatedBudget, Epsilon)
	assert.Equal(t, 150.0, allocs[0].OriginalBudget)
}

func TestNormalize_SumInvariant(t *testing.T) {
	cases := []struct {
		name  string
		raw   []RawAllocation
		b     BoundSet
		total float64
	}{
		{
			name: "oracle sum drifts above total",
			raw: []RawAllocation{
				{VariantID: "A", RecommendedBudget: 120},
				{VariantID: "B", RecommendedBudget: 95},
			},
			b:     BoundSet{Default: Bound{Min: 10}},
			total: 200,
		},
		{
			name: "min clamp adds budget back",
			raw: []RawAllocation{
				{VariantID: "A", RecommendedBudget: 10},
				{VariantID: "B", RecommendedBudget: 190},
			},
			b:     BoundSet{Default: Bound{Min: 50}},
			total: 200,
		},
		{
			name: "max clamp removes budget",
			raw: []RawAllocation{
				{VariantID: "A", RecommendedBudget: 180},
				{VariantID: "B", RecommendedBudget: 20},
				{VariantID: "C", RecommendedBudget: 0},
			},
			b:     BoundSet{Default: Bound{Min: 0, Max: maxPtr(120)}},
			total: 200,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			allocs, feasible := Normalize(tc.raw, tc.b, tc.total)
			require.True(t, feasible)
			assert.InDelta(t, tc.total, totalOf(allocs), Epsilon)
			for _, a := range allocs {
				bd := tc.b.For(a.VariantID)
				assert.GreaterOrEqual(t, a.AllocatedBudget, bd.Min-Epsilon)
				if bd.Max != nil {
					assert.LessOrEqual(t, a.AllocatedBudget, *bd.Max+Epsilon)
				}
			}
		})
	}
}

// 重分配不得把已截断的变体重新推出边界（朴素线性 rescale 的缺陷）。
func TestNormalize_RedistributionRespectsBounds(t *testing.T) {
	raw := []RawAllocation{
		{VariantID: "A", RecommendedBudget: 500},
		{VariantID: "B", RecommendedBudget: 100},
		{VariantID: "C", RecommendedBudget: 100},
	}
	bounds := BoundSet{Default: Bound{Min: 0, Max: maxPtr(300)}}

	allocs, feasible := Normalize(raw, bounds, 700)
	require.True(t, feasible)
	assert.InDelta(t, 700, totalOf(allocs), Epsilon)
	// A 钉在 max=300，剩余 400 按比例摊给 B/C（各 200，均 <= 300）
	assert.InDelta(t, 300, allocs[0].AllocatedBudget, Epsilon)
	assert.InDelta(t, 200, allocs[1].AllocatedBudget, Epsilon)
	assert.InDelta(t, 200, allocs[2].AllocatedBudget, Epsilon)
}

func TestNormalize_InfeasibleMinSum(t *testing.T) {
	raw := []RawAllocation{
		{VariantID: "A", RecommendedBudget: 70},
		{VariantID: "B", RecommendedBudget: 70},
		{VariantID: "C", RecommendedBudget: 60},
	}
	// Σmin = 240 > total = 200
	bounds := BoundSet{Default: Bound{Min: 80}}

	allocs, feasible := Normalize(raw, bounds, 200)
	assert.False(t, feasible)
	// 尽力分配：全员钉 min 后按比例压缩，逐项 < 80 且总和仍为 total
	var total float64
	for _, a := range allocs {
		assert.InDelta(t, 200.0/3, a.AllocatedBudget, Epsilon)
		assert.Less(t, a.AllocatedBudget, 80.0)
		total += a.AllocatedBudget
	}
	assert.InDelta(t, 200, total, Epsilon)
}

func TestNormalize_InfeasibleMaxSum(t *testing.T) {
	raw := []RawAllocation{
		{VariantID: "A", RecommendedBudget: 10},
		{VariantID: "B", RecommendedBudget: 10},
	}
	// Σmax = 100 < total = 300
	bounds := BoundSet{Default: Bound{Min: 0, Max: maxPtr(50)}}

	allocs, feasible := Normalize(raw, bounds, 300)
	assert.False(t, feasible)
	for _, a := range allocs {
		assert.InDelta(t, 50, a.AllocatedBudget, Epsilon)
	}
}

func TestNormalize_SingleVariant(t *testing.T) {
	bounds := BoundSet{Default: Bound{Min: 50}}

	allocs, feasible := Normalize([]RawAllocation{{VariantID: "A", RecommendedBudget: 40}}, bounds, 50)
	require.True(t, feasible)
	assert.InDelta(t, 50, allocs[0].AllocatedBudget, Epsilon)
	assert.Equal(t, 40.0, allocs[0].OriginalBudget)

	// clamp(total) != total ⇒ 不可行
	_, feasible = Normalize([]RawAllocation{{VariantID: "A", RecommendedBudget: 40}}, bounds, 30)
	assert.False(t, feasible)
}

func TestNormalize_ZeroVariants(t *testing.T) {
	allocs, feasible := Normalize(nil, BoundSet{}, 100)
	assert.True(t, feasible)
	assert.Empty(t, allocs)
}

// 对自身输出再跑一遍应是不动点。
func TestNormalize_Idempotent(t *testing.T) {
	raw := []RawAllocation{
		{VariantID: "A", RecommendedBudget: 170},
		{VariantID: "B", RecommendedBudget: 20},
		{VariantID: "C", RecommendedBudget: 55},
	}
	bounds := BoundSet{Default: Bound{Min: 30, Max: maxPtr(150)}}

	first, feasible := Normalize(raw, bounds, 245)
	require.True(t, feasible)

	again := make([]RawAllocation, len(first))
	for i, a := range first {
		again[i] = RawAllocation{VariantID: a.VariantID, RecommendedBudget: a.AllocatedBudget}
	}
	second, feasible2 := Normalize(again, bounds, 245)
	require.True(t, feasible2)
	for i := range first {
		assert.InDelta(t, first[i].AllocatedBudget, second[i].AllocatedBudget, Epsilon)
	}
}

func TestNormalize_PerVariantOverrides(t *testing.T) {
	raw := []RawAllocation{
		{VariantID: "hero", RecommendedBudget: 10},
		{VariantID: "tail", RecommendedBudget: 190},
	}
	bounds := BoundSet{
		Default:    Bound{Min: 0},
		PerVariant: map[string]Bound{"hero": {Min: 100}},
	}

	allocs, feasible := Normalize(raw, bounds, 200)
	require.True(t, feasible)
	assert.InDelta(t, 200, totalOf(allocs), Epsilon)
	assert.GreaterOrEqual(t, allocs[0].AllocatedBudget, 100-Epsilon)
}

func TestNormalize_AllZeroRecommendations(t *testing.T) {
	raw := []RawAllocation{
		{VariantID: "A", RecommendedBudget: 0},
		{VariantID: "B", RecommendedBudget: 0},
	}
	allocs, feasible := Normalize(raw, BoundSet{Default: Bound{Min: 0}}, 100)
	require.True(t, feasible)
	assert.InDelta(t, 100, totalOf(allocs), Epsilon)
	// 权重全为 0 时均摊
	assert.InDelta(t, 50, allocs[0].AllocatedBudget, Epsilon)
	assert.False(t, math.Signbit(allocs[1].AllocatedBudget))
}
