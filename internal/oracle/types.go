package oracle

import (
	"context"
	"errors"

	"rebal/internal/engine"
)

// 中文说明：
// Oracle 是引擎的两个外部协作方：Allocator（分配算法）与 Forecaster（预测）。
// 二者彼此独立、无共享状态；引擎把它们当作不透明、可能失败的黑盒。

var (
	// ErrUnavailable 网络/超时类失败：调用没有得到 Oracle 的有效应答。
	ErrUnavailable = errors.New("oracle unavailable")
	// ErrRejected Oracle 应答了但报告 success=false。
	ErrRejected = errors.New("oracle rejected request")
)

// AllocateRequest 发给 Allocator 的载荷。Variants 原样透传，引擎不解读指标。
type AllocateRequest struct {
	CampaignID  string           `json:"campaign_id,omitempty"`
	Variants    []engine.Variant `json:"variants"`
	TotalBudget float64          `json:"total_budget"`
	Method      string           `json:"method"`
}

// AllocateResponse Allocator 的应答。
type AllocateResponse struct {
	Success     bool                   `json:"success"`
	Allocations []engine.RawAllocation `json:"allocations"`
	Algorithm   string                 `json:"algorithm"`
	Error       string                 `json:"error,omitempty"`
}

// Allocator 分配算法黑盒。实现必须尊重 ctx 的超时/取消。
type Allocator interface {
	Allocate(ctx context.Context, req AllocateRequest) (AllocateResponse, error)
}

// ForecastRequest 发给 Forecaster 的载荷。
type ForecastRequest struct {
	HistoricalData []engine.DataPoint `json:"historical_data"`
	DaysAhead      int                `json:"days_ahead"`
}

// ForecastResponse Forecaster 的应答。
type ForecastResponse struct {
	Success      bool                   `json:"success"`
	Forecast     []engine.ForecastPoint `json:"forecast"`
	ForecastDays int                    `json:"forecast_days"`
	Summary      engine.ForecastSummary `json:"summary"`
	Error        string                 `json:"error,omitempty"`
}

// Forecaster 预测黑盒。
type Forecaster interface {
	Forecast(ctx context.Context, req ForecastRequest) (ForecastResponse, error)
}
