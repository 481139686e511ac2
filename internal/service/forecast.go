package service

import (
	"context"
	"fmt"

	"rebal/internal/engine"
	"rebal/internal/oracle"
)

// DefaultForecastDays 请求未指定预测天数时的默认值。
const DefaultForecastDays = 7

// ForecastRequest 预测管线入参。
type ForecastRequest struct {
	HistoricalData []engine.DataPoint
	DaysAhead      int
}

// Forecast 纯委托 Forecaster：不重试、不写台账。预测不是再分配事件。
func (o *Orchestrator) Forecast(ctx context.Context, req ForecastRequest) (engine.ForecastResult, error) {
	var zero engine.ForecastResult
	if o.forecaster == nil {
		return zero, fmt.Errorf("%w: 未配置 forecaster", oracle.ErrUnavailable)
	}
	if len(req.HistoricalData) == 0 {
		return zero, fmt.Errorf("%w: historical_data 不能为空", ErrInvalidRequest)
	}
	days := req.DaysAhead
	if days <= 0 {
		days = DefaultForecastDays
	}

	octx, cancel := context.WithTimeout(ctx, o.cfg.OracleTimeout)
	defer cancel()
	resp, err := o.forecaster.Forecast(octx, oracle.ForecastRequest{
		HistoricalData: req.HistoricalData,
		DaysAhead:      days,
	})
	if err != nil {
		return zero, fmt.Errorf("forecaster 调用失败: %w", err)
	}
	return engine.ForecastResult{
		Forecast:     resp.Forecast,
		ForecastDays: resp.ForecastDays,
		Summary:      resp.Summary,
	}, nil
}
