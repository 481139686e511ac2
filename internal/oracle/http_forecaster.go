package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// HTTPForecaster 通过 REST 调用远端预测服务。与 Allocator 相互独立。
type HTTPForecaster struct {
	client *httpClient
	path   string
}

// NewHTTPForecaster 构建预测 Oracle 客户端。path 为空时默认 /forecast。
func NewHTTPForecaster(cfg ClientConfig, path string) *HTTPForecaster {
	if strings.TrimSpace(path) == "" {
		path = "/forecast"
	}
	return &HTTPForecaster{client: newHTTPClient("forecaster", cfg), path: path}
}

func (f *HTTPForecaster) Forecast(ctx context.Context, req ForecastRequest) (ForecastResponse, error) {
	raw, err := f.client.post(ctx, f.path, "", req)
	if err != nil {
		return ForecastResponse{}, err
	}
	if err := validateResponseBody(forecastSchema, raw); err != nil {
		return ForecastResponse{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var resp ForecastResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return ForecastResponse{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !resp.Success {
		msg := strings.TrimSpace(resp.Error)
		if msg == "" {
			msg = "unspecified"
		}
		return resp, fmt.Errorf("%w: %s", ErrRejected, msg)
	}
	return resp, nil
}

var _ Forecaster = (*HTTPForecaster)(nil)
