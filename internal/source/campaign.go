package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"rebal/internal/engine"
	"rebal/internal/logger"
)

// 中文说明：
// CampaignSource 为定时再分配提供活动的实时表现快照。
// 手动触发的 /analyze 请求自带数据，不经过这里。

// Snapshot 单个活动的当前状态：变体表现 + 总预算。
type Snapshot struct {
	CampaignID  string           `json:"campaign_id"`
	TotalBudget float64          `json:"total_budget"`
	Variants    []engine.Variant `json:"variants"`
}

// CampaignSource 活动数据来源。
type CampaignSource interface {
	Fetch(ctx context.Context, campaignID string) (Snapshot, error)
}

// HTTPSource 从营销平台 API 拉取活动表现。
type HTTPSource struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

// Config HTTPSource 的连接参数。
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func NewHTTPSource(cfg Config) *HTTPSource {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &HTTPSource{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpc:   &http.Client{Timeout: cfg.Timeout},
	}
}

var _ CampaignSource = (*HTTPSource)(nil)

// Fetch 拉取单个活动的表现快照。
func (s *HTTPSource) Fetch(ctx context.Context, campaignID string) (Snapshot, error) {
	var zero Snapshot
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return zero, fmt.Errorf("campaign_id 不能为空")
	}
	endpoint := fmt.Sprintf("%s/campaigns/%s/performance", s.baseURL, url.PathEscape(campaignID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return zero, err
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	resp, err := s.httpc.Do(req)
	if err != nil {
		return zero, fmt.Errorf("拉取活动 %s 失败: %w", campaignID, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, fmt.Errorf("读取活动 %s 响应失败: %w", campaignID, err)
	}
	if resp.StatusCode/100 != 2 {
		return zero, fmt.Errorf("拉取活动 %s 失败: status=%d", campaignID, resp.StatusCode)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return zero, fmt.Errorf("解析活动 %s 响应失败: %w", campaignID, err)
	}
	if snap.CampaignID == "" {
		snap.CampaignID = campaignID
	}
	logger.Debugf("[source] 活动 %s 快照: %d 个变体, 总预算 %.2f", campaignID, len(snap.Variants), snap.TotalBudget)
	return snap, nil
}
