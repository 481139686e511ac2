package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rebal/internal/logger"
	"rebal/internal/pkg/circuit"
)

// 中文说明：
// httpClient 是 Allocator/Forecaster 共用的 HTTP 外呼底座：
// 统一超时、429/5xx 有限重试（支持 Retry-After + 指数退避）、熔断、
// 以及请求/响应的流水落盘（授权头掩码后才打日志）。

// DefaultTimeout Oracle 外呼的默认上限。
const DefaultTimeout = 30 * time.Second

// CallLog 是一次外呼的审计摘要，交给 Recorder 落盘。
type CallLog struct {
	Oracle     string
	URL        string
	CampaignID string
	Request    string
	Response   string
	Error      string
	Timestamp  int64
	DurationMs int64
}

// CallRecorder 由上层注入，用于把外呼摘要写进审计存储。
type CallRecorder func(ctx context.Context, log CallLog)

// ClientConfig 描述一个 Oracle HTTP 端点的访问方式。
type ClientConfig struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	// MaxRetries 为 0 时默认重试 2 次（仅 429/5xx）。
	MaxRetries   int
	ExtraHeaders map[string]string
	Recorder     CallRecorder
}

type httpClient struct {
	name    string
	cfg     ClientConfig
	httpc   *http.Client
	breaker *circuit.CircuitBreaker
}

func newHTTPClient(name string, cfg ClientConfig) *httpClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &httpClient{
		name:    name,
		cfg:     cfg,
		httpc:   &http.Client{Timeout: cfg.Timeout},
		breaker: circuit.NewCircuitBreaker(name, 5, cfg.Timeout),
	}
}

// post 负责单个端点的调用；返回已读完的响应体。
// 任何传输层失败都会折叠进 ErrUnavailable。
// campaignID 仅用于审计流水归属，可为空（如预测调用）。
func (c *httpClient) post(ctx context.Context, path, campaignID string, payload any) ([]byte, error) {
	start := time.Now()
	raw, err := c.doPost(ctx, path, payload)
	if c.cfg.Recorder != nil {
		log := CallLog{
			Oracle:     c.name,
			URL:        strings.TrimRight(c.cfg.BaseURL, "/") + path,
			CampaignID: campaignID,
			Timestamp:  start.UnixMilli(),
			DurationMs: time.Since(start).Milliseconds(),
			Response:   string(raw),
		}
		if body, merr := json.Marshal(payload); merr == nil {
			log.Request = string(body)
		}
		if err != nil {
			log.Error = err.Error()
		}
		c.cfg.Recorder(ctx, log)
	}
	return raw, err
}

func (c *httpClient) doPost(ctx context.Context, path string, payload any) ([]byte, error) {
	if !c.breaker.Allow() {
		return nil, fmt.Errorf("%w: %s 熔断开启中", ErrUnavailable, c.name)
	}
	url := strings.TrimRight(c.cfg.BaseURL, "/") + path
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}
	logger.LogOracleRequest(c.name, url, string(body))
	logger.Debugf("[oracle] 请求: POST %s, headers=%v", url, c.maskedHeaders())

	maxRetries := c.cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 2
	}
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}
		for k, v := range c.cfg.ExtraHeaders {
			req.Header.Set(k, v)
		}

		resp, err := c.httpc.Do(req)
		if err != nil {
			c.breaker.RecordFailure()
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		raw, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			c.breaker.RecordFailure()
			return nil, fmt.Errorf("%w: 读取响应失败: %v", ErrUnavailable, readErr)
		}
		logger.LogOracleResponse(c.name, string(raw))

		if resp.StatusCode/100 == 2 {
			c.breaker.RecordSuccess()
			return raw, nil
		}
		msg := extractErrorMessage(raw)
		if msg == "" {
			msg = resp.Status
		}
		lastErr = fmt.Errorf("%w: status=%d: %s", ErrUnavailable, resp.StatusCode, msg)
		if !retryableStatus(resp.StatusCode) || attempt >= maxRetries {
			break
		}
		wait := retryAfter(resp)
		if wait == 0 {
			// 基本指数退避：0.8s, 1.6s, 3.2s ...
			wait = 800 * time.Millisecond << attempt
			if wait > 8*time.Second {
				wait = 8 * time.Second
			}
		}
		select {
		case <-ctx.Done():
			c.breaker.RecordFailure()
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		case <-time.After(wait):
		}
	}
	c.breaker.RecordFailure()
	return nil, lastErr
}

func (c *httpClient) maskedHeaders() map[string]string {
	out := map[string]string{"Content-Type": "application/json"}
	if c.cfg.APIKey != "" {
		out["Authorization"] = "Bearer ****" + tail4(c.cfg.APIKey)
	}
	for k, v := range c.cfg.ExtraHeaders {
		lk := strings.ToLower(k)
		if strings.Contains(lk, "key") || strings.Contains(lk, "token") || strings.Contains(lk, "auth") {
			v = "****" + tail4(v)
		}
		out[k] = v
	}
	return out
}

func tail4(s string) string {
	if len(s) > 4 {
		return s[len(s)-4:]
	}
	return s
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func retryAfter(resp *http.Response) time.Duration {
	ra := resp.Header.Get("Retry-After")
	if ra == "" {
		return 0
	}
	secs, err := strconv.Atoi(ra)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func extractErrorMessage(raw []byte) string {
	var eresp struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(raw, &eresp)
	return strings.TrimSpace(eresp.Error)
}
