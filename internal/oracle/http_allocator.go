package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// HTTPAllocator 通过 REST 调用远端分配算法服务（如多臂赌博机优化器）。
type HTTPAllocator struct {
	client *httpClient
	path   string
}

// NewHTTPAllocator 构建分配 Oracle 客户端。path 为空时默认 /allocate。
func NewHTTPAllocator(cfg ClientConfig, path string) *HTTPAllocator {
	if strings.TrimSpace(path) == "" {
		path = "/allocate"
	}
	return &HTTPAllocator{client: newHTTPClient("allocator", cfg), path: path}
}

func (a *HTTPAllocator) Allocate(ctx context.Context, req AllocateRequest) (AllocateResponse, error) {
	raw, err := a.client.post(ctx, a.path, req.CampaignID, req)
	if err != nil {
		return AllocateResponse{}, err
	}
	if err := validateResponseBody(allocateSchema, raw); err != nil {
		return AllocateResponse{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var resp AllocateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return AllocateResponse{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
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

var _ Allocator = (*HTTPAllocator)(nil)
