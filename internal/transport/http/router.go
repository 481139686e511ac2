package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"rebal/internal/engine"
	"rebal/internal/history"
	"rebal/internal/logger"
	"rebal/internal/oracle"
	"rebal/internal/report"
	"rebal/internal/service"
	"rebal/internal/store/oraclelog"
)

// Router 暴露再分配相关接口（分析/预测/历史/审计）。
type Router struct {
	orch       *service.Orchestrator
	oracleLogs *oraclelog.Store
}

func NewRouter(orch *service.Orchestrator, logs *oraclelog.Store) *Router {
	return &Router{orch: orch, oracleLogs: logs}
}

// Register 将路由挂载到给定分组下。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.POST("/analyze", r.handleAnalyze)
	group.POST("/forecast", r.handleForecast)
	group.POST("/forecast/chart", r.handleForecastChart)
	group.GET("/history", r.handleHistory)
	group.GET("/history/chart", r.handleHistoryChart)
	group.GET("/oracle-logs", r.handleOracleLogs)
}

// analyzeRequest 与原有仪表盘的调用约定保持兼容：
// conversions/impressions 可平铺在变体上，也可放进 metrics。
type analyzeRequest struct {
	CampaignData struct {
		CampaignID string           `json:"campaign_id"`
		Variants   []analyzeVariant `json:"variants"`
	} `json:"campaign_data"`
	TotalBudget         float64  `json:"total_budget"`
	Method              string   `json:"method"`
	AutoApply           bool     `json:"auto_apply"`
	MinBudgetPerVariant *float64 `json:"min_budget_per_variant"`
	MaxBudgetPerVariant *float64 `json:"max_budget_per_variant"`
}

type analyzeVariant struct {
	VariantID     string             `json:"variant_id"`
	CurrentBudget float64            `json:"current_budget"`
	Conversions   *float64           `json:"conversions"`
	Impressions   *float64           `json:"impressions"`
	Metrics       map[string]float64 `json:"metrics"`
}

func (v analyzeVariant) toEngine() engine.Variant {
	metrics := make(map[string]float64, len(v.Metrics)+2)
	for k, val := range v.Metrics {
		metrics[k] = val
	}
	if v.Conversions != nil {
		metrics["conversions"] = *v.Conversions
	}
	if v.Impressions != nil {
		metrics["impressions"] = *v.Impressions
	}
	if len(metrics) == 0 {
		metrics = nil
	}
	return engine.Variant{VariantID: v.VariantID, CurrentBudget: v.CurrentBudget, Metrics: metrics}
}

func (req analyzeRequest) toService() service.ReallocateRequest {
	variants := make([]engine.Variant, 0, len(req.CampaignData.Variants))
	for _, v := range req.CampaignData.Variants {
		variants = append(variants, v.toEngine())
	}
	out := service.ReallocateRequest{
		CampaignData: engine.CampaignData{
			CampaignID: strings.TrimSpace(req.CampaignData.CampaignID),
			Variants:   variants,
		},
		TotalBudget: req.TotalBudget,
		Method:      strings.TrimSpace(req.Method),
		AutoApply:   req.AutoApply,
	}
	if req.MinBudgetPerVariant != nil || req.MaxBudgetPerVariant != nil {
		bounds := engine.BoundSet{}
		if req.MinBudgetPerVariant != nil {
			bounds.Default.Min = *req.MinBudgetPerVariant
		}
		if req.MaxBudgetPerVariant != nil && *req.MaxBudgetPerVariant > 0 {
			max := *req.MaxBudgetPerVariant
			bounds.Default.Max = &max
		}
		out.Bounds = &bounds
	}
	return out
}

func (r *Router) handleAnalyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body: " + err.Error()})
		return
	}
	res, err := r.orch.Reallocate(c.Request.Context(), req.toService())
	if err != nil {
		r.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": res})
}

type forecastRequest struct {
	HistoricalData []engine.DataPoint `json:"historical_data"`
	DaysAhead      int                `json:"days_ahead"`
}

func (r *Router) handleForecast(c *gin.Context) {
	var req forecastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body: " + err.Error()})
		return
	}
	res, err := r.orch.Forecast(c.Request.Context(), service.ForecastRequest{
		HistoricalData: req.HistoricalData,
		DaysAhead:      req.DaysAhead,
	})
	if err != nil {
		r.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"forecast":      res.Forecast,
		"forecast_days": res.ForecastDays,
		"summary":       res.Summary,
	})
}

func (r *Router) handleForecastChart(c *gin.Context) {
	var req forecastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body: " + err.Error()})
		return
	}
	res, err := r.orch.Forecast(c.Request.Context(), service.ForecastRequest{
		HistoricalData: req.HistoricalData,
		DaysAhead:      req.DaysAhead,
	})
	if err != nil {
		r.writeError(c, err)
		return
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := report.RenderForecast(c.Writer, res); err != nil {
		logger.Errorf("[api] forecast chart render failed: %v", err)
	}
}

func (r *Router) handleHistory(c *gin.Context) {
	q := parseHistoryQuery(c)
	runs, err := r.orch.History(c.Request.Context(), q)
	if err != nil {
		logger.Errorf("[api] history list failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(runs), "runs": runs})
}

func (r *Router) handleHistoryChart(c *gin.Context) {
	q := parseHistoryQuery(c)
	runs, err := r.orch.History(c.Request.Context(), q)
	if err != nil {
		logger.Errorf("[api] history chart failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	if len(runs) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "no reallocation runs recorded"})
		return
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := report.RenderHistory(c.Writer, q.CampaignID, runs); err != nil {
		logger.Errorf("[api] history chart render failed: %v", err)
	}
}

func (r *Router) handleOracleLogs(c *gin.Context) {
	if r.oracleLogs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "oracle 审计日志未启用"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	recs, err := r.oracleLogs.List(c.Request.Context(), oraclelog.Query{
		Oracle:     c.Query("oracle"),
		CampaignID: c.Query("campaign_id"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		logger.Errorf("[api] oracle logs list failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(recs), "logs": recs})
}

func parseHistoryQuery(c *gin.Context) history.Query {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	return history.Query{
		CampaignID: strings.TrimSpace(c.Query("campaign_id")),
		Limit:      limit,
		Offset:     offset,
	}
}

// writeError 按错误类别映射状态码：
// 入参问题 400；Oracle 拒绝 502；Oracle 不可达/超时 503。
func (r *Router) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
	case errors.Is(err, oracle.ErrRejected):
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": err.Error()})
	case errors.Is(err, oracle.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": err.Error()})
	default:
		logger.Errorf("[api] request failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
	}
}
