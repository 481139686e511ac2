package gormstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"rebal/internal/engine"
	"rebal/internal/history"
)

// GormStore 基于 Gorm + SQLite 实现预算调整运行记录的持久化账本。
// 仅追加写入，不提供更新或删除。
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 初始化账本存储并完成迁移。
func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: 账本路径不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&reallocationRunModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: allow a small amount of parallelism for concurrent HTTP reads
	// while keeping lock contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SQLDB exposes the underlying *sql.DB for shared connections.
func (s *GormStore) SQLDB() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	return s.db.DB()
}

var _ history.Ledger = (*GormStore)(nil)

// Append 追加一条运行记录。账本是只追加的，重复的 run_id 视为错误。
func (s *GormStore) Append(ctx context.Context, res engine.ReallocationResult) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store 未初始化")
	}
	model, err := newReallocationRunModel(res)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// List 按写入顺序返回运行记录，可选按 campaign_id 过滤并分页。
func (s *GormStore) List(ctx context.Context, q history.Query) ([]engine.ReallocationResult, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	query := s.db.WithContext(ctx).Model(&reallocationRunModel{}).Order("id ASC")
	if cid := strings.TrimSpace(q.CampaignID); cid != "" {
		query = query.Where("campaign_id = ?", cid)
	}
	if q.Offset > 0 {
		query = query.Offset(q.Offset)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	var models []reallocationRunModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]engine.ReallocationResult, 0, len(models))
	for _, m := range models {
		res, err := reallocationRunModelToResult(m)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

// Count 返回账本中的记录总数，可选按 campaign_id 过滤。
func (s *GormStore) Count(ctx context.Context, campaignID string) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("gorm store 未初始化")
	}
	query := s.db.WithContext(ctx).Model(&reallocationRunModel{})
	if cid := strings.TrimSpace(campaignID); cid != "" {
		query = query.Where("campaign_id = ?", cid)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, err
	}
	return int(total), nil
}

// --------------------------- Model ------------------------------------

type reallocationRunModel struct {
	ID           int64          `gorm:"column:id;primaryKey"`
	RunID        string         `gorm:"column:run_id;uniqueIndex"`
	CampaignID   string         `gorm:"column:campaign_id;index"`
	TotalBudget  float64        `gorm:"column:total_budget"`
	Algorithm    string         `gorm:"column:algorithm"`
	Feasible     bool           `gorm:"column:feasible"`
	Allocations  datatypes.JSON `gorm:"column:allocations"`
	Actions      datatypes.JSON `gorm:"column:actions"`
	Applied      datatypes.JSON `gorm:"column:applied"`
	TimestampMs  int64          `gorm:"column:run_ts;index"`
	CreatedAtMs  int64          `gorm:"column:created_at"`
}

func (reallocationRunModel) TableName() string { return "reallocation_runs" }

func newReallocationRunModel(res engine.ReallocationResult) (reallocationRunModel, error) {
	allocs, err := json.Marshal(res.Allocations)
	if err != nil {
		return reallocationRunModel{}, fmt.Errorf("序列化 allocations 失败: %w", err)
	}
	actions, err := json.Marshal(res.Actions)
	if err != nil {
		return reallocationRunModel{}, fmt.Errorf("序列化 actions 失败: %w", err)
	}
	model := reallocationRunModel{
		RunID:       strings.TrimSpace(res.ID),
		CampaignID:  strings.TrimSpace(res.CampaignID),
		TotalBudget: res.TotalBudget,
		Algorithm:   strings.TrimSpace(res.Algorithm),
		Feasible:    res.Feasible,
		Allocations: datatypes.JSON(allocs),
		Actions:     datatypes.JSON(actions),
		TimestampMs: res.Timestamp.UnixMilli(),
		CreatedAtMs: time.Now().UnixMilli(),
	}
	if res.Applied != nil {
		applied, err := json.Marshal(res.Applied)
		if err != nil {
			return reallocationRunModel{}, fmt.Errorf("序列化 applied 失败: %w", err)
		}
		model.Applied = datatypes.JSON(applied)
	}
	return model, nil
}

func reallocationRunModelToResult(m reallocationRunModel) (engine.ReallocationResult, error) {
	res := engine.ReallocationResult{
		ID:          m.RunID,
		CampaignID:  m.CampaignID,
		TotalBudget: m.TotalBudget,
		Algorithm:   m.Algorithm,
		Feasible:    m.Feasible,
		Timestamp:   time.UnixMilli(m.TimestampMs),
	}
	if len(m.Allocations) > 0 {
		if err := json.Unmarshal(m.Allocations, &res.Allocations); err != nil {
			return engine.ReallocationResult{}, fmt.Errorf("解析 allocations 失败: %w", err)
		}
	}
	if len(m.Actions) > 0 {
		if err := json.Unmarshal(m.Actions, &res.Actions); err != nil {
			return engine.ReallocationResult{}, fmt.Errorf("解析 actions 失败: %w", err)
		}
	}
	if len(m.Applied) > 0 {
		var applied engine.ApplyOutcome
		if err := json.Unmarshal(m.Applied, &applied); err != nil {
			return engine.ReallocationResult{}, fmt.Errorf("解析 applied 失败: %w", err)
		}
		res.Applied = &applied
	}
	return res, nil
}
