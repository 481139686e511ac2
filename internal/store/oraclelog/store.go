package oraclelog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store 管理 oracle 调用审计日志，方便后续排查/可视化。
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	ownsDB bool
}

// Record 代表一次 oracle 调用，持久化请求/响应摘要。
type Record struct {
	ID         int64  `json:"id"`
	Timestamp  int64  `json:"ts"`
	Oracle     string `json:"oracle"`
	URL        string `json:"url"`
	CampaignID string `json:"campaign_id,omitempty"`
	Request    string `json:"request_json"`
	Response   string `json:"response_json,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Query 用于筛选审计日志。
type Query struct {
	Oracle     string
	CampaignID string
	Limit      int
	Offset     int
}

// NewStore 初始化 SQLite 存储。
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("oracle log path 不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path, ownsDB: true}, nil
}

// UseExternalDB 允许复用外部（例如 GORM）初始化的 SQLite 连接，避免多连接锁冲突。
func (s *Store) UseExternalDB(db *sql.DB) error {
	if s == nil {
		return fmt.Errorf("oracle log store 未初始化")
	}
	if db == nil {
		return fmt.Errorf("external db 不能为空")
	}
	if err := ensureSchema(db); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownsDB && s.db != nil && s.db != db {
		_ = s.db.Close()
	}
	s.db = db
	s.ownsDB = false
	return nil
}

// Close 关闭底层 DB。
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	var err error
	if s.ownsDB {
		err = s.db.Close()
	}
	s.db = nil
	return err
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS oracle_call_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			oracle TEXT NOT NULL,
			url TEXT,
			campaign_id TEXT,
			request_json TEXT,
			response_json TEXT,
			error TEXT,
			duration_ms INTEGER,
			created_at INTEGER NOT NULL
		);
		`,
		`CREATE INDEX IF NOT EXISTS idx_oracle_call_logs_oracle_ts_id ON oracle_call_logs(oracle, ts DESC, id DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_oracle_call_logs_campaign ON oracle_call_logs(campaign_id, ts DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("oracle log schema 初始化失败: %w", err)
		}
	}
	return nil
}

// Append 写入一条调用记录。
func (s *Store) Append(ctx context.Context, rec Record) error {
	if s == nil {
		return fmt.Errorf("oracle log store 未初始化")
	}
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return fmt.Errorf("oracle log store 已关闭")
	}
	if rec.Timestamp <= 0 {
		rec.Timestamp = time.Now().UnixMilli()
	}
	_, err := db.ExecContext(ctx, `INSERT INTO oracle_call_logs
		(ts, oracle, url, campaign_id, request_json, response_json, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp,
		strings.TrimSpace(rec.Oracle),
		strings.TrimSpace(rec.URL),
		strings.TrimSpace(rec.CampaignID),
		rec.Request,
		rec.Response,
		strings.TrimSpace(rec.Error),
		rec.DurationMs,
		time.Now().UnixMilli(),
	)
	return err
}

// List 按时间倒序返回调用记录。
func (s *Store) List(ctx context.Context, q Query) ([]Record, error) {
	if s == nil {
		return nil, fmt.Errorf("oracle log store 未初始化")
	}
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, fmt.Errorf("oracle log store 已关闭")
	}
	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	var (
		conds []string
		args  []any
	)
	if oracle := strings.TrimSpace(q.Oracle); oracle != "" {
		conds = append(conds, "oracle = ?")
		args = append(args, oracle)
	}
	if cid := strings.TrimSpace(q.CampaignID); cid != "" {
		conds = append(conds, "campaign_id = ?")
		args = append(args, cid)
	}
	query := `SELECT id, ts, oracle, url, campaign_id, request_json, response_json, error, duration_ms
		FROM oracle_call_logs`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY ts DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.Oracle, &rec.URL, &rec.CampaignID,
			&rec.Request, &rec.Response, &rec.Error, &rec.DurationMs); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
