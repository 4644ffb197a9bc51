package task

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"strings"

	"FaucetPilot/internal/cycle"
	xerrors "FaucetPilot/internal/errors"
	"FaucetPilot/internal/storage/sqldb"
)

const createRunsTableMySQL = `CREATE TABLE IF NOT EXISTS cycle_runs (
        id VARCHAR(64) PRIMARY KEY,
        address VARCHAR(42) NOT NULL,
        account_index INT NOT NULL DEFAULT 0,
        cycle_no INT NOT NULL DEFAULT 0,
        status VARCHAR(16) NOT NULL,
        error_code VARCHAR(64) DEFAULT '',
        last_error TEXT,
        points BIGINT NOT NULL DEFAULT 0,
        native_balance VARCHAR(80) NOT NULL DEFAULT '0',
        wrapped_balance VARCHAR(80) NOT NULL DEFAULT '0',
        transfers_today BIGINT NOT NULL DEFAULT 0,
        transfers INT NOT NULL DEFAULT 0,
        actions TEXT,
        started_at BIGINT NOT NULL,
        finished_at BIGINT NOT NULL,
        INDEX idx_runs_address (address),
        INDEX idx_runs_finished (finished_at)
)`

const createRunsTableSQLite = `CREATE TABLE IF NOT EXISTS cycle_runs (
        id TEXT PRIMARY KEY,
        address TEXT NOT NULL,
        account_index INTEGER NOT NULL DEFAULT 0,
        cycle_no INTEGER NOT NULL DEFAULT 0,
        status TEXT NOT NULL,
        error_code TEXT DEFAULT '',
        last_error TEXT,
        points INTEGER NOT NULL DEFAULT 0,
        native_balance TEXT NOT NULL DEFAULT '0',
        wrapped_balance TEXT NOT NULL DEFAULT '0',
        transfers_today INTEGER NOT NULL DEFAULT 0,
        transfers INTEGER NOT NULL DEFAULT 0,
        actions TEXT,
        started_at INTEGER NOT NULL,
        finished_at INTEGER NOT NULL
)`

var sqliteRunIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_runs_address ON cycle_runs (address)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_finished ON cycle_runs (finished_at)`,
}

const runColumns = `id, address, account_index, cycle_no, status, error_code, last_error, points,
        native_balance, wrapped_balance, transfers_today, transfers, actions, started_at, finished_at`

// SQLStore 使用 MySQL 或 SQLite 记录执行历史。
type SQLStore struct {
	db      *sql.DB
	dialect sqldb.Dialect
}

// NewSQLStore 基于已建立的连接池创建存储并初始化表结构。
func NewSQLStore(ctx context.Context, db *sql.DB, dialect sqldb.Dialect) (*SQLStore, error) {
	if db == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "数据库连接不能为空")
	}
	if dialect == "" {
		dialect = sqldb.DialectMySQL
	}
	store := &SQLStore{db: db, dialect: dialect}
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	statements := []string{createRunsTableMySQL}
	if s.dialect == sqldb.DialectSQLite {
		statements = append([]string{createRunsTableSQLite}, sqliteRunIndexes...)
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 cycle_runs 表失败")
		}
	}
	return nil
}

// Record 插入一条执行记录。
func (s *SQLStore) Record(ctx context.Context, run *Run) error {
	if run == nil || run.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "执行记录缺少 ID")
	}
	actions, err := json.Marshal(run.Actions)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "编码动作结果失败")
	}
	const stmt = `INSERT INTO cycle_runs (` + runColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, stmt,
		run.ID,
		run.Address,
		run.AccountIndex,
		run.Cycle,
		string(run.Status),
		run.ErrorCode,
		run.Error,
		run.Points,
		run.NativeBalance,
		run.WrappedBalance,
		run.TransfersToday,
		run.Transfers,
		string(actions),
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入执行记录失败")
	}
	return nil
}

// Get 查询单条执行记录。
func (s *SQLStore) Get(ctx context.Context, id string) (*Run, error) {
	const stmt = `SELECT ` + runColumns + ` FROM cycle_runs WHERE id = ?`
	rows, err := s.db.QueryContext(ctx, stmt, id)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询执行记录失败")
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询执行记录失败")
		}
		return nil, ErrRunNotFound
	}
	return scanRun(rows)
}

// List 按过滤条件返回执行记录。
func (s *SQLStore) List(ctx context.Context, opts ListOptions) ([]*Run, error) {
	opts.applyDefaults()
	where, args := whereClause(opts)
	order := "DESC"
	if opts.Order == SortByFinishedAsc {
		order = "ASC"
	}
	stmt := fmt.Sprintf(`SELECT %s FROM cycle_runs%s ORDER BY finished_at %s, id ASC LIMIT ? OFFSET ?`, runColumns, where, order)
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询执行记录失败")
	}
	defer rows.Close()

	runs := make([]*Run, 0, opts.Limit)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历执行记录失败")
	}
	return runs, nil
}

// Stats 按状态聚合执行记录。
func (s *SQLStore) Stats(ctx context.Context, opts ListOptions) (RunStats, error) {
	opts.applyDefaults()
	where, args := whereClause(opts)
	stmt := fmt.Sprintf(`SELECT status, COUNT(*), COALESCE(SUM(transfers), 0), COALESCE(MIN(finished_at), 0), COALESCE(MAX(finished_at), 0)
        FROM cycle_runs%s GROUP BY status`, where)

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return RunStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "统计执行记录失败")
	}
	defer rows.Close()

	stats := RunStats{}
	for rows.Next() {
		var (
			status           string
			count, transfers int
			oldest, newest   int64
		)
		if err := rows.Scan(&status, &count, &transfers, &oldest, &newest); err != nil {
			return RunStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析统计结果失败")
		}
		stats.Total += count
		stats.Transfers += transfers
		switch Status(status) {
		case StatusSucceeded:
			stats.Succeeded += count
		case StatusFailed:
			stats.Failed += count
		case StatusCancelled:
			stats.Cancelled += count
		}
		if newest > stats.NewestFinishedAt {
			stats.NewestFinishedAt = newest
		}
		if stats.OldestFinishedAt == 0 || (oldest != 0 && oldest < stats.OldestFinishedAt) {
			stats.OldestFinishedAt = oldest
		}
	}
	if err := rows.Err(); err != nil {
		return RunStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历统计结果失败")
	}
	return stats, nil
}

// Close 关闭连接池。
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func whereClause(opts ListOptions) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if len(opts.Statuses) > 0 {
		placeholders := make([]string, len(opts.Statuses))
		for i, status := range opts.Statuses {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		conds = append(conds, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if opts.Address != "" {
		conds = append(conds, "address = ?")
		args = append(args, opts.Address)
	}
	if opts.FinishedGTE > 0 {
		conds = append(conds, "finished_at >= ?")
		args = append(args, opts.FinishedGTE)
	}
	if opts.FinishedLTE > 0 {
		conds = append(conds, "finished_at <= ?")
		args = append(args, opts.FinishedLTE)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run       Run
		status    string
		errorCode sql.NullString
		lastError sql.NullString
		actions   sql.NullString
	)
	err := row.Scan(
		&run.ID,
		&run.Address,
		&run.AccountIndex,
		&run.Cycle,
		&status,
		&errorCode,
		&lastError,
		&run.Points,
		&run.NativeBalance,
		&run.WrappedBalance,
		&run.TransfersToday,
		&run.Transfers,
		&actions,
		&run.StartedAt,
		&run.FinishedAt,
	)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析执行记录失败")
	}
	run.Status = Status(status)
	run.ErrorCode = errorCode.String
	run.Error = lastError.String
	if actions.Valid && actions.String != "" && actions.String != "null" {
		var outcomes []cycle.ActionOutcome
		if err := json.Unmarshal([]byte(actions.String), &outcomes); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析动作结果失败")
		}
		run.Actions = outcomes
	}
	return &run, nil
}

var _ RunStore = (*SQLStore)(nil)
