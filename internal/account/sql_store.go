package account

import (
	"context"
	"database/sql"
	"sync"
	"time"

	xerrors "FaucetPilot/internal/errors"
)

// SQLStore 使用 MySQL 保存名册，自增主键决定名册顺序。
type SQLStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLStore 基于已建立的连接池创建名册并初始化数据表。
func NewSQLStore(ctx context.Context, db *sql.DB) (*SQLStore, error) {
	if db == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "数据库连接不能为空")
	}
	store := &SQLStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

const createAccountsTable = `CREATE TABLE IF NOT EXISTS accounts (
        id BIGINT AUTO_INCREMENT PRIMARY KEY,
        private_key VARCHAR(80) NOT NULL,
        address VARCHAR(42) NOT NULL,
        created_at BIGINT NOT NULL,
        UNIQUE KEY uk_accounts_address (address)
)`

func (s *SQLStore) initSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createAccountsTable); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 accounts 表失败")
	}
	return nil
}

// List 实现 Store 接口。
func (s *SQLStore) List(ctx context.Context) ([]Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT private_key FROM accounts ORDER BY id ASC`)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询名册失败")
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.PrivateKey); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析名册记录失败")
		}
		accounts = append(accounts, FromRecord(len(accounts), rec))
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历名册失败")
	}
	return accounts, nil
}

// Mint 实现 Store 接口。
func (s *SQLStore) Mint(ctx context.Context) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := Generate()
	if err != nil {
		return Account{}, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (private_key, address, created_at) VALUES (?, ?, ?)`,
		acct.PrivateKey, acct.Address.Hex(), time.Now().Unix())
	if err != nil {
		return Account{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入新账户失败")
	}
	if id, err := res.LastInsertId(); err == nil && id > 0 {
		acct.Index = int(id - 1)
	}
	return acct, nil
}

// Close 关闭底层数据库连接。
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
