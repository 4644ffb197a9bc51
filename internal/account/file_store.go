package account

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	xerrors "FaucetPilot/internal/errors"
)

const lockRetryDelay = 50 * time.Millisecond

// FileStore 将名册保存为 JSON 数组文件。
// 追加同时持有进程内互斥锁和 <path>.lock 文件锁，多个 worker 进程共享同一名册时也不会丢记录。
type FileStore struct {
	mu   sync.Mutex
	path string
	lock *flock.Flock
}

// NewFileStore 创建文件名册；文件不存在时视为空名册。
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "名册文件路径不能为空")
	}
	return &FileStore{path: path, lock: flock.New(path + ".lock")}, nil
}

// List 实现 Store 接口。
func (s *FileStore) List(_ context.Context) ([]Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		return nil, err
	}
	accounts := make([]Account, 0, len(records))
	for i, rec := range records {
		accounts = append(accounts, FromRecord(i, rec))
	}
	return accounts, nil
}

// Mint 在持锁状态下完成读取、追加与落盘，避免并发轮换时丢失记录。
func (s *FileStore) Mint(ctx context.Context) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return Account{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建名册目录失败")
	}
	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return Account{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取名册文件锁失败")
	}
	if !locked {
		return Account{}, xerrors.New(xerrors.CodeStorageFailure, "获取名册文件锁失败")
	}
	defer s.lock.Unlock()

	records, err := s.read()
	if err != nil {
		return Account{}, err
	}
	acct, err := Generate()
	if err != nil {
		return Account{}, err
	}
	records = append(records, Record{PrivateKey: acct.PrivateKey})
	if err := s.write(records); err != nil {
		return Account{}, err
	}
	acct.Index = len(records) - 1
	return acct, nil
}

// Close 实现 Store 接口。
func (s *FileStore) Close() error { return nil }

func (s *FileStore) read() ([]Record, error) {
	content, err := os.ReadFile(s.path)
	if err != nil {
		if stdErrors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取名册失败")
	}
	if len(content) == 0 {
		return nil, nil
	}
	var records []Record
	if err := json.Unmarshal(content, &records); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析名册失败")
	}
	return records, nil
}

// write 先写临时文件再重命名，保证名册文件要么是旧内容要么是新内容。
func (s *FileStore) write(records []Record) error {
	encoded, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化名册失败")
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建名册目录失败")
	}
	tmp, err := os.CreateTemp(dir, ".accounts-*.json")
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建临时名册失败")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入名册失败")
	}
	if err := tmp.Close(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入名册失败")
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "设置名册权限失败")
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, fmt.Sprintf("替换名册 %s 失败", s.path))
	}
	return nil
}
