package task

import (
	"bufio"
	"context"
	"encoding/json"
	stdErrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	xerrors "FaucetPilot/internal/errors"
)

// MemoryStore 在内存中保存执行记录，可选地追加写入 JSONL 文件，重启后从文件恢复。
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*Run
	path string
}

// NewMemoryStore 创建 MemoryStore。path 为空时只保存在内存中。
func NewMemoryStore(path string) (*MemoryStore, error) {
	store := &MemoryStore{runs: make(map[string]*Run), path: strings.TrimSpace(path)}
	if store.path == "" {
		return store, nil
	}
	if err := os.MkdirAll(filepath.Dir(store.path), 0o755); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建历史目录失败")
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (m *MemoryStore) load() error {
	file, err := os.Open(m.path)
	if err != nil {
		if stdErrors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取历史文件失败")
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var run Run
		// 进程中途退出可能留下半行，跳过即可。
		if err := json.Unmarshal([]byte(line), &run); err != nil || run.ID == "" {
			continue
		}
		m.runs[run.ID] = &run
	}
	if err := scanner.Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取历史文件失败")
	}
	return nil
}

// Record 实现 RunStore。
func (m *MemoryStore) Record(_ context.Context, run *Run) error {
	if run == nil || run.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "执行记录缺少 ID")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.path != "" {
		if err := m.appendLine(run); err != nil {
			return err
		}
	}
	m.runs[run.ID] = cloneRun(run)
	return nil
}

func (m *MemoryStore) appendLine(run *Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "编码执行记录失败")
	}
	file, err := os.OpenFile(m.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "打开历史文件失败")
	}
	defer file.Close()
	if _, err := file.Write(append(data, '\n')); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入历史文件失败")
	}
	return nil
}

// Get 实现 RunStore。
func (m *MemoryStore) Get(_ context.Context, id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return cloneRun(run), nil
}

// List 实现 RunStore。
func (m *MemoryStore) List(_ context.Context, opts ListOptions) ([]*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opts.applyDefaults()
	results := make([]*Run, 0, len(m.runs))
	for _, run := range m.runs {
		if opts.matches(run) {
			results = append(results, cloneRun(run))
		}
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.FinishedAt == b.FinishedAt {
			return a.ID < b.ID
		}
		if opts.Order == SortByFinishedAsc {
			return a.FinishedAt < b.FinishedAt
		}
		return a.FinishedAt > b.FinishedAt
	})

	if opts.Offset >= len(results) {
		return []*Run{}, nil
	}
	results = results[opts.Offset:]
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// Stats 实现 RunStore，忽略分页参数。
func (m *MemoryStore) Stats(_ context.Context, opts ListOptions) (RunStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opts.applyDefaults()
	stats := RunStats{}
	for _, run := range m.runs {
		if opts.matches(run) {
			stats.add(run)
		}
	}
	return stats, nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error { return nil }

var _ RunStore = (*MemoryStore)(nil)
