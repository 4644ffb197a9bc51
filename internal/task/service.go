package task

import (
	"context"
	"strings"

	xerrors "FaucetPilot/internal/errors"
)

// Service 提供执行历史的查询。
type Service struct {
	store RunStore
}

// NewService 构造查询服务。
func NewService(store RunStore) *Service {
	return &Service{store: store}
}

// Get 返回指定执行记录。
func (s *Service) Get(ctx context.Context, id string) (*Run, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeStorageFailure, "执行历史未初始化")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "执行记录 ID 不能为空")
	}
	return s.store.Get(ctx, id)
}

// List 返回符合过滤条件的执行记录。
func (s *Service) List(ctx context.Context, opts ...ListOption) ([]*Run, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeStorageFailure, "执行历史未初始化")
	}
	return s.store.List(ctx, buildListOptions(opts))
}

// Stats 返回符合过滤条件的统计信息。
func (s *Service) Stats(ctx context.Context, opts ...ListOption) (RunStats, error) {
	if s.store == nil {
		return RunStats{}, xerrors.New(xerrors.CodeStorageFailure, "执行历史未初始化")
	}
	return s.store.Stats(ctx, buildListOptions(opts))
}

// Close 释放底层存储。
func (s *Service) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}
