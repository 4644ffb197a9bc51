package task

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// SortOrder defines how runs are ordered when listing.
type SortOrder int

const (
	// SortByFinishedDesc orders runs by FinishedAt descending (most recent first).
	SortByFinishedDesc SortOrder = iota
	// SortByFinishedAsc orders runs by FinishedAt ascending.
	SortByFinishedAsc
)

// ListOptions controls how runs are selected when querying the store.
type ListOptions struct {
	Limit       int
	Offset      int
	Statuses    []Status
	Address     string
	FinishedGTE int64
	FinishedLTE int64
	Order       SortOrder
}

func (opts *ListOptions) applyDefaults() {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Limit > 100 {
		opts.Limit = 100
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	if opts.Statuses != nil {
		opts.Statuses = normalizeStatuses(opts.Statuses)
	}
	if opts.Order != SortByFinishedAsc {
		opts.Order = SortByFinishedDesc
	}
	opts.Address = strings.TrimSpace(opts.Address)
	if common.IsHexAddress(opts.Address) {
		// 统一为校验和格式，与写入时一致。
		opts.Address = common.HexToAddress(opts.Address).Hex()
	}
}

// ListOption mutates ListOptions.
type ListOption func(*ListOptions)

// WithLimit limits the number of runs returned.
func WithLimit(limit int) ListOption {
	return func(opts *ListOptions) { opts.Limit = limit }
}

// WithOffset skips the first n matching runs.
func WithOffset(offset int) ListOption {
	return func(opts *ListOptions) { opts.Offset = offset }
}

// WithStatuses filters runs by status.
func WithStatuses(statuses ...Status) ListOption {
	return func(opts *ListOptions) {
		opts.Statuses = append(opts.Statuses[:0], statuses...)
	}
}

// WithAddress filters runs of a single account.
func WithAddress(address string) ListOption {
	return func(opts *ListOptions) { opts.Address = address }
}

// WithFinishedSince filters runs finished at or after ts.
func WithFinishedSince(ts time.Time) ListOption {
	return func(opts *ListOptions) {
		if ts.IsZero() {
			opts.FinishedGTE = 0
			return
		}
		opts.FinishedGTE = ts.Unix()
	}
}

// WithFinishedUntil filters runs finished at or before ts.
func WithFinishedUntil(ts time.Time) ListOption {
	return func(opts *ListOptions) {
		if ts.IsZero() {
			opts.FinishedLTE = 0
			return
		}
		opts.FinishedLTE = ts.Unix()
	}
}

// WithSortOrder changes the returned order.
func WithSortOrder(order SortOrder) ListOption {
	return func(opts *ListOptions) { opts.Order = order }
}

func buildListOptions(opts []ListOption) ListOptions {
	options := ListOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	options.applyDefaults()
	return options
}

func normalizeStatuses(input []Status) []Status {
	if len(input) == 0 {
		return nil
	}
	seen := make(map[Status]struct{}, len(input))
	result := make([]Status, 0, len(input))
	for _, status := range input {
		if !IsValidStatus(status) {
			continue
		}
		if _, ok := seen[status]; ok {
			continue
		}
		seen[status] = struct{}{}
		result = append(result, status)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func (opts ListOptions) matches(run *Run) bool {
	if len(opts.Statuses) > 0 {
		matched := false
		for _, status := range opts.Statuses {
			if run.Status == status {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if opts.Address != "" && !strings.EqualFold(run.Address, opts.Address) {
		return false
	}
	if opts.FinishedGTE > 0 && run.FinishedAt < opts.FinishedGTE {
		return false
	}
	if opts.FinishedLTE > 0 && run.FinishedAt > opts.FinishedLTE {
		return false
	}
	return true
}
