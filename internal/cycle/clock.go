package cycle

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
)

// Clock 抽象时间来源与可取消的等待。
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

// SystemClock 返回基于系统时间的 Clock。
func SystemClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var dailyReset = mustSchedule("CRON_TZ=UTC 0 0 * * *")

func mustSchedule(spec string) cron.Schedule {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		panic(err)
	}
	return schedule
}

// ResetWait 返回从 now 到下一个 UTC 零点的时长，取值范围 [0, 24h)。
// 恰好处于零点时返回 0。
func ResetWait(now time.Time) time.Duration {
	next := dailyReset.Next(now.Add(-time.Nanosecond))
	wait := next.Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}
