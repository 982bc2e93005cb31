package locker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// BusyError 在等待上限内未能抢到锁
type BusyError struct {
	Path   string
	Waited time.Duration
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("automation resource busy: lock %s not acquired within %s", e.Path, e.Waited)
}

// FileLock 基于锁文件的跨进程互斥
// 自动化浏览器会话同一时刻只能服务一个调用方，串行化是正确性要求而非优化。
// 锁文件 mtime 超过 staleAfter 视为持有者已崩溃，任何等待者可以强制释放。
type FileLock struct {
	path         string
	staleAfter   time.Duration
	pollInterval time.Duration
}

// Option FileLock 可选参数
type Option func(*FileLock)

// WithPollInterval 覆盖默认的 1 秒轮询间隔（测试用）
func WithPollInterval(d time.Duration) Option {
	return func(l *FileLock) { l.pollInterval = d }
}

// New 创建文件锁
// staleAfter 为 0 时使用默认的 120 秒过期阈值
func New(path string, staleAfter time.Duration, opts ...Option) *FileLock {
	if staleAfter <= 0 {
		staleAfter = 120 * time.Second
	}
	l := &FileLock{
		path:         path,
		staleAfter:   staleAfter,
		pollInterval: time.Second,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire 阻塞直到创建锁文件成功或超过 maxWait
// maxWait 为 0 时使用默认的 180 秒上限。失败返回 *BusyError，由调用方决定是否重试。
func (l *FileLock) Acquire(ctx context.Context, maxWait time.Duration) error {
	if maxWait <= 0 {
		maxWait = 180 * time.Second
	}

	deadline := time.Now().Add(maxWait)
	for {
		ok, err := l.tryAcquire()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		if time.Now().After(deadline) {
			return &BusyError{Path: l.path, Waited: maxWait}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.pollInterval):
		}
	}
}

// tryAcquire 单次抢锁：过期锁先删再抢
func (l *FileLock) tryAcquire() (bool, error) {
	if info, err := os.Stat(l.path); err == nil {
		age := time.Since(info.ModTime())
		if age <= l.staleAfter {
			return false, nil
		}
		// 持有者超过过期阈值没有续期，视为崩溃遗留，直接清掉
		log.Warn().
			Str("lock", l.path).
			Dur("age", age).
			Msg("removing stale automation lock")
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return false, fmt.Errorf("remove stale lock: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("stat lock: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("create lock dir: %w", err)
	}

	// O_EXCL 保证并发抢锁时只有一个创建者成功
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("create lock: %w", err)
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	f.Close()

	return true, nil
}

// Release 删除锁文件
// 锁文件已不存在时不视为错误（可能已被等待者强制释放）
func (l *FileLock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// Held 判断当前是否存在未过期的锁
func (l *FileLock) Held() bool {
	info, err := os.Stat(l.path)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) <= l.staleAfter
}
