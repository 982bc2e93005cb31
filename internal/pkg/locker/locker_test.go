package locker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestFileLock_Acquire(t *testing.T) {
	Convey("FileLock.Acquire 抢锁行为", t, func() {
		dir := t.TempDir()
		lockPath := filepath.Join(dir, "automation.lock")

		Convey("无锁文件时立即抢到", func() {
			l := New(lockPath, 120*time.Second)
			err := l.Acquire(context.Background(), time.Second)
			So(err, ShouldBeNil)

			_, statErr := os.Stat(lockPath)
			So(statErr, ShouldBeNil)

			So(l.Release(), ShouldBeNil)
			_, statErr = os.Stat(lockPath)
			So(os.IsNotExist(statErr), ShouldBeTrue)
		})

		Convey("未过期的锁阻塞等待者，超时返回 BusyError", func() {
			So(os.WriteFile(lockPath, []byte("1\n"), 0o644), ShouldBeNil)
			// mtime 119 秒前：仍在 120 秒阈值内，必须继续等待
			old := time.Now().Add(-119 * time.Second)
			So(os.Chtimes(lockPath, old, old), ShouldBeNil)

			l := New(lockPath, 120*time.Second, WithPollInterval(10*time.Millisecond))
			err := l.Acquire(context.Background(), 50*time.Millisecond)

			var busy *BusyError
			So(errors.As(err, &busy), ShouldBeTrue)
		})

		Convey("过期的锁被强制释放，等待者立即接管", func() {
			So(os.WriteFile(lockPath, []byte("1\n"), 0o644), ShouldBeNil)
			// mtime 121 秒前：超过阈值，视为持有者崩溃
			old := time.Now().Add(-121 * time.Second)
			So(os.Chtimes(lockPath, old, old), ShouldBeNil)

			l := New(lockPath, 120*time.Second)
			err := l.Acquire(context.Background(), time.Second)
			So(err, ShouldBeNil)
			So(l.Held(), ShouldBeTrue)
			So(l.Release(), ShouldBeNil)
		})

		Convey("持有者释放后等待者能抢到", func() {
			holder := New(lockPath, 120*time.Second)
			So(holder.Acquire(context.Background(), time.Second), ShouldBeNil)

			waiter := New(lockPath, 120*time.Second, WithPollInterval(10*time.Millisecond))
			done := make(chan error, 1)
			go func() {
				done <- waiter.Acquire(context.Background(), 2*time.Second)
			}()

			time.Sleep(30 * time.Millisecond)
			So(holder.Release(), ShouldBeNil)

			So(<-done, ShouldBeNil)
			So(waiter.Release(), ShouldBeNil)
		})

		Convey("context 取消时返回 context 错误", func() {
			So(os.WriteFile(lockPath, []byte("1\n"), 0o644), ShouldBeNil)

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			l := New(lockPath, 120*time.Second, WithPollInterval(10*time.Millisecond))
			err := l.Acquire(ctx, time.Second)
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})
	})
}

func TestFileLock_Release(t *testing.T) {
	Convey("FileLock.Release 幂等", t, func() {
		lockPath := filepath.Join(t.TempDir(), "automation.lock")
		l := New(lockPath, 120*time.Second)

		So(l.Acquire(context.Background(), time.Second), ShouldBeNil)
		So(l.Release(), ShouldBeNil)
		// 再次释放不报错（锁可能已被其他等待者强制清理）
		So(l.Release(), ShouldBeNil)
	})
}
