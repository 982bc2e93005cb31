package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// 浏览器下载先落一个临时文件，写完再改名。
// 等待逻辑结合 fsnotify 事件和兜底扫描：事件只用来提前唤醒，判定始终走扫描。

// partialSuffixes 下载中的临时文件后缀
var partialSuffixes = []string{".crdownload", ".part", ".tmp", ".download"}

func isPartial(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range partialSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// newestDownload 扫描目录，返回 startTime 之后出现的最新完整文件
func newestDownload(dir string, startTime time.Time) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var newest string
	var newestMod time.Time
	for _, entry := range entries {
		if entry.IsDir() || isPartial(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(startTime) || info.Size() == 0 {
			continue
		}
		if info.ModTime().After(newestMod) {
			newest = filepath.Join(dir, entry.Name())
			newestMod = info.ModTime()
		}
	}
	return newest, nil
}

// WaitForDownload 等待下载目录中出现 startTime 之后的新完整文件
// 超时返回 *AutomationError
func (s *Session) WaitForDownload(ctx context.Context, startTime time.Time) (string, error) {
	dir := s.cfg.DownloadDir
	if dir == "" {
		return "", fmt.Errorf("download dir not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return "", fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return "", fmt.Errorf("watch download dir: %w", err)
	}

	deadline := time.Now().Add(s.cfg.DownloadTimeout)
	for {
		path, err := newestDownload(dir, startTime)
		if err != nil {
			return "", err
		}
		if path != "" {
			// 等一次大小稳定，避免抓到还在写入的文件
			if stable, err := sizeStable(ctx, path); err == nil && stable {
				return path, nil
			}
		}

		if time.Now().After(deadline) {
			return "", &AutomationError{
				Step: "download",
				Hint: fmt.Sprintf("no completed file appeared in %s within %s", dir, s.cfg.DownloadTimeout),
			}
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case event := <-watcher.Events:
			log.Debug().Str("event", event.String()).Msg("download dir activity")
		case err := <-watcher.Errors:
			log.Warn().Err(err).Msg("download watcher error")
		case <-time.After(time.Second):
		}
	}
}

// sizeStable 两次采样之间文件大小不变则认为写入完成
func sizeStable(ctx context.Context, path string) (bool, error) {
	first, err := os.Stat(path)
	if err != nil {
		return false, err
	}

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-time.After(300 * time.Millisecond):
	}

	second, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return first.Size() == second.Size(), nil
}

// ClaimDownload 把下载产物移动到目标位置（产物归调用方所有）
func ClaimDownload(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}
	if err := os.Rename(src, dest); err != nil {
		// 跨文件系统时 rename 失败，退回复制
		data, readErr := os.ReadFile(src)
		if readErr != nil {
			return fmt.Errorf("claim download: %w", err)
		}
		if writeErr := os.WriteFile(dest, data, 0o644); writeErr != nil {
			return fmt.Errorf("claim download copy: %w", writeErr)
		}
		os.Remove(src)
	}
	return nil
}
