package browser

import (
	"context"
	"fmt"
	"net/http"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"
)

// AutomationError 自动化驱动失败：预期的页面元素在限时内没有出现
type AutomationError struct {
	Step string // 失败的步骤
	Hint string // 尝试过的探测策略描述
}

func (e *AutomationError) Error() string {
	return fmt.Sprintf("automation failed at %s: %s", e.Step, e.Hint)
}

// Config 浏览器自动化配置
type Config struct {
	DebugURL         string        // 已运行的调试会话地址（如 http://127.0.0.1:9222）
	ProfileDir       string        // 操作者主浏览器 Profile 目录
	AutomationDir    string        // 隔离的自动化 Profile 目录（兜底）
	DownloadDir      string        // 下载目录
	PollInterval     time.Duration // 探测轮询间隔，默认 3s
	CompletionWindow time.Duration // 等待任务完成上限，默认 120s
	DownloadTimeout  time.Duration // 等待下载落盘上限，默认 60s
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.PollInterval <= 0 {
		out.PollInterval = 3 * time.Second
	}
	if out.CompletionWindow <= 0 {
		out.CompletionWindow = 120 * time.Second
	}
	if out.DownloadTimeout <= 0 {
		out.DownloadTimeout = 60 * time.Second
	}
	return out
}

// Session 一个已建立的浏览器自动化会话
// 会话独占共享的自动化资源，取得前必须先持有资源锁
type Session struct {
	cfg    Config
	ctx    context.Context
	cancel []context.CancelFunc
	remote bool // 是否附着在外部会话上（附着模式下不关闭浏览器本身）
}

// Connect 建立浏览器会话，按顺序尝试：
//  1. 附着到已监听调试端口的会话
//  2. 用操作者主 Profile 启动新会话
//  3. 主 Profile 被占用时退回隔离的自动化 Profile
func Connect(ctx context.Context, cfg Config) (*Session, error) {
	cfg = cfg.withDefaults()

	if cfg.DebugURL != "" && debugEndpointAlive(ctx, cfg.DebugURL) {
		s, err := attach(ctx, cfg)
		if err == nil {
			log.Info().Str("debug_url", cfg.DebugURL).Msg("attached to running browser session")
			return s, nil
		}
		log.Warn().Err(err).Msg("attach to debug session failed, launching our own")
	}

	if cfg.ProfileDir != "" {
		s, err := launch(ctx, cfg, cfg.ProfileDir)
		if err == nil {
			log.Info().Str("profile", cfg.ProfileDir).Msg("launched browser with primary profile")
			return s, nil
		}
		// 主 Profile 正被另一个浏览器实例锁定时会走到这里
		log.Warn().Err(err).Msg("primary profile launch failed, falling back to automation profile")
	}

	s, err := launch(ctx, cfg, cfg.AutomationDir)
	if err != nil {
		return nil, fmt.Errorf("launch automation profile browser: %w", err)
	}
	log.Info().Str("profile", cfg.AutomationDir).Msg("launched browser with isolated automation profile")
	return s, nil
}

// debugEndpointAlive 检查调试端口是否有会话在监听
func debugEndpointAlive(ctx context.Context, debugURL string) bool {
	reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, debugURL+"/json/version", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// attach 附着到外部调试会话
func attach(ctx context.Context, cfg Config) (*Session, error) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, cfg.DebugURL)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		cfg:    cfg,
		ctx:    tabCtx,
		cancel: []context.CancelFunc{tabCancel, allocCancel},
		remote: true,
	}
	if err := s.prepare(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// launch 用指定 Profile 启动新会话
func launch(ctx context.Context, cfg Config, profileDir string) (*Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", false), // 目标站点需要已登录的可见会话
		chromedp.UserDataDir(profileDir),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		cfg:    cfg,
		ctx:    tabCtx,
		cancel: []context.CancelFunc{tabCancel, allocCancel},
	}
	if err := s.prepare(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// prepare 验证会话可用并把下载重定向到受控目录
func (s *Session) prepare() error {
	runCtx, cancel := context.WithTimeout(s.ctx, 15*time.Second)
	defer cancel()

	actions := []chromedp.Action{chromedp.Navigate("about:blank")}
	if s.cfg.DownloadDir != "" {
		actions = append(actions,
			cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllow).
				WithDownloadPath(s.cfg.DownloadDir))
	}
	if err := chromedp.Run(runCtx, actions...); err != nil {
		return fmt.Errorf("session probe: %w", err)
	}
	return nil
}

// Navigate 打开目标页面并等待加载
// chromedp 的动作必须跑在会话自己的上下文上，调用方 ctx 只用于提前放弃
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(s.ctx, 60*time.Second)
	defer cancel()

	if err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
	); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// Close 释放会话
// 附着模式下只关闭我们自己的标签页上下文，不动外部浏览器
func (s *Session) Close() {
	for _, cancel := range s.cancel {
		cancel()
	}
}
