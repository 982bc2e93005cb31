package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// 目标站点的内部结构不受我们控制，结构化选择器一改版就碎。
// 探测全部基于可见文本和 ARIA 标签：按语义找控件，而不是按 DOM 路径。

// Probe 一条能力探测：一个返回布尔值的页面端表达式
// 命中即表示对应的控件存在（Fire 为 true 时顺带触发点击）
type Probe struct {
	Name string // 探测名，用于失败时的日志
	JS   string // 页面端表达式，求值为 true 表示命中
}

// clickByTextJS 构建"按可见文本/aria-label 找控件并点击"的页面端脚本
// keywords 全部小写；命中第一个可见且未禁用的控件
func clickByTextJS(keywords []string) string {
	quoted := make([]string, len(keywords))
	for i, k := range keywords {
		quoted[i] = fmt.Sprintf("%q", strings.ToLower(k))
	}
	return fmt.Sprintf(`(() => {
		const keywords = [%s];
		const candidates = document.querySelectorAll('button, a, [role="button"]');
		for (const el of candidates) {
			const text = ((el.textContent || '') + ' ' + (el.getAttribute('aria-label') || '')).toLowerCase();
			if (el.disabled || el.offsetParent === null) continue;
			if (keywords.some(k => text.includes(k))) {
				el.click();
				return true;
			}
		}
		return false;
	})()`, strings.Join(quoted, ", "))
}

// existsByTextJS 与 clickByTextJS 相同的查找逻辑，但只检测不点击
func existsByTextJS(keywords []string) string {
	quoted := make([]string, len(keywords))
	for i, k := range keywords {
		quoted[i] = fmt.Sprintf("%q", strings.ToLower(k))
	}
	return fmt.Sprintf(`(() => {
		const keywords = [%s];
		const candidates = document.querySelectorAll('button, a, [role="button"]');
		for (const el of candidates) {
			const text = ((el.textContent || '') + ' ' + (el.getAttribute('aria-label') || '')).toLowerCase();
			if (el.disabled || el.offsetParent === null) continue;
			if (keywords.some(k => text.includes(k))) return true;
		}
		return false;
	})()`, strings.Join(quoted, ", "))
}

// fillInputJS 找到第一个可见的 textarea 或文本输入框并写入内容
// 通过原生 setter 写值，保证 React 类框架能收到 input 事件
func fillInputJS(text string) string {
	return fmt.Sprintf(`(() => {
		const fields = document.querySelectorAll('textarea, input[type="text"], [contenteditable="true"]');
		for (const el of fields) {
			if (el.offsetParent === null) continue;
			if (el.isContentEditable) {
				el.focus();
				el.textContent = %[1]q;
			} else {
				const proto = el.tagName === 'TEXTAREA' ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
				const setter = Object.getOwnPropertyDescriptor(proto, 'value').set;
				setter.call(el, %[1]q);
			}
			el.dispatchEvent(new Event('input', { bubbles: true }));
			el.dispatchEvent(new Event('change', { bubbles: true }));
			return true;
		}
		return false;
	})()`, text)
}

// ClickProbe 构建"找到并点击"探测
func ClickProbe(name string, keywords ...string) Probe {
	return Probe{Name: name, JS: clickByTextJS(keywords)}
}

// ExistsProbe 构建"只检测存在"探测
func ExistsProbe(name string, keywords ...string) Probe {
	return Probe{Name: name, JS: existsByTextJS(keywords)}
}

// FillProbe 构建"填入文本"探测
func FillProbe(name, text string) Probe {
	return Probe{Name: name, JS: fillInputJS(text)}
}

// Try 依次执行探测列表，返回第一个命中的探测名
// 全部落空时返回空串，不算错误（由 WaitFor 决定何时放弃）
func (s *Session) Try(ctx context.Context, probes []Probe) (string, error) {
	for _, p := range probes {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		var hit bool
		// 求值必须跑在会话自己的上下文上
		runCtx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
		err := chromedp.Run(runCtx, chromedp.Evaluate(p.JS, &hit))
		cancel()
		if err != nil {
			return "", fmt.Errorf("evaluate probe %s: %w", p.Name, err)
		}
		if hit {
			return p.Name, nil
		}
	}
	return "", nil
}

// WaitFor 以固定间隔轮询探测列表，直到命中或超出时间窗
// 超时返回 *AutomationError，并附上尝试过的探测名
func (s *Session) WaitFor(ctx context.Context, step string, probes []Probe, interval, window time.Duration) (string, error) {
	if interval <= 0 {
		interval = s.cfg.PollInterval
	}
	if window <= 0 {
		window = s.cfg.CompletionWindow
	}

	deadline := time.Now().Add(window)
	for {
		name, err := s.Try(ctx, probes)
		if err != nil {
			return "", err
		}
		if name != "" {
			return name, nil
		}

		if time.Now().After(deadline) {
			tried := make([]string, len(probes))
			for i, p := range probes {
				tried[i] = p.Name
			}
			return "", &AutomationError{
				Step: step,
				Hint: fmt.Sprintf("no affordance matched within %s (tried: %s)", window, strings.Join(tried, ", ")),
			}
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(interval):
		}
	}
}
