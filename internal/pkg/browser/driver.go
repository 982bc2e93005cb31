package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// TaskRequest 一次"输入文本 -> 触发生成 -> 取回产物"的自动化任务
type TaskRequest struct {
	PageURL  string // 目标工具页面
	Input    string // 要提交的文本
	DestPath string // 产物最终位置
}

// RunGenerationTask 在目标工具页面上完成一次生成任务
// 流程：打开页面 -> 填入文本 -> 触发生成 -> 轮询下载入口出现 -> 触发下载 -> 等文件落盘
func (s *Session) RunGenerationTask(ctx context.Context, req *TaskRequest) (string, error) {
	if err := s.Navigate(ctx, req.PageURL); err != nil {
		return "", err
	}

	// 页面脚手架渲染完成后输入框才会出现，给一个短窗口
	if _, err := s.WaitFor(ctx, "input field",
		[]Probe{FillProbe("text input", req.Input)},
		2*time.Second, 30*time.Second); err != nil {
		return "", err
	}

	hit, err := s.WaitFor(ctx, "submit",
		[]Probe{
			ClickProbe("run button", "run", "generate", "create"),
			ClickProbe("submit button", "submit", "start"),
		},
		2*time.Second, 30*time.Second)
	if err != nil {
		return "", err
	}
	log.Debug().Str("probe", hit).Msg("generation triggered")

	// 生成是站点侧的长任务，下载入口出现即视为完成
	downloadStart := time.Now()
	if _, err := s.WaitFor(ctx, "download affordance",
		[]Probe{
			ClickProbe("download button", "download"),
			ClickProbe("export button", "export", "save"),
		},
		s.cfg.PollInterval, s.cfg.CompletionWindow); err != nil {
		return "", err
	}

	downloaded, err := s.WaitForDownload(ctx, downloadStart)
	if err != nil {
		return "", err
	}

	if err := ClaimDownload(downloaded, req.DestPath); err != nil {
		return "", fmt.Errorf("claim generated file: %w", err)
	}

	log.Info().
		Str("page", req.PageURL).
		Str("dest", req.DestPath).
		Msg("automation task completed")

	return req.DestPath, nil
}
