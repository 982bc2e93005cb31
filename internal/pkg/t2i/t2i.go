package t2i

import "context"

// Provider 文生图提供方
// 视觉阶段路径 1 的上游：输入提示词，输出一张静态图
type Provider interface {
	// Generate 生成一张图片，返回图片字节（jpeg/png）
	Generate(ctx context.Context, prompt string, width, height, seed int) ([]byte, error)
}
