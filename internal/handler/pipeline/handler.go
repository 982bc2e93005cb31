package pipeline

import (
	pipelinesvc "storyforge/internal/service/pipeline"
)

// Handler 流水线处理器
// 所有pipeline相关的Handler方法都通过这个结构体访问Service
type Handler struct {
	pipelineService *pipelinesvc.Service
}

// NewHandler 创建流水线处理器
func NewHandler(pipelineService *pipelinesvc.Service) *Handler {
	return &Handler{
		pipelineService: pipelineService,
	}
}
