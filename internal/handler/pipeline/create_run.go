package pipeline

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	pipelinesvc "storyforge/internal/service/pipeline"
)

// CreateRun 创建流水线运行
// @Summary      创建视频生成运行
// @Description  根据主题创建一次完整的视频生成运行，立即开始执行五个阶段（脚本、旁白、视觉、校验、合成）。通过进度流接口订阅执行进度。
// @Tags         流水线
// @Accept       json
// @Produce      json
// @Param        request  body      pipelinesvc.CreateRunRequest  true  "运行参数"
// @Success      200      {object}  map[string]interface{}  "成功响应"
// @Failure      400      {object}  ErrorResponse  "请求参数错误"
// @Failure      500      {object}  ErrorResponse  "服务器内部错误"
// @Router       /api/v1/pipeline/runs [post]
func (h *Handler) CreateRun(c *gin.Context) {
	var req pipelinesvc.CreateRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    40001,
			Message: "Invalid request body",
			Detail:  err.Error(),
		})
		return
	}

	run, err := h.pipelineService.CreateRun(c.Request.Context(), &req)
	if err != nil {
		code := http.StatusInternalServerError
		errorCode := 50001
		if errors.Is(err, pipelinesvc.ErrRunActive) {
			code = http.StatusConflict
			errorCode = 40901
		}
		c.JSON(code, ErrorResponse{
			Code:    errorCode,
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "运行已创建",
		"data":    toRunInfo(run),
	})
}
