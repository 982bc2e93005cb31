package pipeline

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"storyforge/internal/repository/run"
)

// ValidateRequest 按需校验请求
type ValidateRequest struct {
	RunID string `json:"run_id" binding:"required"` // 运行ID（必填）
}

// ValidateRun 按需校验运行产物
// @Summary      校验运行产物
// @Description  对运行的全部产物做一次完整校验：脚本质量、旁白音频、视觉片段、音画一致性、工程命名、阶段完整性。六项平均分70分及格。校验只出报告，不拦截流程。
// @Tags         流水线
// @Accept       json
// @Produce      json
// @Param        request  body      ValidateRequest  true  "校验参数"
// @Success      200      {object}  map[string]interface{}  "校验报告"
// @Failure      400      {object}  ErrorResponse  "请求参数错误"
// @Failure      404      {object}  ErrorResponse  "运行不存在"
// @Router       /api/v1/pipeline/validate [post]
func (h *Handler) ValidateRun(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    40001,
			Message: "Invalid request body",
			Detail:  err.Error(),
		})
		return
	}

	result, err := h.pipelineService.ValidateRun(c.Request.Context(), req.RunID)
	if err != nil {
		if errors.Is(err, run.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Code:    40401,
				Message: "Run not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    50001,
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "校验完成",
		"data":    result,
	})
}
