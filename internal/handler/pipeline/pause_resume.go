package pipeline

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"storyforge/internal/repository/run"
)

// PauseRun 暂停运行
// @Summary      暂停运行
// @Description  请求暂停运行。进行中的场景会先跑完，流水线在下一个场景边界停住，已完成的产物全部保留。
// @Tags         流水线
// @Produce      json
// @Param        id  path      string  true  "运行ID"
// @Success      200  {object}  map[string]interface{}  "成功响应"
// @Failure      400  {object}  ErrorResponse  "运行状态不允许暂停"
// @Failure      404  {object}  ErrorResponse  "运行不存在"
// @Router       /api/v1/pipeline/runs/{id}/pause [post]
func (h *Handler) PauseRun(c *gin.Context) {
	runID := c.Param("id")

	if err := h.pipelineService.Pause(c.Request.Context(), runID); err != nil {
		h.writeControlError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "暂停请求已受理",
		"data":    gin.H{"run_id": runID},
	})
}

// ResumeRun 恢复运行
// @Summary      恢复运行
// @Description  从断点恢复已暂停的运行。已完成的阶段和场景直接跳过，从第一个未完成的场景继续。
// @Tags         流水线
// @Produce      json
// @Param        id  path      string  true  "运行ID"
// @Success      200  {object}  map[string]interface{}  "成功响应"
// @Failure      400  {object}  ErrorResponse  "运行状态不允许恢复"
// @Failure      404  {object}  ErrorResponse  "运行不存在"
// @Router       /api/v1/pipeline/runs/{id}/resume [post]
func (h *Handler) ResumeRun(c *gin.Context) {
	runID := c.Param("id")

	if err := h.pipelineService.Resume(c.Request.Context(), runID); err != nil {
		h.writeControlError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "运行已恢复",
		"data":    gin.H{"run_id": runID},
	})
}

// writeControlError 暂停/恢复共用的错误映射
func (h *Handler) writeControlError(c *gin.Context, err error) {
	if errors.Is(err, run.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Code:    40401,
			Message: "Run not found",
		})
		return
	}
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Code:    40002,
		Message: err.Error(),
	})
}
