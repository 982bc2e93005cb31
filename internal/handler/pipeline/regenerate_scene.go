package pipeline

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"storyforge/internal/repository/run"
)

// RegenerateScene 重新生成单个场景
// @Summary      重新生成场景脚本
// @Description  重写单个场景的旁白文本，保留标题和时长。该场景的旁白/视觉产物作废，下游阶段回退，恢复运行后重新生成。运行必须先暂停。
// @Tags         流水线
// @Produce      json
// @Param        id        path      string  true  "运行ID"
// @Param        scene_id  path      int     true  "场景号（1起始）"
// @Success      200       {object}  map[string]interface{}  "成功响应"
// @Failure      400       {object}  ErrorResponse  "参数错误或运行状态不允许"
// @Failure      404       {object}  ErrorResponse  "运行或场景不存在"
// @Failure      500       {object}  ErrorResponse  "服务器内部错误"
// @Router       /api/v1/pipeline/runs/{id}/scenes/{scene_id}/regenerate [post]
func (h *Handler) RegenerateScene(c *gin.Context) {
	runID := c.Param("id")
	sceneID, err := strconv.Atoi(c.Param("scene_id"))
	if err != nil || sceneID < 1 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    40001,
			Message: "Invalid scene_id",
		})
		return
	}

	updated, err := h.pipelineService.RegenerateScene(c.Request.Context(), runID, sceneID)
	if err != nil {
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
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "场景已重新生成",
		"data":    toRunInfo(updated),
	})
}
