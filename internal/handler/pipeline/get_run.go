package pipeline

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"storyforge/internal/repository/run"
)

// GetRun 查询运行状态
// @Summary      查询运行状态
// @Description  返回运行的完整状态，包括各阶段进度、场景列表和校验报告。优先读实时快照缓存。
// @Tags         流水线
// @Produce      json
// @Param        id  path      string  true  "运行ID"
// @Success      200  {object}  map[string]interface{}  "成功响应"
// @Failure      404  {object}  ErrorResponse  "运行不存在"
// @Failure      500  {object}  ErrorResponse  "服务器内部错误"
// @Router       /api/v1/pipeline/runs/{id} [get]
func (h *Handler) GetRun(c *gin.Context) {
	runID := c.Param("id")

	r, err := h.pipelineService.GetRun(c.Request.Context(), runID)
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
		"message": "success",
		"data":    toRunInfo(r),
	})
}

// ListRuns 查询运行列表
// @Summary      查询运行列表
// @Description  分页查询全部运行，支持按状态筛选。
// @Tags         流水线
// @Produce      json
// @Param        page       query     int     false  "页码（默认1）"
// @Param        page_size  query     int     false  "每页数量（默认20）"
// @Param        status     query     string  false  "状态筛选：pending/running/paused/completed/failed"
// @Success      200  {object}  map[string]interface{}  "成功响应"
// @Failure      500  {object}  ErrorResponse  "服务器内部错误"
// @Router       /api/v1/pipeline/runs [get]
func (h *Handler) ListRuns(c *gin.Context) {
	page, _ := strconv.ParseInt(c.DefaultQuery("page", "1"), 10, 64)
	pageSize, _ := strconv.ParseInt(c.DefaultQuery("page_size", "20"), 10, 64)
	status := c.Query("status")

	runs, total, err := h.pipelineService.ListRuns(c.Request.Context(), page, pageSize, status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    50001,
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "success",
		"data": gin.H{
			"runs":  toRunInfoList(runs),
			"total": total,
			"page":  page,
		},
	})
}
