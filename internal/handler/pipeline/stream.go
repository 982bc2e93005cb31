package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"storyforge/internal/repository/run"
	pipelinesvc "storyforge/internal/service/pipeline"
)

// StreamProgress 订阅运行进度（SSE）
// @Summary      订阅运行进度
// @Description  以Server-Sent Events推送运行进度。事件类型：log（进度日志）、error（非终止性错误）、done（终态，每次运行恰好一条）。done之后连接关闭。
// @Tags         流水线
// @Produce      text/event-stream
// @Param        id  path      string  true  "运行ID"
// @Success      200  {string}  string  "SSE事件流"
// @Failure      404  {object}  ErrorResponse  "运行不存在"
// @Router       /api/v1/pipeline/runs/{id}/stream [get]
func (h *Handler) StreamProgress(c *gin.Context) {
	runID := c.Param("id")

	ch, cancel, err := h.pipelineService.Subscribe(c.Request.Context(), runID)
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
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				return false
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			// done 是终态事件，推完即断开
			return ev.Type != pipelinesvc.EventDone
		case <-c.Request.Context().Done():
			return false
		}
	})
}
