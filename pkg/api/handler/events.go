package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/LENAX/eoflow/pkg/api/dto"
	"github.com/LENAX/eoflow/pkg/core/events"
)

const writeWait = 10 * time.Second

// Subscriber 事件订阅接口
type Subscriber interface {
	Subscribe(ctx context.Context, types ...events.EventType) (<-chan *events.Event, error)
}

// EventsHandler 通过WebSocket推送运行事件
type EventsHandler struct {
	bus      Subscriber
	upgrader websocket.Upgrader
	log      logrus.FieldLogger
}

// NewEventsHandler 创建EventsHandler
func NewEventsHandler(bus Subscriber, log logrus.FieldLogger) *EventsHandler {
	return &EventsHandler{
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

// Stream 订阅事件流，可用 ?type=run.failed&type=run.timeout 过滤
// GET /api/v1/events
func (h *EventsHandler) Stream(c *gin.Context) {
	if h.bus == nil {
		c.JSON(http.StatusServiceUnavailable, dto.NewErrorResponse(503, "事件总线未启用"))
		return
	}
	var req dto.EventStreamRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("查询参数错误: %v", err)))
		return
	}
	types, err := parseEventTypes(req.Types)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, err.Error()))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Warn("WebSocket升级失败")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := h.bus.Subscribe(ctx, types...)
	if err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()))
		return
	}

	// 客户端断开时结束订阅
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for ev := range ch {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(ev); err != nil {
			h.log.WithError(err).Debug("推送事件失败，关闭连接")
			return
		}
	}
}

func parseEventTypes(raw []string) ([]events.EventType, error) {
	valid := make(map[events.EventType]bool)
	for _, t := range events.AllEventTypes() {
		valid[t] = true
	}
	types := make([]events.EventType, 0, len(raw))
	for _, s := range raw {
		t := events.EventType(s)
		if !valid[t] {
			return nil, fmt.Errorf("未知的事件类型: %s", s)
		}
		types = append(types, t)
	}
	return types, nil
}
