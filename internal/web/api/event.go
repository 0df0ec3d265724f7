package api

import (
	"github.com/gin-gonic/gin"
	"github.com/gowvp/kestrel/internal/core/event"
	"github.com/ixugo/goddd/pkg/web"
)

// EventAPI 检测事件查询
type EventAPI struct {
	events event.Core
}

func NewEventAPI(events event.Core) EventAPI {
	return EventAPI{events: events}
}

func registerEventAPI(r gin.IRouter, api EventAPI, handler ...gin.HandlerFunc) {
	group := r.Group("/api/events", handler...)
	group.GET("", web.WrapH(api.findEvents))
}

type findEventsOutput struct {
	Items []*event.Event `json:"items"`
	Total int64          `json:"total"`
}

func (a EventAPI) findEvents(c *gin.Context, in *event.FindEventsInput) (*findEventsOutput, error) {
	items, total, err := a.events.FindEvents(c.Request.Context(), in)
	if err != nil {
		return nil, err
	}
	return &findEventsOutput{Items: items, Total: total}, nil
}
