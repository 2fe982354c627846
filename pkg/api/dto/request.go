package dto

// ListQueryRequest 通用列表查询请求
type ListQueryRequest struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

// EventStreamRequest 事件流订阅请求，Types 为空时接收全部事件
type EventStreamRequest struct {
	Types []string `form:"type"`
}

// GetDefaultLimit 获取默认limit
func (r *ListQueryRequest) GetDefaultLimit() int {
	if r.Limit <= 0 {
		return 20
	}
	return r.Limit
}
