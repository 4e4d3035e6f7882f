package request

// WebSocketMessage represents a message sent over WebSocket
type WebSocketMessage struct {
	Type    string      `json:"type"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Success bool        `json:"success"`
}

// RequestMeta 每个请求都可以带上 request_id, 响应中原样返回
type RequestMeta struct {
	RequestID string `json:"request_id,omitempty"`
}

// LuaPathRequest lua_extract / file_backup 请求
type LuaPathRequest struct {
	RequestMeta
	Path string `json:"path"`
}

// LuaUpdate 一次值修改; Field 非空时修改表中的字段
// Raw 非空时按原样写入 lua 源码, 忽略 Value
type LuaUpdate struct {
	Name  string      `json:"name"`
	Field string      `json:"field,omitempty"`
	Value interface{} `json:"value"`
	Raw   *string     `json:"raw,omitempty"`
}

// LuaPatchRequest lua_patch 请求
type LuaPatchRequest struct {
	RequestMeta
	Path    string      `json:"path"`
	Updates []LuaUpdate `json:"updates"`
}

// LuaFilesRequest lua_files 请求
type LuaFilesRequest struct {
	RequestMeta
	Dir string `json:"dir"`
}

// ConfigSaveRequest config_save 请求
type ConfigSaveRequest struct {
	RequestMeta
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ConfigIDRequest config_details / config_apply / config_delete / config_export 请求
type ConfigIDRequest struct {
	RequestMeta
	ID string `json:"id"`
}

// ConfigUpdateRequest config_update 请求; 未提供的字段保持不变
type ConfigUpdateRequest struct {
	RequestMeta
	ID          string  `json:"id"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// HistoryListRequest history_list 请求
type HistoryListRequest struct {
	RequestMeta
	Limit int `json:"limit"`
}

// FileChangedEvent config_file_changed 推送
type FileChangedEvent struct {
	Path      string `json:"path"`
	Op        string `json:"op"`
	Timestamp int64  `json:"timestamp"`
}

// SystemStatus 主机状态和快照目录占用
type SystemStatus struct {
	CPUUsage      float64 `json:"cpu_usage"`
	MemUsage      float64 `json:"mem_usage"`
	DiskUsage     float64 `json:"disk_usage"`
	DiskFree      uint64  `json:"disk_free"`
	SnapshotBytes int64   `json:"snapshot_bytes"`
	SnapshotFiles int     `json:"snapshot_files"`
	OS            string  `json:"os"`
	Arch          string  `json:"arch"`
	Timestamp     int64   `json:"timestamp"`
}
