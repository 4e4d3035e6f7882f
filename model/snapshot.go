package model

import (
	"time"
)

// ConfigSource 一个受管理的配置目录, 以及它在快照中的子目录名
type ConfigSource struct {
	Source string `json:"source"` // 实际配置目录, 相对路径基于项目根目录
	Dest   string `json:"dest"`   // 快照内子目录名
}

// SnapshotMetadata 配置快照记录
type SnapshotMetadata struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Files       []string  `json:"files"` // 相对快照目录, 使用 / 分隔
}

// Ledger is the on-disk metadata file listing every saved snapshot.
type Ledger struct {
	Configurations []SnapshotMetadata `json:"configurations"`
}

// CopyFailure 单个配置目录的复制失败记录
type CopyFailure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// SaveResult 保存快照的结果
type SaveResult struct {
	Snapshot SnapshotMetadata `json:"snapshot"`
	Skipped  []string         `json:"skipped,omitempty"`  // 源目录不存在而跳过的条目
	Failures []CopyFailure    `json:"failures,omitempty"` // 复制失败的条目
	Partial  bool             `json:"partial"`
}

// ApplyDetails lists what an apply copied and what it could not.
type ApplyDetails struct {
	Success  []string      `json:"success"`
	Failures []CopyFailure `json:"failures"`
}

// ApplyResult 应用快照的结果
// Success 为 false 表示一个文件都没有复制, Partial 表示部分条目失败
type ApplyResult struct {
	Success bool         `json:"success"`
	Partial bool         `json:"partial"`
	Message string       `json:"message"`
	Details ApplyDetails `json:"details"`
}

// SnapshotUpdate holds the fields to change on a snapshot; nil leaves a
// field as it is.
type SnapshotUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// HistoryEntry 操作历史记录
type HistoryEntry struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Action    string    `json:"action"`
	Target    string    `json:"target"`
	Detail    string    `json:"detail"`
	Success   bool      `json:"success"`
}
