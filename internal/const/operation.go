package _const

// 操作名称, 用于历史记录和监控指标
const (
	OpLuaPatch       = "lua_patch"
	OpFileBackup     = "file_backup"
	OpSnapshotSave   = "save"
	OpSnapshotApply  = "apply"
	OpSnapshotDelete = "delete"
	OpSnapshotUpdate = "update"
	OpSnapshotExport = "export"

	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultNoop    = "noop"

	// 快照应用结果
	OutcomeFull    = "full"
	OutcomePartial = "partial"
	OutcomeFailed  = "failed"
)
