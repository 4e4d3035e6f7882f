package _const

// 配置相关常量
const (
	// 默认配置值
	DefaultSnapshotDirName = "configurations"     // 快照根目录名 (位于可执行文件目录下)
	DefaultHistoryDB       = "swgconf_history.db" // 操作历史数据库
	DefaultLogLevel        = "info"
	DefaultDiskReserveMB   = 100 // 保存快照时预留的磁盘空间 (MB)
	DefaultWatchDebounceMS = 500 // 文件变更去抖时间 (毫秒)
	DefaultExportPrefix    = "swgconf"

	// 项目根目录识别文件
	ProjectMarkerFile = "docker-compose.yml"

	// 快照存储
	LedgerFileName = "metadata.json"
	LockFileSuffix = ".lock" // 文件锁放在快照根目录旁边, 根目录下只保留台账
	DirPerm        = 0755
	FilePerm       = 0644

	// Lua 配置文件
	LuaExtension = ".lua"
	BackupInfix  = ".backup-" // <file>.backup-<timestamp>

	// 历史记录查询
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
	HistoryRetention    = 10000 // 启动时只保留最近的历史记录
	MaxHistoryDetail    = 500   // 历史记录详情最大长度
)
