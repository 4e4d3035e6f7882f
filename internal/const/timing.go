package _const

import "time"

// 时间相关常量
const (
	// 等待时间常量
	DefaultWaitTime = 2 * time.Second // 默认等待时间
	ShortWaitTime   = 1 * time.Second // 短时间等待
	ShutdownTimeout = 5 * time.Second // 关闭 metrics 服务的超时时间

	// 连接相关常量
	HeartbeatInterval = 40 * time.Second // 心跳间隔
	HeartbeatTimeout  = 5 * time.Minute  // 心跳超时
	RetryInterval     = 5 * time.Second  // 重试间隔
	MaxRetryInterval  = 60 * time.Second // 最大重试间隔

	// 快照台账锁
	LedgerLockRetry   = 50 * time.Millisecond // 获取文件锁的重试间隔
	LedgerLockTimeout = 30 * time.Second      // 获取文件锁的超时时间

	// 缓冲区大小常量
	ReadBufferSize  = 128 * 1024      // 读取缓冲区大小
	WriteBufferSize = 128 * 1024      // 写入缓冲区大小
	MaxMessageSize  = 2 * 1024 * 1024 // 最大消息大小
)
