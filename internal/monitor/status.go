package monitor

import (
	"fmt"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"swgconf/internal/logger"
	"swgconf/model/request"
)

// CollectStatus 收集主机状态和快照目录的磁盘使用情况
// 单项采集失败只记录警告
func CollectStatus(snapshotRoot string, logger *logger.Logger) *request.SystemStatus {
	status := &request.SystemStatus{
		Timestamp: time.Now().Unix(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}

	// 收集CPU使用率
	if err := collectCPUUsage(status); err != nil {
		logger.Warn("Failed to collect CPU usage: %v", err)
	}

	// 收集内存使用率
	if memInfo, err := mem.VirtualMemory(); err != nil {
		logger.Warn("Failed to collect memory usage: %v", err)
	} else {
		status.MemUsage = memInfo.UsedPercent
	}

	// 快照目录所在磁盘
	if info, err := DiskUsage(snapshotRoot); err != nil {
		logger.Warn("Failed to collect disk usage: %v", err)
	} else {
		status.DiskUsage = info.UsedPercent
		status.DiskFree = info.Free
	}
	if size, count, err := TreeSize(snapshotRoot); err != nil {
		logger.Warn("Failed to measure snapshot root: %v", err)
	} else {
		status.SnapshotBytes = size
		status.SnapshotFiles = count
	}

	return status
}

// collectCPUUsage 收集CPU使用率
func collectCPUUsage(status *request.SystemStatus) error {
	percentages, err := cpu.Percent(200*time.Millisecond, false)
	if err != nil {
		return fmt.Errorf("failed to get CPU percentage: %w", err)
	}

	if len(percentages) > 0 {
		status.CPUUsage = percentages[0]
	}

	return nil
}
