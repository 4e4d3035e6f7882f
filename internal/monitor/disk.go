package monitor

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"

	"swgconf/internal/logger"
	"swgconf/model"
)

// DiskInfo 磁盘空间信息
type DiskInfo struct {
	Path        string  `json:"path"`
	Total       uint64  `json:"total_bytes"`
	Free        uint64  `json:"free_bytes"`
	Used        uint64  `json:"used_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

// DiskUsage 获取 path 所在磁盘的使用情况, path 不存在时使用最近的已存在父目录
func DiskUsage(path string) (*DiskInfo, error) {
	dir, err := existingParent(path)
	if err != nil {
		return nil, err
	}
	usage, err := disk.Usage(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get disk usage: %w", err)
	}
	return &DiskInfo{
		Path:        dir,
		Total:       usage.Total,
		Free:        usage.Free,
		Used:        usage.Used,
		UsedPercent: usage.UsedPercent,
	}, nil
}

func existingParent(path string) (string, error) {
	dir, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(dir); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no existing parent for %s", path)
		}
		dir = parent
	}
}

// TreeSize 统计目录下所有普通文件的总大小和数量, 目录不存在时返回 0
func TreeSize(dir string) (int64, int, error) {
	var size int64
	var count int
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == dir {
				return filepath.SkipDir
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size += info.Size()
		count++
		return nil
	})
	return size, count, err
}

// DiskProbe 保存快照前检查快照目录的剩余空间
type DiskProbe struct {
	root    string
	reserve uint64
	logger  *logger.Logger
}

// NewDiskProbe creates a probe for the snapshot root. reserveMB is kept
// free on top of the data being copied.
func NewDiskProbe(root string, reserveMB int, logger *logger.Logger) *DiskProbe {
	if reserveMB < 0 {
		reserveMB = 0
	}
	return &DiskProbe{
		root:    root,
		reserve: uint64(reserveMB) * 1024 * 1024,
		logger:  logger,
	}
}

// Check 估算一次快照需要的空间, 空间不足时只记录警告, 不阻止保存
// 返回值表示空间是否足够
func (p *DiskProbe) Check(sources []model.ConfigSource) bool {
	var need int64
	for _, src := range sources {
		size, _, err := TreeSize(src.Source)
		if err != nil {
			p.logger.Warn("Failed to measure %s: %v", src.Source, err)
			continue
		}
		need += size
	}

	info, err := DiskUsage(p.root)
	if err != nil {
		p.logger.Warn("Failed to check free space for %s: %v", p.root, err)
		return true
	}
	if info.Free < p.reserve || info.Free-p.reserve < uint64(need) {
		p.logger.Warn("Low disk space for snapshot: %d bytes free, %d bytes needed plus %d reserved",
			info.Free, need, p.reserve)
		return false
	}
	return true
}
