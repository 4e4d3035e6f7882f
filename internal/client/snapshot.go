package client

import (
	"fmt"
	"strings"
	"time"

	_const "swgconf/internal/const"
	"swgconf/internal/monitor"
	"swgconf/model"
	"swgconf/model/request"
)

// handleConfigSave 保存当前配置为新快照
func (c *Client) handleConfigSave(data interface{}) *request.WebSocketMessage {
	var req request.ConfigSaveRequest
	if err := decodeData(data, &req); err != nil {
		return response(MsgTypeConfigSave, requestIDOf(data), nil, err.Error())
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return response(MsgTypeConfigSave, req.RequestID, nil, "Configuration name is required")
	}

	start := time.Now()
	result, err := c.store.Save(c.ctx, name, req.Description)
	c.metrics.SnapshotOp(_const.OpSnapshotSave, err)
	if err != nil {
		c.record(_const.OpSnapshotSave, name, err.Error(), false)
		return c.fail(MsgTypeConfigSave, req.RequestID, err)
	}
	c.metrics.ObserveCopy(_const.OpSnapshotSave, time.Since(start))

	detail := fmt.Sprintf("%s: %d files, %d skipped, %d failed",
		name, len(result.Snapshot.Files), len(result.Skipped), len(result.Failures))
	c.record(_const.OpSnapshotSave, result.Snapshot.ID, detail, !result.Partial)
	return response(MsgTypeConfigSave, req.RequestID, result, "")
}

// handleConfigList 列出所有快照
func (c *Client) handleConfigList(data interface{}) *request.WebSocketMessage {
	requestID := requestIDOf(data)
	list, err := c.store.List(c.ctx)
	if err != nil {
		return c.fail(MsgTypeConfigList, requestID, err)
	}
	if list == nil {
		list = []model.SnapshotMetadata{}
	}
	return response(MsgTypeConfigList, requestID, map[string]interface{}{
		"configurations": list,
		"total":          len(list),
	}, "")
}

// handleConfigDetails 返回单个快照的记录
func (c *Client) handleConfigDetails(data interface{}) *request.WebSocketMessage {
	var req request.ConfigIDRequest
	if err := decodeData(data, &req); err != nil {
		return response(MsgTypeConfigDetails, requestIDOf(data), nil, err.Error())
	}

	meta, err := c.store.Get(c.ctx, req.ID)
	if err != nil {
		return c.fail(MsgTypeConfigDetails, req.RequestID, err)
	}
	return response(MsgTypeConfigDetails, req.RequestID, meta, "")
}

// handleConfigApply 把快照复制回实际配置目录
func (c *Client) handleConfigApply(data interface{}) *request.WebSocketMessage {
	var req request.ConfigIDRequest
	if err := decodeData(data, &req); err != nil {
		return response(MsgTypeConfigApply, requestIDOf(data), nil, err.Error())
	}

	start := time.Now()
	result, err := c.store.Apply(c.ctx, req.ID)
	c.metrics.SnapshotOp(_const.OpSnapshotApply, err)
	if err != nil {
		c.record(_const.OpSnapshotApply, req.ID, err.Error(), false)
		return c.fail(MsgTypeConfigApply, req.RequestID, err)
	}
	c.metrics.ObserveCopy(_const.OpSnapshotApply, time.Since(start))

	switch {
	case !result.Success:
		c.metrics.ApplyOutcome(_const.OutcomeFailed)
	case result.Partial:
		c.metrics.ApplyOutcome(_const.OutcomePartial)
	default:
		c.metrics.ApplyOutcome(_const.OutcomeFull)
	}
	c.record(_const.OpSnapshotApply, req.ID, result.Message, result.Success && !result.Partial)

	errorMsg := ""
	if !result.Success {
		errorMsg = result.Message
	}
	return response(MsgTypeConfigApply, req.RequestID, result, errorMsg)
}

// handleConfigDelete 删除快照记录和目录
func (c *Client) handleConfigDelete(data interface{}) *request.WebSocketMessage {
	var req request.ConfigIDRequest
	if err := decodeData(data, &req); err != nil {
		return response(MsgTypeConfigDelete, requestIDOf(data), nil, err.Error())
	}

	removed, err := c.store.Delete(c.ctx, req.ID)
	c.metrics.SnapshotOp(_const.OpSnapshotDelete, err)
	if err != nil {
		c.record(_const.OpSnapshotDelete, req.ID, err.Error(), false)
		if removed == nil {
			return c.fail(MsgTypeConfigDelete, req.RequestID, err)
		}
		// 记录已删除, 只是目录没删掉
		return response(MsgTypeConfigDelete, req.RequestID, map[string]interface{}{
			"configuration": removed,
		}, fmt.Sprintf("Failed to delete configuration: %v", err))
	}

	message := fmt.Sprintf("Configuration %q deleted successfully", removed.Name)
	c.record(_const.OpSnapshotDelete, req.ID, message, true)
	return response(MsgTypeConfigDelete, req.RequestID, map[string]interface{}{
		"configuration": removed,
		"message":       message,
	}, "")
}

// handleConfigUpdate 修改快照名称或描述
func (c *Client) handleConfigUpdate(data interface{}) *request.WebSocketMessage {
	var req request.ConfigUpdateRequest
	if err := decodeData(data, &req); err != nil {
		return response(MsgTypeConfigUpdate, requestIDOf(data), nil, err.Error())
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return response(MsgTypeConfigUpdate, req.RequestID, nil, "Configuration name cannot be empty")
	}

	meta, err := c.store.Update(c.ctx, req.ID, model.SnapshotUpdate{
		Name:        req.Name,
		Description: req.Description,
	})
	c.metrics.SnapshotOp(_const.OpSnapshotUpdate, err)
	if err != nil {
		c.record(_const.OpSnapshotUpdate, req.ID, err.Error(), false)
		return c.fail(MsgTypeConfigUpdate, req.RequestID, err)
	}
	c.record(_const.OpSnapshotUpdate, req.ID, meta.Name, true)
	return response(MsgTypeConfigUpdate, req.RequestID, meta, "")
}

// handleConfigExport 上传快照到 S3
func (c *Client) handleConfigExport(data interface{}) *request.WebSocketMessage {
	var req request.ConfigIDRequest
	if err := decodeData(data, &req); err != nil {
		return response(MsgTypeConfigExport, requestIDOf(data), nil, err.Error())
	}
	if c.exporter == nil {
		return response(MsgTypeConfigExport, req.RequestID, nil, "Snapshot export is not enabled")
	}

	meta, err := c.store.Get(c.ctx, req.ID)
	if err != nil {
		return c.fail(MsgTypeConfigExport, req.RequestID, err)
	}

	dir, err := c.store.Dir(meta.ID)
	if err != nil {
		return c.fail(MsgTypeConfigExport, req.RequestID, err)
	}

	start := time.Now()
	result, err := c.exporter.Export(c.ctx, meta, dir)
	c.metrics.SnapshotOp(_const.OpSnapshotExport, err)
	if err != nil {
		c.record(_const.OpSnapshotExport, req.ID, err.Error(), false)
		return c.fail(MsgTypeConfigExport, req.RequestID, err)
	}
	c.metrics.ObserveCopy(_const.OpSnapshotExport, time.Since(start))

	detail := fmt.Sprintf("%d uploaded, %d failed", len(result.Uploaded), len(result.Failures))
	c.record(_const.OpSnapshotExport, req.ID, detail, len(result.Failures) == 0)
	return response(MsgTypeConfigExport, req.RequestID, result, "")
}

// handleHistoryList 返回最近的操作历史
func (c *Client) handleHistoryList(data interface{}) *request.WebSocketMessage {
	var req request.HistoryListRequest
	if data != nil {
		if err := decodeData(data, &req); err != nil {
			return response(MsgTypeHistoryList, requestIDOf(data), nil, err.Error())
		}
	}
	if c.history == nil {
		return response(MsgTypeHistoryList, req.RequestID, nil, "History is not available")
	}

	entries, err := c.history.Recent(req.Limit)
	if err != nil {
		return c.fail(MsgTypeHistoryList, req.RequestID, err)
	}
	counts, err := c.history.CountByAction()
	if err != nil {
		c.logger.Warn("Failed to count history: %v", err)
	}
	return response(MsgTypeHistoryList, req.RequestID, map[string]interface{}{
		"entries": entries,
		"total":   len(entries),
		"counts":  counts,
	}, "")
}

// handleSystemStatus 返回主机和快照目录状态
func (c *Client) handleSystemStatus(data interface{}) *request.WebSocketMessage {
	status := monitor.CollectStatus(c.store.Root(), c.logger)
	return response(MsgTypeSystemStatus, requestIDOf(data), status, "")
}
