package client

import (
	"errors"
	"fmt"
	"io/fs"

	"swgconf/internal/editor"
	"swgconf/internal/luasrc"
	"swgconf/internal/snapshot"
	"swgconf/model/request"
)

// handleLuaExtract 读取 lua 文件中的顶层变量
func (c *Client) handleLuaExtract(data interface{}) *request.WebSocketMessage {
	var req request.LuaPathRequest
	if err := decodeData(data, &req); err != nil {
		return response(MsgTypeLuaExtract, requestIDOf(data), nil, err.Error())
	}
	if req.Path == "" {
		return response(MsgTypeLuaExtract, req.RequestID, nil, "File path is required")
	}

	doc, err := c.editor.Load(req.Path)
	if err != nil {
		return c.fail(MsgTypeLuaExtract, req.RequestID, err)
	}

	return response(MsgTypeLuaExtract, req.RequestID, map[string]interface{}{
		"path":     doc.Path,
		"encoding": doc.Encoding,
		"values":   doc.Values,
	}, "")
}

// handleLuaPatch 按顺序修改 lua 文件中的变量, 写入前先备份
func (c *Client) handleLuaPatch(data interface{}) *request.WebSocketMessage {
	var req request.LuaPatchRequest
	if err := decodeData(data, &req); err != nil {
		return response(MsgTypeLuaPatch, requestIDOf(data), nil, err.Error())
	}
	if req.Path == "" {
		return response(MsgTypeLuaPatch, req.RequestID, nil, "File path is required")
	}
	if len(req.Updates) == 0 {
		return response(MsgTypeLuaPatch, req.RequestID, nil, "No updates given")
	}

	updates := make([]editor.Update, 0, len(req.Updates))
	for _, u := range req.Updates {
		if u.Name == "" {
			return response(MsgTypeLuaPatch, req.RequestID, nil, "Update without variable name")
		}
		value := luasrc.FromNative(u.Value)
		if u.Raw != nil {
			value = luasrc.Raw(*u.Raw)
		}
		updates = append(updates, editor.Update{
			Name:  u.Name,
			Field: u.Field,
			Value: value,
		})
	}

	result, err := c.editor.Apply(req.Path, updates)
	if err != nil {
		return c.fail(MsgTypeLuaPatch, req.RequestID, err)
	}
	return response(MsgTypeLuaPatch, req.RequestID, result, "")
}

// handleLuaFiles 列出目录下的 lua 文件
func (c *Client) handleLuaFiles(data interface{}) *request.WebSocketMessage {
	var req request.LuaFilesRequest
	if err := decodeData(data, &req); err != nil {
		return response(MsgTypeLuaFiles, requestIDOf(data), nil, err.Error())
	}
	if req.Dir == "" {
		return response(MsgTypeLuaFiles, req.RequestID, nil, "Directory is required")
	}

	files, err := c.editor.ListLuaFiles(req.Dir)
	if err != nil {
		return c.fail(MsgTypeLuaFiles, req.RequestID, err)
	}
	return response(MsgTypeLuaFiles, req.RequestID, map[string]interface{}{
		"dir":   req.Dir,
		"files": files,
		"total": len(files),
	}, "")
}

// handleFileBackup 手动备份单个文件
func (c *Client) handleFileBackup(data interface{}) *request.WebSocketMessage {
	var req request.LuaPathRequest
	if err := decodeData(data, &req); err != nil {
		return response(MsgTypeFileBackup, requestIDOf(data), nil, err.Error())
	}
	if req.Path == "" {
		return response(MsgTypeFileBackup, req.RequestID, nil, "File path is required")
	}

	backupPath, err := c.editor.Backup(req.Path)
	if err != nil {
		return c.fail(MsgTypeFileBackup, req.RequestID, err)
	}
	return response(MsgTypeFileBackup, req.RequestID, map[string]interface{}{
		"path":        req.Path,
		"backup_path": backupPath,
	}, "")
}

// fail answers a failed request. Missing snapshots and files carry
// code not_found.
func (c *Client) fail(msgType, requestID string, err error) *request.WebSocketMessage {
	data := map[string]interface{}{}
	if errors.Is(err, snapshot.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		data["code"] = ErrorCodeNotFound
		c.logger.Warn("%s: %v", msgType, err)
	} else {
		c.logger.Error("%s failed: %v", msgType, err)
	}
	return response(msgType, requestID, data, fmt.Sprintf("%v", err))
}
