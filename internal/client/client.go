package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"swgconf/config"
	_const "swgconf/internal/const"
	"swgconf/internal/cloud"
	"swgconf/internal/database"
	"swgconf/internal/editor"
	"swgconf/internal/logger"
	"swgconf/internal/metrics"
	"swgconf/internal/monitor"
	"swgconf/internal/snapshot"
	"swgconf/internal/utils"
	"swgconf/internal/watcher"
	"swgconf/internal/websocket_client"
	"swgconf/model"
	"swgconf/model/request"
)

// Client represents the swgconf agent
type Client struct {
	config      *config.Config
	projectRoot string
	logger      *logger.Logger
	wsClient    *websocket_client.Client
	history     *database.Client
	metrics     *metrics.Metrics
	editor      *editor.Service
	store       *snapshot.Store
	exporter    *cloud.Exporter
	watcher     *watcher.Watcher
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// Message types for WebSocket communication
const (
	MsgTypeAuth      = "auth"
	MsgTypeHeartbeat = "heartbeat"

	// Lua 配置文件
	MsgTypeLuaExtract = "lua_extract" // 读取文件中的变量
	MsgTypeLuaPatch   = "lua_patch"   // 修改变量
	MsgTypeLuaFiles   = "lua_files"   // 列出目录下的 lua 文件
	MsgTypeFileBackup = "file_backup" // 备份单个文件

	// 配置快照
	MsgTypeConfigSave    = "config_save"
	MsgTypeConfigList    = "config_list"
	MsgTypeConfigDetails = "config_details"
	MsgTypeConfigApply   = "config_apply"
	MsgTypeConfigDelete  = "config_delete"
	MsgTypeConfigUpdate  = "config_update"
	MsgTypeConfigExport  = "config_export"

	MsgTypeHistoryList  = "history_list"  // 操作历史
	MsgTypeSystemStatus = "system_status" // 系统状态

	// 推送
	MsgTypeConfigFileChanged = "config_file_changed" // 配置文件变更
)

// ErrorCodeNotFound marks responses for ids that do not exist
const ErrorCodeNotFound = "not_found"

// New creates the agent and the services it serves over WebSocket
func New(cfg *config.Config, logger *logger.Logger) (*Client, error) {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		config:  cfg,
		logger:  logger,
		metrics: metrics.New(),
		ctx:     ctx,
		cancel:  cancel,
	}
	if err := c.initialize(); err != nil {
		cancel()
		c.closeServices()
		return nil, err
	}
	return c, nil
}

func (c *Client) initialize() error {
	projectRoot, err := c.config.ResolveProjectRoot()
	if err != nil {
		return fmt.Errorf("failed to resolve project root: %w", err)
	}
	c.projectRoot = projectRoot
	c.logger.Info("Project root: %s", projectRoot)

	// 历史记录不可用时继续运行, 只是不再记录
	if historyPath, err := c.config.HistoryPath(); err != nil {
		c.logger.Warn("Failed to resolve history database path: %v", err)
	} else {
		db := database.New(historyPath, c.logger)
		if !db.IsAvailable() {
			c.logger.Info("Creating history database: %s", historyPath)
		}
		if err := db.Initialize(); err != nil {
			c.logger.Warn("History disabled: %v", err)
		} else {
			c.history = db
			if n, err := db.Prune(_const.HistoryRetention); err != nil {
				c.logger.Warn("Failed to prune history: %v", err)
			} else if n > 0 {
				c.logger.Info("Pruned %d old history entries", n)
			}
		}
	}

	var recorder editor.Recorder
	if c.history != nil {
		recorder = c.history
	}
	if c.editor, err = editor.New(projectRoot, recorder, c.metrics, c.logger); err != nil {
		return err
	}

	registry, err := snapshot.ResolveRegistry(projectRoot, c.config.ConfigSources)
	if err != nil {
		return fmt.Errorf("invalid config sources: %w", err)
	}
	snapshotRoot, err := c.config.SnapshotRoot()
	if err != nil {
		return fmt.Errorf("failed to resolve snapshot directory: %w", err)
	}
	probe := monitor.NewDiskProbe(snapshotRoot, c.config.DiskReserveMB, c.logger)
	c.store, err = snapshot.Open(snapshotRoot, registry, c.logger,
		snapshot.WithPreflight(func(sources []model.ConfigSource) { probe.Check(sources) }))
	if err != nil {
		return fmt.Errorf("failed to open snapshot store: %w", err)
	}
	c.logger.Info("Snapshot directory: %s", c.store.Root())
	c.reportRegistry()

	if c.config.Export.Enabled {
		exp := c.config.Export
		c.exporter, err = cloud.New(c.ctx, cloud.Config{
			Bucket:          exp.Bucket,
			Region:          exp.Region,
			Endpoint:        exp.Endpoint,
			Prefix:          exp.Prefix,
			PathStyle:       exp.PathStyle,
			AccessKeyID:     exp.AccessKeyID,
			SecretAccessKey: exp.SecretAccessKey,
		}, c.logger)
		if err != nil {
			c.logger.Warn("Snapshot export disabled: %v", err)
			c.exporter = nil
		}
	}
	return nil
}

// reportRegistry logs every managed directory and whether it exists
func (c *Client) reportRegistry() {
	for _, src := range c.store.Registry() {
		if info, err := os.Stat(src.Source); err == nil && info.IsDir() {
			c.logger.Info("Config source %-24s -> %s", src.Dest, src.Source)
		} else {
			c.logger.Warn("Config source %-24s -> %s (missing)", src.Dest, src.Source)
		}
	}
}

// Start starts the client
func (c *Client) Start() error {
	// Connect to WebSocket server
	u, err := url.Parse(c.config.ServerAddr)
	if err != nil {
		return fmt.Errorf("invalid server address: %w", err)
	}

	c.wsClient = websocket_client.New(u.String(), c.logger)

	// 连接 (包括重连) 成功后自动发送认证
	c.wsClient.SetCallbacks(
		func() {
			c.logger.Info("WebSocket connected, sending authentication...")
			authMsg := request.WebSocketMessage{
				Type: MsgTypeAuth,
				Data: map[string]interface{}{
					"token": c.config.Token,
				},
			}
			if err := c.wsClient.SendMessage(authMsg); err != nil {
				c.logger.Error("Failed to send authentication: %v", err)
			} else {
				c.logger.Info("Authentication message sent successfully")
			}
		},
		func() {
			c.logger.Warn("WebSocket disconnected")
		},
		func() {
			c.logger.Info("WebSocket reconnected")
		},
	)

	// 使用自动重连连接
	if err := c.wsClient.ConnectWithAutoReconnect(); err != nil {
		return fmt.Errorf("failed to connect to WebSocket server: %w", err)
	}

	// Start message handler
	c.wg.Add(1)
	go c.handleMessages()

	if c.config.Watch.Enabled {
		c.startWatcher()
	}

	if c.config.MetricsAddr != "" {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if err := c.metrics.Serve(c.ctx, c.config.MetricsAddr, c.logger); err != nil {
				c.logger.Error("Metrics server stopped: %v", err)
			}
		}()
	}

	c.logger.Info("swgconf agent started successfully")
	return nil
}

func (c *Client) startWatcher() {
	var dirs []string
	for _, src := range c.store.Registry() {
		dirs = append(dirs, src.Source)
	}
	c.watcher = watcher.New(dirs, c.config.Watch.Debounce(), c.logger, c.onFileChanged)
	if err := c.watcher.Start(); err != nil {
		c.logger.Warn("Failed to start file watcher: %v", err)
		c.watcher = nil
	}
}

// onFileChanged forwards a settled .lua change to the panel
func (c *Client) onFileChanged(path, op string) {
	c.logger.Debug("Config file %s: %s", op, path)
	c.send(MsgTypeConfigFileChanged, request.FileChangedEvent{
		Path:      path,
		Op:        op,
		Timestamp: time.Now().Unix(),
	}, "")
}

// Stop stops the client
func (c *Client) Stop() {
	c.logger.Info("Stopping swgconf agent...")

	c.cancel()

	if c.watcher != nil {
		c.watcher.Stop()
	}

	if c.wsClient != nil {
		if err := c.wsClient.Close(); err != nil {
			c.logger.Warn("Failed to close WebSocket client: %v", err)
		}
	}

	c.wg.Wait()
	c.closeServices()
	c.logger.Info("swgconf agent stopped")
}

func (c *Client) closeServices() {
	if c.history != nil {
		if err := c.history.Close(); err != nil {
			c.logger.Warn("Failed to close history database: %v", err)
		}
	}
}

// handleMessages handles incoming WebSocket messages
func (c *Client) handleMessages() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			// 检查WebSocket客户端是否仍然连接
			if !c.wsClient.IsConnected() {
				c.logger.Debug("WebSocket not connected, waiting for reconnection...")
				c.sleep(_const.DefaultWaitTime)
				continue
			}

			var msg request.WebSocketMessage
			if err := c.wsClient.ReadMessage(&msg); err != nil {
				if c.ctx.Err() != nil {
					return
				}
				if strings.Contains(err.Error(), "websocket: close") {
					c.logger.Debug("WebSocket connection closed, waiting for reconnection...")
					c.sleep(_const.DefaultWaitTime)
				} else {
					c.logger.Error("Failed to read WebSocket message: %v", err)
					c.sleep(_const.ShortWaitTime)
				}
				continue
			}

			c.handleMessage(msg)
		}
	}
}

func (c *Client) sleep(d time.Duration) {
	select {
	case <-c.ctx.Done():
	case <-time.After(d):
	}
}

// handleMessage handles a single WebSocket message
func (c *Client) handleMessage(msg request.WebSocketMessage) {
	c.logger.Debug("Received message: %s, Success: %v", msg.Type, msg.Success)
	if msg.Error != "" {
		c.logger.Error("Message error: %s", msg.Error)
	}

	if resp := c.dispatch(msg); resp != nil {
		if err := c.wsClient.SendMessage(resp); err != nil {
			c.logger.Error("Failed to send response: %v", err)
		}
	}
}

// dispatch runs the handler for msg and returns the response to send,
// or nil when the message needs no answer.
func (c *Client) dispatch(msg request.WebSocketMessage) *request.WebSocketMessage {
	switch msg.Type {
	case MsgTypeHeartbeat:
		// Heartbeat messages from server are handled silently
		c.logger.Debug("Received heartbeat from server")
		return nil
	case MsgTypeAuth:
		c.handleAuthResponse(msg)
		return nil
	case MsgTypeLuaExtract:
		return c.handleLuaExtract(msg.Data)
	case MsgTypeLuaPatch:
		return c.handleLuaPatch(msg.Data)
	case MsgTypeLuaFiles:
		return c.handleLuaFiles(msg.Data)
	case MsgTypeFileBackup:
		return c.handleFileBackup(msg.Data)
	case MsgTypeConfigSave:
		return c.handleConfigSave(msg.Data)
	case MsgTypeConfigList:
		return c.handleConfigList(msg.Data)
	case MsgTypeConfigDetails:
		return c.handleConfigDetails(msg.Data)
	case MsgTypeConfigApply:
		return c.handleConfigApply(msg.Data)
	case MsgTypeConfigDelete:
		return c.handleConfigDelete(msg.Data)
	case MsgTypeConfigUpdate:
		return c.handleConfigUpdate(msg.Data)
	case MsgTypeConfigExport:
		return c.handleConfigExport(msg.Data)
	case MsgTypeHistoryList:
		return c.handleHistoryList(msg.Data)
	case MsgTypeSystemStatus:
		return c.handleSystemStatus(msg.Data)
	default:
		c.logger.Warn("Unknown message type: %s", msg.Type)
		return nil
	}
}

// handleAuthResponse handles the authentication result from the server
func (c *Client) handleAuthResponse(msg request.WebSocketMessage) {
	if msg.Success {
		c.logger.Info("Authentication successful")
		return
	}
	c.logger.Error("Authentication failed: %s", msg.Error)
}

// send pushes an unsolicited message to the server
func (c *Client) send(msgType string, data interface{}, errorMsg string) {
	if c.wsClient == nil {
		return
	}
	if err := c.wsClient.SendMessage(response(msgType, "", data, errorMsg)); err != nil {
		c.logger.Error("Failed to send %s: %v", msgType, err)
	}
}

// response builds a reply. data is encoded into a JSON object so that
// request_id can be added next to the handler's fields.
func response(msgType, requestID string, data interface{}, errorMsg string) *request.WebSocketMessage {
	msg := &request.WebSocketMessage{
		Type:    msgType,
		Success: errorMsg == "",
		Error:   errorMsg,
	}

	fields := map[string]interface{}{}
	if data != nil {
		if m, ok := data.(map[string]interface{}); ok {
			fields = m
		} else if raw, err := json.Marshal(data); err == nil {
			if err := json.Unmarshal(raw, &fields); err != nil {
				// 不是对象, 放到 result 字段
				fields = map[string]interface{}{"result": data}
			}
		}
	}
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if len(fields) > 0 {
		msg.Data = fields
	}
	return msg
}

// decodeData converts the loosely typed message data into out
func decodeData(data interface{}, out interface{}) error {
	if data == nil {
		return fmt.Errorf("missing request data")
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("invalid request data: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("invalid request data: %w", err)
	}
	return nil
}

// requestIDOf extracts request_id from data that failed to decode
func requestIDOf(data interface{}) string {
	if m, ok := data.(map[string]interface{}); ok {
		id, _ := m["request_id"].(string)
		return id
	}
	return ""
}

// record stores one snapshot operation in the history
func (c *Client) record(action, target, detail string, success bool) {
	if c.history == nil {
		return
	}
	if err := c.history.Record(model.HistoryEntry{
		Action:  action,
		Target:  target,
		Detail:  utils.TruncateString(detail, _const.MaxHistoryDetail),
		Success: success,
	}); err != nil {
		c.logger.Warn("Failed to record %s history: %v", action, err)
	}
}
