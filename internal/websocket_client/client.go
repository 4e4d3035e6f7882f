package websocket_client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	_const "swgconf/internal/const"
	"swgconf/internal/logger"
)

// Client represents a WebSocket client
type Client struct {
	url           string
	conn          *websocket.Conn
	logger        *logger.Logger
	mutex         sync.RWMutex
	writeMu       sync.Mutex // gorilla 连接同一时间只允许一个写入者
	isRunning     bool
	reconnecting  bool
	reconnectChan chan struct{}
	ctx           context.Context
	cancel        context.CancelFunc
	// 重连配置
	maxRetries       int
	retryInterval    time.Duration
	maxRetryInterval time.Duration
	// 心跳配置
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
	lastHeartbeat     time.Time
	// 回调函数
	onConnect    func()
	onDisconnect func()
	onReconnect  func()
}

// New creates a new WebSocket client
func New(url string, logger *logger.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		url:               url,
		logger:            logger,
		ctx:               ctx,
		cancel:            cancel,
		reconnectChan:     make(chan struct{}, 1),
		maxRetries:        -1, // 无限重试
		retryInterval:     _const.RetryInterval,
		maxRetryInterval:  _const.MaxRetryInterval,
		heartbeatInterval: _const.HeartbeatInterval,
		heartbeatTimeout:  _const.HeartbeatTimeout,
	}
}

// Connect establishes a WebSocket connection
func (c *Client) Connect() error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   _const.ReadBufferSize,
		WriteBufferSize:  _const.WriteBufferSize,
	}

	conn, _, err := dialer.DialContext(c.ctx, c.url, nil)
	if err != nil {
		return err
	}
	conn.SetReadLimit(_const.MaxMessageSize)

	c.mutex.Lock()
	c.conn = conn
	c.isRunning = true
	c.lastHeartbeat = time.Now()
	onConnect := c.onConnect
	c.mutex.Unlock()

	c.logger.Info("Connected to WebSocket server: %s", c.url)

	// 调用连接回调 (不持有锁, 回调里会发送消息)
	if onConnect != nil {
		onConnect()
	}

	return nil
}

// ConnectWithAutoReconnect establishes a WebSocket connection with auto-reconnect
func (c *Client) ConnectWithAutoReconnect() error {
	if err := c.Connect(); err != nil {
		return err
	}

	// 启动重连监控和心跳
	go c.monitorConnection()
	go c.heartbeatLoop()

	return nil
}

// Close closes the WebSocket connection
func (c *Client) Close() error {
	c.mutex.Lock()
	c.isRunning = false
	c.cancel()
	conn := c.conn
	c.conn = nil
	onDisconnect := c.onDisconnect
	c.mutex.Unlock()

	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	err := conn.Close()

	// 调用断开连接回调
	if onDisconnect != nil {
		onDisconnect()
	}

	return err
}

// SendMessage sends a message via WebSocket
func (c *Client) SendMessage(message interface{}) error {
	c.mutex.RLock()
	conn := c.conn
	running := c.isRunning
	c.mutex.RUnlock()

	if !running || conn == nil {
		return websocket.ErrCloseSent
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(message)
}

// ReadMessage reads a message from WebSocket
func (c *Client) ReadMessage(message interface{}) error {
	c.mutex.RLock()
	if !c.isRunning || c.conn == nil {
		c.mutex.RUnlock()
		return websocket.ErrCloseSent
	}
	conn := c.conn
	c.mutex.RUnlock()

	_, data, err := conn.ReadMessage()
	if err != nil {
		// 连接断开，触发重连
		c.handleDisconnection(conn)
		return err
	}

	// 任何入站消息都说明连接存活
	c.mutex.Lock()
	c.lastHeartbeat = time.Now()
	c.mutex.Unlock()

	return json.Unmarshal(data, message)
}

// IsConnected returns whether the client is connected
func (c *Client) IsConnected() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.isRunning && c.conn != nil
}

// SetCallbacks sets callback functions for connection events
func (c *Client) SetCallbacks(onConnect, onDisconnect, onReconnect func()) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.onConnect = onConnect
	c.onDisconnect = onDisconnect
	c.onReconnect = onReconnect
}

// SetRetryConfig sets retry configuration
func (c *Client) SetRetryConfig(maxRetries int, retryInterval, maxRetryInterval time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.maxRetries = maxRetries
	c.retryInterval = retryInterval
	c.maxRetryInterval = maxRetryInterval
}

// SetHeartbeatConfig sets heartbeat configuration
func (c *Client) SetHeartbeatConfig(interval, timeout time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.heartbeatInterval = interval
	c.heartbeatTimeout = timeout
}

// monitorConnection monitors the connection and handles reconnection
func (c *Client) monitorConnection() {
	ticker := time.NewTicker(30 * time.Second) // 每30秒检查一次连接
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if !c.IsConnected() {
				c.logger.Warn("Connection lost, attempting to reconnect...")
				c.startReconnect()
				continue
			}

			// 检查心跳超时
			c.mutex.RLock()
			lastHeartbeat := c.lastHeartbeat
			heartbeatTimeout := c.heartbeatTimeout
			conn := c.conn
			c.mutex.RUnlock()

			if time.Since(lastHeartbeat) > heartbeatTimeout {
				c.logger.Warn("Heartbeat timeout, attempting to reconnect...")
				c.handleDisconnection(conn)
			}
		case <-c.reconnectChan:
			c.startReconnect()
		}
	}
}

// heartbeatLoop sends periodic heartbeat messages
func (c *Client) heartbeatLoop() {
	c.mutex.RLock()
	interval := c.heartbeatInterval
	c.mutex.RUnlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if !c.IsConnected() {
				continue
			}
			heartbeatMsg := map[string]interface{}{
				"type": "heartbeat",
				"data": map[string]interface{}{
					"timestamp": time.Now().Unix(),
				},
			}

			if err := c.SendMessage(heartbeatMsg); err != nil {
				c.logger.Error("Failed to send heartbeat: %v", err)
				c.mutex.RLock()
				conn := c.conn
				c.mutex.RUnlock()
				c.handleDisconnection(conn)
			}
		}
	}
}

// handleDisconnection handles disconnection events for conn; a stale
// connection that was already replaced is ignored.
func (c *Client) handleDisconnection(conn *websocket.Conn) {
	c.mutex.Lock()
	if conn == nil || c.conn != conn {
		c.mutex.Unlock()
		return
	}
	c.isRunning = false
	c.conn.Close()
	c.conn = nil
	onDisconnect := c.onDisconnect
	c.mutex.Unlock()

	if c.ctx.Err() != nil {
		return
	}

	c.logger.Warn("WebSocket disconnected, attempting to reconnect...")

	// 调用断开连接回调
	if onDisconnect != nil {
		onDisconnect()
	}

	// 触发重连
	select {
	case c.reconnectChan <- struct{}{}:
	default:
	}
}

func (c *Client) startReconnect() {
	c.mutex.Lock()
	if c.reconnecting {
		c.mutex.Unlock()
		return
	}
	c.reconnecting = true
	c.mutex.Unlock()

	go c.reconnect()
}

// reconnect attempts to reconnect to the WebSocket server
func (c *Client) reconnect() {
	defer func() {
		c.mutex.Lock()
		c.reconnecting = false
		c.mutex.Unlock()
	}()

	c.mutex.RLock()
	backoff := c.retryInterval
	maxRetries := c.maxRetries
	maxInterval := c.maxRetryInterval
	c.mutex.RUnlock()
	retryCount := 0

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(backoff):
			c.logger.Info("Attempting to reconnect... (attempt %d)", retryCount+1)

			if err := c.Connect(); err != nil {
				c.logger.Error("Reconnection failed: %v", err)
				retryCount++

				// 检查是否达到最大重试次数
				if maxRetries > 0 && retryCount >= maxRetries {
					c.logger.Error("Max retry attempts reached, giving up")
					return
				}

				// 指数退避
				backoff *= 2
				if backoff > maxInterval {
					backoff = maxInterval
				}
				continue
			}

			c.logger.Info("Reconnected successfully")

			c.mutex.RLock()
			onReconnect := c.onReconnect
			c.mutex.RUnlock()
			// 调用重连回调
			if onReconnect != nil {
				onReconnect()
			}
			return
		}
	}
}
