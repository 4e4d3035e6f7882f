package client

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"swgconf/config"
	"swgconf/internal/logger"
	"swgconf/model"
	"swgconf/model/request"
)

const playerManagerSource = `-- player manager
performanceBuff = 1500
medicalDuration = 10800
jediEnabled = false
xpBonus = { 1, 2, 3 }
`

type testEnv struct {
	project string
	live    string
	cfg     *config.Config
	client  *Client
}

func newTestEnv(t *testing.T, serverAddr string) *testEnv {
	t.Helper()
	tmpDir := t.TempDir()
	project := filepath.Join(tmpDir, "project")
	live := filepath.Join(project, "player_manager", "player_manager.lua")
	if err := os.MkdirAll(filepath.Dir(live), 0755); err != nil {
		t.Fatalf("Failed to create project: %v", err)
	}
	if err := os.WriteFile(live, []byte(playerManagerSource), 0644); err != nil {
		t.Fatalf("Failed to write lua file: %v", err)
	}

	cfg := &config.Config{
		Token:       "secret",
		ServerAddr:  serverAddr,
		ProjectRoot: project,
		SnapshotDir: filepath.Join(tmpDir, "configurations"),
		HistoryDB:   filepath.Join(tmpDir, "history.db"),
		ConfigSources: []model.ConfigSource{
			{Source: "player_manager", Dest: "player_manager"},
			{Source: "loot_manager", Dest: "loot_manager"},
		},
	}
	c, err := New(cfg, logger.NewWithWriter(io.Discard))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	t.Cleanup(c.closeServices)
	return &testEnv{project: project, live: live, cfg: cfg, client: c}
}

// call dispatches one request and returns the JSON-decoded response
func (e *testEnv) call(t *testing.T, msgType string, data map[string]interface{}) (*request.WebSocketMessage, map[string]interface{}) {
	t.Helper()
	var payload interface{}
	if data != nil {
		payload = data
	}
	resp := e.client.dispatch(request.WebSocketMessage{Type: msgType, Data: payload})
	if resp == nil {
		t.Fatalf("Expected a response to %s", msgType)
	}
	if resp.Type != msgType {
		t.Fatalf("Expected response type %s, got %s", msgType, resp.Type)
	}
	fields := map[string]interface{}{}
	if resp.Data != nil {
		raw, err := json.Marshal(resp.Data)
		if err != nil {
			t.Fatalf("Failed to marshal response: %v", err)
		}
		if err := json.Unmarshal(raw, &fields); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
	}
	return resp, fields
}

func TestLuaExtractAndPatch(t *testing.T) {
	env := newTestEnv(t, "")

	resp, data := env.call(t, MsgTypeLuaExtract, map[string]interface{}{
		"path":       "player_manager/player_manager.lua",
		"request_id": "r1",
	})
	if !resp.Success {
		t.Fatalf("Extract failed: %s", resp.Error)
	}
	if data["request_id"] != "r1" {
		t.Fatalf("Expected request_id r1, got %v", data["request_id"])
	}
	values := data["values"].(map[string]interface{})
	if values["performanceBuff"] != float64(1500) || values["jediEnabled"] != false {
		t.Fatalf("Unexpected values: %v", values)
	}

	resp, data = env.call(t, MsgTypeLuaPatch, map[string]interface{}{
		"path": "player_manager/player_manager.lua",
		"updates": []interface{}{
			map[string]interface{}{"name": "performanceBuff", "value": 2000},
			map[string]interface{}{"name": "xpBonus", "field": "2", "value": 5},
			map[string]interface{}{"name": "unknownSetting", "value": true},
		},
	})
	if !resp.Success {
		t.Fatalf("Patch failed: %s", resp.Error)
	}
	if data["changed"] != true {
		t.Fatalf("Expected changed=true, got %v", data)
	}
	skipped, _ := data["skipped"].([]interface{})
	if len(skipped) != 1 || skipped[0] != "unknownSetting" {
		t.Fatalf("Expected unknownSetting skipped, got %v", data["skipped"])
	}
	backup, _ := data["backup_path"].(string)
	if _, err := os.Stat(backup); err != nil {
		t.Fatalf("Expected backup file: %v", err)
	}

	content, err := os.ReadFile(env.live)
	if err != nil {
		t.Fatalf("Failed to read patched file: %v", err)
	}
	want := strings.Replace(playerManagerSource, "performanceBuff = 1500", "performanceBuff = 2000", 1)
	want = strings.Replace(want, "{ 1, 2, 3 }", "{ 1, 5, 3 }", 1)
	if string(content) != want {
		t.Fatalf("Unexpected file content:\n%s", content)
	}
}

func TestLuaPatchRawValue(t *testing.T) {
	env := newTestEnv(t, "")

	resp, _ := env.call(t, MsgTypeLuaPatch, map[string]interface{}{
		"path": "player_manager/player_manager.lua",
		"updates": []interface{}{
			map[string]interface{}{"name": "medicalDuration", "raw": "3 * 3600"},
		},
	})
	if !resp.Success {
		t.Fatalf("Patch failed: %s", resp.Error)
	}
	content, err := os.ReadFile(env.live)
	if err != nil {
		t.Fatalf("Failed to read patched file: %v", err)
	}
	if !strings.Contains(string(content), "medicalDuration = 3 * 3600\n") {
		t.Fatalf("Expected raw expression written, got:\n%s", content)
	}

	// 形如 {"opaque": ...} 的对象是普通表, 不是源码
	resp, _ = env.call(t, MsgTypeLuaPatch, map[string]interface{}{
		"path": "player_manager/player_manager.lua",
		"updates": []interface{}{
			map[string]interface{}{"name": "performanceBuff", "value": map[string]interface{}{"opaque": "9999"}},
		},
	})
	if resp.Success {
		t.Fatal("Expected table value to be rejected")
	}
	after, err := os.ReadFile(env.live)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(after) != string(content) {
		t.Fatalf("Expected file unchanged, got:\n%s", after)
	}
}

func TestLuaPatchRejectsPathOutsideRoot(t *testing.T) {
	env := newTestEnv(t, "")
	resp, _ := env.call(t, MsgTypeLuaPatch, map[string]interface{}{
		"path":    "../outside.lua",
		"updates": []interface{}{map[string]interface{}{"name": "x", "value": 1}},
	})
	if resp.Success {
		t.Fatalf("Expected failure for path outside root")
	}
}

func TestLuaExtractMissingFile(t *testing.T) {
	env := newTestEnv(t, "")
	resp, data := env.call(t, MsgTypeLuaExtract, map[string]interface{}{"path": "player_manager/missing.lua"})
	if resp.Success {
		t.Fatalf("Expected failure for missing file")
	}
	if data["code"] != ErrorCodeNotFound {
		t.Fatalf("Expected not_found code, got %v", data["code"])
	}
}

func TestLuaFilesAndBackup(t *testing.T) {
	env := newTestEnv(t, "")
	resp, data := env.call(t, MsgTypeLuaFiles, map[string]interface{}{"dir": "player_manager"})
	if !resp.Success {
		t.Fatalf("List failed: %s", resp.Error)
	}
	files := data["files"].([]interface{})
	if len(files) != 1 || files[0] != "player_manager.lua" {
		t.Fatalf("Unexpected files: %v", files)
	}

	resp, data = env.call(t, MsgTypeFileBackup, map[string]interface{}{"path": "player_manager/player_manager.lua"})
	if !resp.Success {
		t.Fatalf("Backup failed: %s", resp.Error)
	}
	backup := data["backup_path"].(string)
	if !strings.Contains(filepath.Base(backup), "player_manager.lua.backup-") {
		t.Fatalf("Unexpected backup name: %s", backup)
	}
}

func TestConfigLifecycle(t *testing.T) {
	env := newTestEnv(t, "")

	resp, data := env.call(t, MsgTypeConfigSave, map[string]interface{}{"name": "weekly", "description": "before event"})
	if !resp.Success {
		t.Fatalf("Save failed: %s", resp.Error)
	}
	snap := data["snapshot"].(map[string]interface{})
	id := snap["id"].(string)
	if files := snap["files"].([]interface{}); len(files) != 1 || files[0] != "player_manager/player_manager.lua" {
		t.Fatalf("Unexpected snapshot files: %v", files)
	}
	if skipped := data["skipped"].([]interface{}); len(skipped) != 1 || skipped[0] != "loot_manager" {
		t.Fatalf("Expected loot_manager skipped, got %v", data["skipped"])
	}

	resp, data = env.call(t, MsgTypeConfigList, nil)
	if !resp.Success || data["total"] != float64(1) {
		t.Fatalf("Unexpected list response: %v %v", resp.Error, data)
	}

	resp, data = env.call(t, MsgTypeConfigUpdate, map[string]interface{}{"id": id, "name": "weekly-2"})
	if !resp.Success || data["name"] != "weekly-2" || data["description"] != "before event" {
		t.Fatalf("Unexpected update response: %v %v", resp.Error, data)
	}

	// 修改实际文件后应用快照, 内容应被恢复
	if err := os.WriteFile(env.live, []byte("performanceBuff = 1\n"), 0644); err != nil {
		t.Fatalf("Failed to modify live file: %v", err)
	}
	resp, data = env.call(t, MsgTypeConfigApply, map[string]interface{}{"id": id})
	if !resp.Success {
		t.Fatalf("Apply failed: %s", resp.Error)
	}
	if data["message"] != `Configuration "weekly-2" applied successfully. 1 files copied.` {
		t.Fatalf("Unexpected apply message: %v", data["message"])
	}
	content, err := os.ReadFile(env.live)
	if err != nil {
		t.Fatalf("Failed to read live file: %v", err)
	}
	if string(content) != playerManagerSource {
		t.Fatalf("Expected live file restored, got:\n%s", content)
	}

	resp, data = env.call(t, MsgTypeConfigDelete, map[string]interface{}{"id": id})
	if !resp.Success || data["message"] != `Configuration "weekly-2" deleted successfully` {
		t.Fatalf("Unexpected delete response: %v %v", resp.Error, data)
	}

	resp, data = env.call(t, MsgTypeConfigDetails, map[string]interface{}{"id": id, "request_id": "r9"})
	if resp.Success {
		t.Fatalf("Expected details of deleted snapshot to fail")
	}
	if data["code"] != ErrorCodeNotFound || data["request_id"] != "r9" {
		t.Fatalf("Expected not_found with request_id, got %v", data)
	}

	resp, data = env.call(t, MsgTypeHistoryList, map[string]interface{}{"limit": 10})
	if !resp.Success {
		t.Fatalf("History failed: %s", resp.Error)
	}
	entries := data["entries"].([]interface{})
	if len(entries) != 4 {
		t.Fatalf("Expected 4 history entries, got %d: %v", len(entries), entries)
	}
	if newest := entries[0].(map[string]interface{}); newest["action"] != "delete" {
		t.Fatalf("Expected newest entry to be delete, got %v", newest)
	}
}

func TestConfigApplyUnknownID(t *testing.T) {
	env := newTestEnv(t, "")
	resp, data := env.call(t, MsgTypeConfigApply, map[string]interface{}{"id": "missing"})
	if resp.Success {
		t.Fatalf("Expected failure for unknown id")
	}
	if data["code"] != ErrorCodeNotFound {
		t.Fatalf("Expected not_found code, got %v", data)
	}
}

func TestConfigSaveRequiresName(t *testing.T) {
	env := newTestEnv(t, "")
	resp, _ := env.call(t, MsgTypeConfigSave, map[string]interface{}{"name": "  "})
	if resp.Success || resp.Error != "Configuration name is required" {
		t.Fatalf("Expected name error, got %+v", resp)
	}
}

func TestConfigExportDisabled(t *testing.T) {
	env := newTestEnv(t, "")
	resp, _ := env.call(t, MsgTypeConfigExport, map[string]interface{}{"id": "any"})
	if resp.Success || resp.Error != "Snapshot export is not enabled" {
		t.Fatalf("Expected export disabled error, got %+v", resp)
	}
}

func TestInvalidPayload(t *testing.T) {
	env := newTestEnv(t, "")
	resp := env.client.dispatch(request.WebSocketMessage{Type: MsgTypeConfigDetails, Data: "not an object"})
	if resp == nil || resp.Success {
		t.Fatalf("Expected failure for invalid payload, got %+v", resp)
	}
	if env.client.dispatch(request.WebSocketMessage{Type: "unknown_type"}) != nil {
		t.Fatalf("Expected no response to unknown message type")
	}
}

func TestSystemStatus(t *testing.T) {
	env := newTestEnv(t, "")
	resp, data := env.call(t, MsgTypeSystemStatus, map[string]interface{}{"request_id": "s1"})
	if !resp.Success || data["request_id"] != "s1" {
		t.Fatalf("Unexpected status response: %+v %v", resp, data)
	}
	if _, ok := data["os"].(string); !ok {
		t.Fatalf("Expected os in status, got %v", data)
	}
}

func TestAgentOverWebSocket(t *testing.T) {
	conns := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	}))
	defer server.Close()

	env := newTestEnv(t, "ws"+strings.TrimPrefix(server.URL, "http"))
	if err := env.client.Start(); err != nil {
		t.Fatalf("Failed to start client: %v", err)
	}
	defer env.client.Stop()

	var conn *websocket.Conn
	select {
	case conn = <-conns:
	case <-time.After(5 * time.Second):
		t.Fatalf("Agent did not connect")
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var auth request.WebSocketMessage
	if err := conn.ReadJSON(&auth); err != nil {
		t.Fatalf("Failed to read auth: %v", err)
	}
	if auth.Type != MsgTypeAuth || auth.Data.(map[string]interface{})["token"] != "secret" {
		t.Fatalf("Unexpected auth message: %+v", auth)
	}
	if err := conn.WriteJSON(request.WebSocketMessage{Type: MsgTypeAuth, Success: true}); err != nil {
		t.Fatalf("Failed to answer auth: %v", err)
	}

	if err := conn.WriteJSON(request.WebSocketMessage{
		Type: MsgTypeConfigSave,
		Data: map[string]interface{}{"name": "remote", "request_id": "abc"},
	}); err != nil {
		t.Fatalf("Failed to send save request: %v", err)
	}

	var resp request.WebSocketMessage
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("Failed to read save response: %v", err)
	}
	if resp.Type != MsgTypeConfigSave || !resp.Success {
		t.Fatalf("Unexpected save response: %+v", resp)
	}
	data := resp.Data.(map[string]interface{})
	if data["request_id"] != "abc" {
		t.Fatalf("Expected request_id abc, got %v", data["request_id"])
	}
	if snap := data["snapshot"].(map[string]interface{}); snap["name"] != "remote" {
		t.Fatalf("Unexpected snapshot: %v", snap)
	}
}
