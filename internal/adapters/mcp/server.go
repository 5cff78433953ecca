// Package mcp exposes the engine as an MCP server so agent runtimes can
// submit turns and manage snapshots as tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/masltov-creations/opencommotion"
	"github.com/masltov-creations/opencommotion/pkg/scene"
	"github.com/masltov-creations/opencommotion/pkg/turns"
)

// Server wraps the turn coordinator and exposes it over MCP.
type Server struct {
	coordinator *turns.Coordinator
	mcpServer   *server.MCPServer
}

// NewServer creates an MCP server over the coordinator.
func NewServer(coordinator *turns.Coordinator) *Server {
	s := &Server{
		coordinator: coordinator,
		mcpServer:   server.NewMCPServer("opencommotion-mcp", strings.TrimSpace(opencommotion.Version)),
	}
	s.registerTools()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) registerTools() {
	submitTool := mcp.NewTool("submit_turn",
		mcp.WithDescription("Compile a list of visual strokes and commit them to a scene as one atomic turn."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session the turn belongs to")),
		mcp.WithString("scene_id", mcp.Required(), mcp.Description("Scene to mutate")),
		mcp.WithString("turn_id", mcp.Description("Client-chosen id; resubmitting the same id replays the committed result")),
		mcp.WithNumber("base_revision", mcp.Description("Scene revision the strokes were authored against")),
		mcp.WithString("strokes", mcp.Required(), mcp.Description("JSON array of stroke objects")),
		mcp.WithBoolean("rebuild", mcp.Description("Set when the turn intentionally replaces most of the scene")),
		mcp.WithOutputSchema[scene.TurnResult](),
	)
	s.mcpServer.AddTool(submitTool, mcp.NewStructuredToolHandler(s.handleSubmitTurn))

	s.mcpServer.AddTool(mcp.NewTool("get_scene",
		mcp.WithDescription("Fetch a scene's full current state, including its revision."),
		mcp.WithString("scene_id", mcp.Required(), mcp.Description("Scene to fetch")),
	), s.handleGetScene)

	s.mcpServer.AddTool(mcp.NewTool("snapshot_scene",
		mcp.WithDescription("Persist the scene's current state under a snapshot id."),
		mcp.WithString("scene_id", mcp.Required(), mcp.Description("Scene to snapshot")),
		mcp.WithString("snapshot_id", mcp.Required(), mcp.Description("Name for the snapshot")),
	), s.handleSnapshotScene)

	s.mcpServer.AddTool(mcp.NewTool("restore_scene",
		mcp.WithDescription("Replace the scene's state with a previously saved snapshot."),
		mcp.WithString("scene_id", mcp.Required(), mcp.Description("Scene to restore")),
		mcp.WithString("snapshot_id", mcp.Required(), mcp.Description("Snapshot to restore from")),
	), s.handleRestoreScene)

	s.mcpServer.AddTool(mcp.NewTool("list_snapshots",
		mcp.WithDescription("List a scene's saved snapshots, newest first."),
		mcp.WithString("scene_id", mcp.Required(), mcp.Description("Scene to inspect")),
	), s.handleListSnapshots)
}

func (s *Server) handleSubmitTurn(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (scene.TurnResult, error) {
	sessionID, _ := args["session_id"].(string)
	sceneID, _ := args["scene_id"].(string)
	turnID, _ := args["turn_id"].(string)

	var baseRevision int64
	if raw, ok := args["base_revision"].(float64); ok {
		baseRevision = int64(raw)
	}

	strokesJSON, _ := args["strokes"].(string)
	var strokes []scene.Stroke
	if err := json.Unmarshal([]byte(strokesJSON), &strokes); err != nil {
		return scene.TurnResult{}, fmt.Errorf("strokes must be a JSON array: %w", err)
	}

	rebuild, _ := args["rebuild"].(bool)

	result, _, err := s.coordinator.Submit(ctx, turns.Submission{
		SessionID:    sessionID,
		SceneID:      sceneID,
		TurnID:       turnID,
		BaseRevision: baseRevision,
		Strokes:      strokes,
		Rebuild:      rebuild,
	})
	if err != nil {
		return scene.TurnResult{}, err
	}
	return result, nil
}

func (s *Server) handleGetScene(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sceneID, _ := request.GetArguments()["scene_id"].(string)
	sc, err := s.coordinator.Scene(ctx, sceneID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("scene fetch failed: %v", err)), nil
	}
	jsonBytes, _ := json.Marshal(sc)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleSnapshotScene(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	sceneID, _ := args["scene_id"].(string)
	snapshotID, _ := args["snapshot_id"].(string)

	info, err := s.coordinator.Store().Snapshot(ctx, sceneID, snapshotID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("snapshot failed: %v", err)), nil
	}
	jsonBytes, _ := json.Marshal(info)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleRestoreScene(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	sceneID, _ := args["scene_id"].(string)
	snapshotID, _ := args["snapshot_id"].(string)

	restored, err := s.coordinator.Store().Restore(ctx, sceneID, snapshotID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("restore failed: %v", err)), nil
	}
	jsonBytes, _ := json.Marshal(restored)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleListSnapshots(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sceneID, _ := request.GetArguments()["scene_id"].(string)
	infos, err := s.coordinator.Store().ListSnapshots(ctx, sceneID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("snapshot list failed: %v", err)), nil
	}
	jsonBytes, _ := json.Marshal(infos)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}
