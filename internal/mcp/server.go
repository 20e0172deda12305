package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/AbdrAbdr/swarm-mcp/internal/arbiter"
	"github.com/AbdrAbdr/swarm-mcp/internal/election"
	"github.com/AbdrAbdr/swarm-mcp/internal/eventlog"
	"github.com/AbdrAbdr/swarm-mcp/internal/health"
	"github.com/AbdrAbdr/swarm-mcp/internal/identity"
	"github.com/AbdrAbdr/swarm-mcp/internal/models"
	"github.com/AbdrAbdr/swarm-mcp/internal/preempt"
	"github.com/AbdrAbdr/swarm-mcp/internal/pulse"
	"github.com/AbdrAbdr/swarm-mcp/internal/store"
)

// Server wraps the coordination core and exposes it as MCP tools, so an
// editing agent can register, pulse, elect, lock, and bid over stdio.
type Server struct {
	store     store.Store
	registrar *identity.Registrar
	pulses    *pulse.Tracker
	election  *election.Manager
	monitor   *health.Monitor
	arbiter   *arbiter.Arbiter
	log       *eventlog.Log
	preempt   *preempt.Controller
}

// NewServer wires the coordination components over one store.
func NewServer(s store.Store) *Server {
	tracker := pulse.NewTracker(s, pulse.DefaultStaleWindow)
	return &Server{
		store:     s,
		registrar: identity.NewRegistrar(s),
		pulses:    tracker,
		election:  election.New(s, tracker, election.DefaultTimeout),
		monitor:   health.NewMonitor(s, tracker),
		arbiter:   arbiter.New(s),
		log:       eventlog.New(s),
		preempt:   preempt.New(s, tracker),
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("swarm-mcp", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.registerTool())
	srv.AddTool(s.whoamiTool())
	srv.AddTool(s.pulseUpdateTool())
	srv.AddTool(s.pulseSnapshotTool())
	srv.AddTool(s.electTool())
	srv.AddTool(s.heartbeatTool())
	srv.AddTool(s.resignTool())
	srv.AddTool(s.orchestratorInfoTool())
	srv.AddTool(s.healthCheckTool())
	srv.AddTool(s.deadAgentsTool())
	srv.AddTool(s.forceReassignTool())
	srv.AddTool(s.reserveFileTool())
	srv.AddTool(s.releaseFileTool())
	srv.AddTool(s.listLocksTool())
	srv.AddTool(s.forecastTool())
	srv.AddTool(s.forecastConflictsTool())
	srv.AddTool(s.createTaskTool())
	srv.AddTool(s.claimTaskTool())
	srv.AddTool(s.releaseTaskTool())
	srv.AddTool(s.listTasksTool())
	srv.AddTool(s.announceTaskTool())
	srv.AddTool(s.bidTool())
	srv.AddTool(s.pollEventsTool())
	srv.AddTool(s.broadcastTool())
	srv.AddTool(s.urgentTriggerTool())
	srv.AddTool(s.urgentResolveTool())
	srv.AddTool(s.urgentActiveTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// selfID resolves the calling agent's stable identity.
func (s *Server) selfID() (string, error) {
	return s.registrar.AgentID()
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// splitList parses a comma-separated parameter into trimmed parts.
func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Identity and pulse
// ---------------------------------------------------------------------------

// swarm_register
func (s *Server) registerTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("swarm_register",
		mcp.WithDescription("Register this agent with the swarm. Idempotent: re-registering keeps the same display name and refreshes last_seen. Returns the agent identity as JSON."),
	)
	return tool, s.handleRegister
}

func (s *Server) handleRegister(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	info, err := s.registrar.Register(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to register: %v", err)), nil
	}
	return jsonResult(info)
}

// swarm_whoami
func (s *Server) whoamiTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("swarm_whoami",
		mcp.WithDescription("Return this agent's identity, or {\"registered\": false} if it has never registered."),
	)
	return tool, s.handleWhoami
}

func (s *Server) handleWhoami(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	info, found, err := s.registrar.Whoami(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to look up identity: %v", err)), nil
	}
	if !found {
		return jsonResult(map[string]any{"registered": false})
	}
	return jsonResult(map[string]any{"registered": true, "agent": info})
}

// swarm_pulse_update
func (s *Server) pulseUpdateTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("swarm_pulse_update",
		mcp.WithDescription("Publish this agent's liveness entry in the shared pulse map. Call periodically while working; agents silent past the liveness threshold are treated as dead."),
		mcp.WithString("branch", mcp.Description("Branch currently checked out")),
		mcp.WithString("current_file", mcp.Description("File currently being edited")),
		mcp.WithString("task_id", mcp.Description("Task currently claimed")),
		mcp.WithString("status", mcp.Description("Agent status: active, idle, paused, offline (default: active)")),
	)
	return tool, s.handlePulseUpdate
}

func (s *Server) handlePulseUpdate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agentID, err := s.selfID()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to resolve identity: %v", err)), nil
	}
	info, found, err := s.registrar.Whoami(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to look up identity: %v", err)), nil
	}
	if !found {
		return mcp.NewToolResultError("not registered; call swarm_register first"), nil
	}

	entry := models.PulseEntry{
		AgentID:       agentID,
		DisplayName:   info.DisplayName,
		PlatformTag:   info.PlatformTag,
		Hostname:      info.Hostname,
		Branch:        request.GetString("branch", ""),
		CurrentFile:   request.GetString("current_file", ""),
		CurrentTaskID: request.GetString("task_id", ""),
		Status:        models.AgentStatus(request.GetString("status", "")),
	}
	if err := s.pulses.Update(ctx, entry); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update pulse: %v", err)), nil
	}
	return jsonResult(map[string]any{"ok": true, "agent_id": agentID})
}

// swarm_pulse
func (s *Server) pulseSnapshotTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("swarm_pulse",
		mcp.WithDescription("Return the current pulse map: every agent's last reported branch, file, task, and status."),
	)
	return tool, s.handlePulseSnapshot
}

func (s *Server) handlePulseSnapshot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snapshot, err := s.pulses.Snapshot(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read pulse: %v", err)), nil
	}
	return jsonResult(snapshot)
}

// ---------------------------------------------------------------------------
// Election
// ---------------------------------------------------------------------------

// swarm_elect
func (s *Server) electTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("swarm_elect",
		mcp.WithDescription("Attempt to become the swarm orchestrator. Returns won=true on success, or the current leader when another orchestrator is still valid."),
	)
	return tool, s.handleElect
}

func (s *Server) handleElect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agentID, err := s.selfID()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to resolve identity: %v", err)), nil
	}
	info, found, err := s.registrar.Whoami(ctx)
	if err != nil || !found {
		return mcp.NewToolResultError("not registered; call swarm_register first"), nil
	}

	res, err := s.election.Elect(ctx, agentID, info.DisplayName, info.PlatformTag)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("election failed: %v", err)), nil
	}
	return jsonResult(res)
}

// swarm_heartbeat
func (s *Server) heartbeatTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("swarm_heartbeat",
		mcp.WithDescription("Renew this agent's orchestrator heartbeat. Returns renewed=false with the current leader if this agent is not the orchestrator."),
	)
	return tool, s.handleHeartbeat
}

func (s *Server) handleHeartbeat(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agentID, err := s.selfID()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to resolve identity: %v", err)), nil
	}
	res, err := s.election.Heartbeat(ctx, agentID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("heartbeat failed: %v", err)), nil
	}
	return jsonResult(res)
}

// swarm_resign
func (s *Server) resignTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("swarm_resign",
		mcp.WithDescription("Step down as orchestrator. A no-op if this agent is not the current leader."),
	)
	return tool, s.handleResign
}

func (s *Server) handleResign(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agentID, err := s.selfID()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to resolve identity: %v", err)), nil
	}
	resigned, err := s.election.Resign(ctx, agentID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("resign failed: %v", err)), nil
	}
	return jsonResult(map[string]any{"resigned": resigned})
}

// swarm_orchestrator
func (s *Server) orchestratorInfoTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("swarm_orchestrator",
		mcp.WithDescription("Return the current orchestrator and the executor roster, or {\"leader\": null} when no valid orchestrator exists."),
	)
	return tool, s.handleOrchestratorInfo
}

func (s *Server) handleOrchestratorInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rec, found, err := s.election.Info(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read orchestrator: %v", err)), nil
	}
	if !found {
		return jsonResult(map[string]any{"leader": nil})
	}
	executors, err := s.election.Executors(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list executors: %v", err)), nil
	}
	return jsonResult(map[string]any{"leader": rec, "executors": executors})
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

// swarm_health
func (s *Server) healthCheckTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("swarm_health",
		mcp.WithDescription("Check one agent's liveness by agent ID or display name. An agent with no pulse entry reports last_seen \"never\"."),
		mcp.WithString("agent", mcp.Required(), mcp.Description("Agent ID or display name")),
		mcp.WithString("threshold_minutes", mcp.Description("Liveness threshold in minutes (default: 30)")),
	)
	return tool, s.handleHealthCheck
}

func (s *Server) handleHealthCheck(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agent, err := request.RequireString("agent")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: agent"), nil
	}
	threshold, errResult := thresholdParam(request)
	if errResult != nil {
		return errResult, nil
	}

	h, err := s.monitor.CheckHealth(ctx, agent, threshold)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("health check failed: %v", err)), nil
	}
	return jsonResult(h)
}

// swarm_dead_agents
func (s *Server) deadAgentsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("swarm_dead_agents",
		mcp.WithDescription("List agents past the liveness threshold, with alive/dead counts."),
		mcp.WithString("threshold_minutes", mcp.Description("Liveness threshold in minutes (default: 30)")),
	)
	return tool, s.handleDeadAgents
}

func (s *Server) handleDeadAgents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	threshold, errResult := thresholdParam(request)
	if errResult != nil {
		return errResult, nil
	}
	report, err := s.monitor.ListDeadAgents(ctx, threshold)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list dead agents: %v", err)), nil
	}
	return jsonResult(report)
}

// swarm_force_reassign
func (s *Server) forceReassignTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("swarm_force_reassign",
		mcp.WithDescription("Reassign a dead agent's task. Refused while the source agent is still alive; omit to_agent to return the task to the open pool."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task to reassign")),
		mcp.WithString("from_agent", mcp.Required(), mcp.Description("Current assignee (must be dead)")),
		mcp.WithString("to_agent", mcp.Description("New assignee (empty returns the task to open)")),
		mcp.WithString("reason", mcp.Description("Why the task is being reassigned")),
		mcp.WithString("threshold_minutes", mcp.Description("Liveness threshold in minutes (default: 30)")),
	)
	return tool, s.handleForceReassign
}

func (s *Server) handleForceReassign(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, err := request.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: task_id"), nil
	}
	fromAgent, err := request.RequireString("from_agent")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: from_agent"), nil
	}
	threshold, errResult := thresholdParam(request)
	if errResult != nil {
		return errResult, nil
	}

	res, err := s.monitor.ForceReassign(ctx, taskID, fromAgent,
		request.GetString("to_agent", ""), request.GetString("reason", ""), threshold)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reassign failed: %v", err)), nil
	}
	return jsonResult(res)
}

func thresholdParam(request mcp.CallToolRequest) (time.Duration, *mcp.CallToolResult) {
	raw := request.GetString("threshold_minutes", "")
	if raw == "" {
		return health.DefaultThreshold, nil
	}
	minutes, err := strconv.Atoi(raw)
	if err != nil || minutes <= 0 {
		return 0, mcp.NewToolResultError(fmt.Sprintf("invalid threshold_minutes: %q", raw))
	}
	return time.Duration(minutes) * time.Minute, nil
}

// ---------------------------------------------------------------------------
// File arbitration
// ---------------------------------------------------------------------------

// swarm_reserve_file
func (s *Server) reserveFileTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("swarm_reserve_file",
		mcp.WithDescription("Reserve a file before editing it. A conflict names the current holder. TTL expires the lock lazily; 0 means no expiry."),
		mcp.WithString("path", mcp.Required(), mcp.Description("File path to reserve")),
		mcp.WithString("exclusive", mcp.Description("true (default) for exclusive, false for shared")),
		mcp.WithString("ttl_minutes", mcp.Description("Lock TTL in minutes (default: 0, no expiry)")),
	)
	return tool, s.handleReserveFile
}

func (s *Server) handleReserveFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: path"), nil
	}
	agentID, err := s.selfID()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to resolve identity: %v", err)), nil
	}

	exclusive := request.GetString("exclusive", "true") != "false"
	var ttl time.Duration
	if raw := request.GetString("ttl_minutes", ""); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes < 0 {
			return mcp.NewToolResultError(fmt.Sprintf("invalid ttl_minutes: %q", raw)), nil
		}
		ttl = time.Duration(minutes) * time.Minute
	}

	res, err := s.arbiter.Reserve(ctx, path, agentID, exclusive, ttl)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reserve failed: %v", err)), nil
	}
	return jsonResult(res)
}

// swarm_release_file
func (s *Server) releaseFileTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("swarm_release_file",
		mcp.WithDescription("Release a file reservation held by this agent. Releasing a lock you do not hold is an error, not a silent success."),
		mcp.WithString("path", mcp.Required(), mcp.Description("File path to release")),
	)
	return tool, s.handleReleaseFile
}

func (s *Server) handleReleaseFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: path"), nil
	}
	agentID, err := s.selfID()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to resolve identity: %v", err)), nil
	}
	if err := s.arbiter.Release(ctx, path, agentID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("release failed: %v", err)), nil
	}
	return jsonResult(map[string]any{"ok": true})
}

// swarm_locks
func (s *Server) listLocksTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("swarm_locks",
		mcp.WithDescription("List all currently valid file reservations. Expired locks are filtered out."),
	)
	return tool, s.handleListLocks
}

func (s *Server) handleListLocks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	locks, err := s.arbiter.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list locks: %v", err)), nil
	}
	return jsonResult(locks)
}

// swarm_forecast
func (s *Server) forecastTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("swarm_forecast",
		mcp.WithDescription("Publish a non-binding forecast of files this agent intends to touch soon. Forecasts never block other agents; they feed the conflict early-warning query."),
		mcp.WithString("files", mcp.Required(), mcp.Description("Comma-separated file paths")),
		mcp.WithString("minutes", mcp.Description("Estimated minutes until the files are touched (default: 30)")),
		mcp.WithString("confidence", mcp.Description("Confidence: low, medium, high (default: medium)")),
		mcp.WithString("task_id", mcp.Description("Task the forecast belongs to")),
	)
	return tool, s.handleForecast
}

func (s *Server) handleForecast(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawFiles, err := request.RequireString("files")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: files"), nil
	}
	files := splitList(rawFiles)
	if len(files) == 0 {
		return mcp.NewToolResultError("files must name at least one path"), nil
	}
	agentID, err := s.selfID()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to resolve identity: %v", err)), nil
	}

	minutes := 30
	if raw := request.GetString("minutes", ""); raw != "" {
		if minutes, err = strconv.Atoi(raw); err != nil || minutes < 0 {
			return mcp.NewToolResultError(fmt.Sprintf("invalid minutes: %q", raw)), nil
		}
	}

	fc, err := s.arbiter.Forecast(ctx, agentID, request.GetString("task_id", ""), files,
		time.Duration(minutes)*time.Minute,
		models.ForecastConfidence(request.GetString("confidence", "")))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("forecast failed: %v", err)), nil
	}
	return jsonResult(fc)
}

// swarm_forecast_conflicts
func (s *Server) forecastConflictsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("swarm_forecast_conflicts",
		mcp.WithDescription("Cross-reference files against other agents' active forecasts. Returns who else plans to touch them and when; this agent's own forecasts are excluded."),
		mcp.WithString("files", mcp.Required(), mcp.Description("Comma-separated file paths")),
	)
	return tool, s.handleForecastConflicts
}

func (s *Server) handleForecastConflicts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawFiles, err := request.RequireString("files")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: files"), nil
	}
	agentID, err := s.selfID()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to resolve identity: %v", err)), nil
	}
	conflicts, err := s.arbiter.Conflicts(ctx, splitList(rawFiles), agentID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("conflict query failed: %v", err)), nil
	}
	return jsonResult(conflicts)
}

// ---------------------------------------------------------------------------
// Tasks and auctions
// ---------------------------------------------------------------------------

// swarm_create_task
func (s *Server) createTaskTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("swarm_create_task",
		mcp.WithDescription("Create a task in the shared pool and announce it on the event log for bidding."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Task title")),
		mcp.WithString("description", mcp.Description("Task description")),
		mcp.WithString("capabilities", mcp.Description("Comma-separated required capabilities")),
	)
	return tool, s.handleCreateTask
}

func (s *Server) handleCreateTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: title"), nil
	}

	task := &models.Task{
		Title:                title,
		Description:          request.GetString("description", ""),
		RequiredCapabilities: splitList(request.GetString("capabilities", "")),
	}
	if err := s.store.CreateTask(ctx, task); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create task: %v", err)), nil
	}
	if _, err := s.log.AnnounceTask(ctx, task.ID, task.Title, task.RequiredCapabilities); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("task created but announcement failed: %v", err)), nil
	}
	return jsonResult(task)
}

// swarm_claim_task
func (s *Server) claimTaskTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("swarm_claim_task",
		mcp.WithDescription("Atomically claim an open task for this agent. A refused claim names the current holder."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task to claim")),
	)
	return tool, s.handleClaimTask
}

func (s *Server) handleClaimTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, err := request.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: task_id"), nil
	}
	agentID, err := s.selfID()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to resolve identity: %v", err)), nil
	}
	res, err := s.store.ClaimTask(ctx, taskID, agentID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("claim failed: %v", err)), nil
	}
	return jsonResult(res)
}

// swarm_release_task
func (s *Server) releaseTaskTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("swarm_release_task",
		mcp.WithDescription("Release a task claimed by this agent back to the open pool."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task to release")),
	)
	return tool, s.handleReleaseTask
}

func (s *Server) handleReleaseTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, err := request.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: task_id"), nil
	}
	agentID, err := s.selfID()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to resolve identity: %v", err)), nil
	}
	if err := s.store.ReleaseTask(ctx, taskID, agentID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("release failed: %v", err)), nil
	}
	return jsonResult(map[string]any{"ok": true})
}

// swarm_tasks
func (s *Server) listTasksTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("swarm_tasks",
		mcp.WithDescription("List tasks in the shared pool, optionally filtered by status."),
		mcp.WithString("status", mcp.Description("Status filter: open, claimed, done")),
	)
	return tool, s.handleListTasks
}

func (s *Server) handleListTasks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tasks, err := s.store.ListTasks(ctx, models.TaskStatus(request.GetString("status", "")))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list tasks: %v", err)), nil
	}
	return jsonResult(tasks)
}

// swarm_announce_task
func (s *Server) announceTaskTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("swarm_announce_task",
		mcp.WithDescription("Announce an existing task on the event log to open an auction. The log does no matching; poll the bids and award by your own policy."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task to announce")),
		mcp.WithString("title", mcp.Description("Title for the announcement")),
		mcp.WithString("capabilities", mcp.Description("Comma-separated required capabilities")),
	)
	return tool, s.handleAnnounceTask
}

func (s *Server) handleAnnounceTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, err := request.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: task_id"), nil
	}
	ev, err := s.log.AnnounceTask(ctx, taskID, request.GetString("title", ""),
		splitList(request.GetString("capabilities", "")))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("announce failed: %v", err)), nil
	}
	return jsonResult(ev)
}

// swarm_bid
func (s *Server) bidTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("swarm_bid",
		mcp.WithDescription("Bid on an announced task with this agent's capabilities."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task to bid on")),
		mcp.WithString("capabilities", mcp.Description("Comma-separated capabilities offered")),
	)
	return tool, s.handleBid
}

func (s *Server) handleBid(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, err := request.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: task_id"), nil
	}
	agentID, err := s.selfID()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to resolve identity: %v", err)), nil
	}
	ev, err := s.log.Bid(ctx, taskID, agentID, splitList(request.GetString("capabilities", "")))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("bid failed: %v", err)), nil
	}
	return jsonResult(ev)
}

// ---------------------------------------------------------------------------
// Event log
// ---------------------------------------------------------------------------

// swarm_poll_events
func (s *Server) pollEventsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("swarm_poll_events",
		mcp.WithDescription("Poll the shared event log for events strictly after a timestamp. Remember the last timestamp you have seen; polling is the only delivery mechanism."),
		mcp.WithString("since", mcp.Description("RFC3339 timestamp; omit for all events")),
		mcp.WithString("types", mcp.Description("Comma-separated event type filter")),
	)
	return tool, s.handlePollEvents
}

func (s *Server) handlePollEvents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var since time.Time
	if raw := request.GetString("since", ""); raw != "" {
		var err error
		if since, err = time.Parse(time.RFC3339, raw); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid since timestamp: %q", raw)), nil
		}
	}
	events, err := s.log.Poll(ctx, since, splitList(request.GetString("types", "")))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("poll failed: %v", err)), nil
	}
	return jsonResult(events)
}

// swarm_broadcast
func (s *Server) broadcastTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("swarm_broadcast",
		mcp.WithDescription("Broadcast a free-form message to the whole swarm over the event log."),
		mcp.WithString("message", mcp.Required(), mcp.Description("Message text")),
	)
	return tool, s.handleBroadcast
}

func (s *Server) handleBroadcast(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message, err := request.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: message"), nil
	}
	agentID, err := s.selfID()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to resolve identity: %v", err)), nil
	}
	ev, err := s.log.Broadcast(ctx, agentID, message)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("broadcast failed: %v", err)), nil
	}
	return jsonResult(ev)
}

// ---------------------------------------------------------------------------
// Urgent preemption
// ---------------------------------------------------------------------------

// swarm_urgent_trigger
func (s *Server) urgentTriggerTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("swarm_urgent_trigger",
		mcp.WithDescription("Trigger an urgent interrupt over a set of files. Agents whose current file overlaps are snapshotted as preempted; the interrupt is also broadcast on the event log."),
		mcp.WithString("title", mcp.Required(), mcp.Description("What the urgent change is")),
		mcp.WithString("files", mcp.Required(), mcp.Description("Comma-separated affected file paths")),
		mcp.WithString("reason", mcp.Description("Why the interrupt is urgent")),
		mcp.WithString("task_id", mcp.Description("Related task")),
	)
	return tool, s.handleUrgentTrigger
}

func (s *Server) handleUrgentTrigger(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: title"), nil
	}
	rawFiles, err := request.RequireString("files")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: files"), nil
	}
	agentID, err := s.selfID()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to resolve identity: %v", err)), nil
	}

	ut, err := s.preempt.Trigger(ctx, request.GetString("task_id", ""), title,
		request.GetString("reason", ""), agentID, splitList(rawFiles))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("trigger failed: %v", err)), nil
	}
	return jsonResult(ut)
}

// swarm_urgent_resolve
func (s *Server) urgentResolveTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("swarm_urgent_resolve",
		mcp.WithDescription("Resolve an urgent interrupt. The transition is one-way; resolving twice is a no-op."),
		mcp.WithString("urgent_id", mcp.Required(), mcp.Description("Urgent interrupt to resolve")),
	)
	return tool, s.handleUrgentResolve
}

func (s *Server) handleUrgentResolve(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	urgentID, err := request.RequireString("urgent_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: urgent_id"), nil
	}
	ut, err := s.preempt.Resolve(ctx, urgentID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("resolve failed: %v", err)), nil
	}
	return jsonResult(ut)
}

// swarm_urgent_active
func (s *Server) urgentActiveTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("swarm_urgent_active",
		mcp.WithDescription("Return the current active urgent interrupt, or {\"active\": false} when none exists."),
	)
	return tool, s.handleUrgentActive
}

func (s *Server) handleUrgentActive(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ut, found, err := s.preempt.Active(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read urgent state: %v", err)), nil
	}
	if !found {
		return jsonResult(map[string]any{"active": false})
	}
	return jsonResult(map[string]any{"active": true, "urgent": ut})
}
