package mcppool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ToolsetRegistry resolves in-process toolset names to fresh MCP servers.
// Unknown names must be reported as errors, not resolved dynamically.
type ToolsetRegistry interface {
	Build(name string) (*mcp.Server, error)
}

// Options configure a Manager instance.
type Options struct {
	// Settings bound every pool operation; zero fields use defaults.
	Settings Settings
	// Logger receives structured diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
	// Store, when set, receives a full config rewrite on every add,
	// update, and remove.
	Store *Store
	// Toolsets serves descriptors that name an in-process toolset.
	Toolsets ToolsetRegistry
	// Audit, when set, mirrors invocation records into durable storage.
	Audit Sink
	// Dial overrides transport construction, primarily for tests.
	Dial DialFunc
	// ClientName and ClientVersion identify this pool to servers during
	// the initialize handshake.
	ClientName    string
	ClientVersion string
}

func (o *Options) withDefaults() Options {
	var opts Options
	if o != nil {
		opts = *o
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ClientName == "" {
		opts.ClientName = "mcp-console"
	}
	if opts.ClientVersion == "" {
		opts.ClientVersion = "1.0.0"
	}
	return opts
}

// Manager owns the server registry and drives every lifecycle transition:
// configuration CRUD, timeout-bounded connect/disconnect, tool invocation
// with auditing, event fan-out, and bulk auto-connect.
type Manager struct {
	mu      sync.RWMutex
	entries map[string]*serverEntry

	opts     Options
	settings Settings
	logger   *slog.Logger
	bus      *Bus
	calls    *callLog
	limiter  *rate.Limiter
}

// serverEntry is the registry slot for one server id. Fields are guarded by
// the manager mutex; op serializes connect/disconnect/remove transitions so
// no two can race on the same id.
type serverEntry struct {
	op sync.Mutex

	spec        ServerSpec
	status      Status
	lastErr     string
	connectedAt time.Time
	tools       []ToolInfo

	// session and cleanup are owned by the in-flight transition; a live
	// session exists exactly while status is StatusConnected.
	session *mcp.ClientSession
	cleanup func()
	removed bool
}

// NewManager constructs a Manager over the given descriptors, all starting
// disconnected. Callers can pass nil options to fall back to defaults.
func NewManager(specs map[string]ServerSpec, opts *Options) *Manager {
	options := opts.withDefaults()
	m := &Manager{
		entries:  make(map[string]*serverEntry, len(specs)),
		opts:     options,
		settings: options.Settings.withDefaults(),
		logger:   options.Logger,
		calls:    &callLog{},
	}
	m.bus = NewBus(m.logger)
	if m.settings.CallRateLimit > 0 {
		m.limiter = rate.NewLimiter(rate.Limit(m.settings.CallRateLimit), m.settings.CallBurst)
	}
	for id, spec := range specs {
		m.entries[id] = &serverEntry{spec: spec.clone(), status: StatusDisconnected}
	}
	return m
}

// Settings returns the effective (defaulted) settings.
func (m *Manager) Settings() Settings { return m.settings }

// Subscribe registers an event handler and returns its removal function.
func (m *Manager) Subscribe(t EventType, h EventHandler) func() {
	return m.bus.Subscribe(t, h)
}

// AddServer validates the descriptor, stores it under a fresh id with a
// disconnected runtime state, persists the config, and returns the id.
func (m *Manager) AddServer(spec ServerSpec) (string, error) {
	if err := spec.validate(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	m.mu.Lock()
	m.entries[id] = &serverEntry{spec: spec.clone(), status: StatusDisconnected}
	m.mu.Unlock()
	m.persist()
	m.logger.Info("server added", "server", id, "name", spec.Name)
	return id, nil
}

// UpdateServer merges the patch into an existing descriptor and persists.
// It reports false for unknown ids; that is an expected caller condition,
// not a fault.
func (m *Manager) UpdateServer(serverID string, update ServerUpdate) bool {
	m.mu.Lock()
	entry, ok := m.entries[serverID]
	if !ok {
		m.mu.Unlock()
		return false
	}
	update.apply(&entry.spec)
	m.mu.Unlock()
	m.persist()
	return true
}

// RemoveServer tears down any live session for the id, deletes the entry,
// and persists. Removing an unknown id is a no-op.
func (m *Manager) RemoveServer(ctx context.Context, serverID string) error {
	entry := m.entry(serverID)
	if entry == nil {
		return nil
	}
	entry.op.Lock()
	m.mu.Lock()
	session := entry.session
	cleanup := entry.cleanup
	entry.session = nil
	entry.cleanup = nil
	entry.tools = nil
	entry.connectedAt = time.Time{}
	entry.removed = true
	delete(m.entries, serverID)
	m.mu.Unlock()
	entry.op.Unlock()

	var closeErr error
	if session != nil {
		closeErr = closeSession(ctx, session)
		if cleanup != nil {
			cleanup()
		}
		m.bus.Publish(Event{Type: EventServerDisconnected, ServerID: serverID})
	}
	m.persist()
	m.logger.Info("server removed", "server", serverID)
	return closeErr
}

// Server returns a snapshot of one entry.
func (m *Manager) Server(serverID string) (ServerView, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[serverID]
	if !ok {
		return ServerView{}, false
	}
	return m.viewLocked(serverID, entry), true
}

// Servers returns snapshots of every entry, ordered by id.
func (m *Manager) Servers() []ServerView {
	m.mu.RLock()
	views := make([]ServerView, 0, len(m.entries))
	for id, entry := range m.entries {
		views = append(views, m.viewLocked(id, entry))
	}
	m.mu.RUnlock()
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })
	return views
}

// StatusSummary aggregates entry counts per lifecycle state.
func (m *Manager) StatusSummary() StatusSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sum := StatusSummary{Total: len(m.entries)}
	for _, entry := range m.entries {
		switch entry.status {
		case StatusConnected:
			sum.Connected++
		case StatusConnecting:
			sum.Connecting++
		case StatusError:
			sum.Errored++
		default:
			sum.Disconnected++
		}
	}
	return sum
}

// ListAllTools returns the union of cached capabilities across all connected
// servers, ordered by server id then tool name. No round-trips are made; the
// cache is refreshed at connect time.
func (m *Manager) ListAllTools() []ToolRef {
	m.mu.RLock()
	var refs []ToolRef
	for id, entry := range m.entries {
		if entry.status != StatusConnected {
			continue
		}
		for _, tool := range entry.tools {
			refs = append(refs, ToolRef{ServerID: id, ServerName: entry.spec.Name, Tool: tool})
		}
	}
	m.mu.RUnlock()
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].ServerID != refs[j].ServerID {
			return refs[i].ServerID < refs[j].ServerID
		}
		return refs[i].Tool.Name < refs[j].Tool.Name
	})
	return refs
}

// History returns up to limit of the newest invocation records in start
// order plus the total count. limit <= 0 returns everything.
func (m *Manager) History(limit int) ([]CallRecord, int) {
	return m.calls.recent(limit)
}

// Connect drives one server through disconnected/error → connecting →
// connected. Transitions for the same id are serialized; a concurrent
// Connect blocks until the first attempt resolves and then observes its
// outcome, so a single subprocess is ever spawned per id. Connecting an
// already-connected server is an idempotent success.
func (m *Manager) Connect(ctx context.Context, serverID string) error {
	entry := m.entry(serverID)
	if entry == nil {
		return fmt.Errorf("%w: %q", ErrUnknownServer, serverID)
	}
	entry.op.Lock()
	defer entry.op.Unlock()

	m.mu.Lock()
	if entry.removed {
		m.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownServer, serverID)
	}
	if entry.status == StatusConnected && entry.session != nil {
		m.mu.Unlock()
		return nil
	}
	spec := entry.spec.clone()
	entry.status = StatusConnecting
	m.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	dialCtx, cancel := context.WithTimeout(ctx, m.settings.ConnectTimeout)
	defer cancel()

	session, cleanup, tools, err := m.establish(dialCtx, serverID, spec)
	if err != nil {
		msg := err.Error()
		m.mu.Lock()
		entry.status = StatusError
		entry.lastErr = msg
		entry.connectedAt = time.Time{}
		entry.tools = nil
		m.mu.Unlock()
		m.logger.Error("connect failed", "server", serverID, "name", spec.Name, "error", err)
		m.bus.Publish(Event{Type: EventServerError, ServerID: serverID, Payload: msg})
		return err
	}

	m.mu.Lock()
	entry.status = StatusConnected
	entry.lastErr = ""
	entry.session = session
	entry.cleanup = cleanup
	entry.tools = tools
	entry.connectedAt = time.Now()
	m.mu.Unlock()

	go m.watch(serverID, entry, session)

	m.logger.Info("server connected", "server", serverID, "name", spec.Name, "tools", len(tools))
	m.bus.Publish(Event{Type: EventServerConnected, ServerID: serverID, Payload: tools})
	return nil
}

// establish runs the staged connect sequence: transport launch, initialize
// handshake under its own nested deadline, then tool enumeration under its
// own deadline. Any failure releases everything opened so far; the caller
// never sees a half-open session.
func (m *Manager) establish(ctx context.Context, serverID string, spec ServerSpec) (*mcp.ClientSession, func(), []ToolInfo, error) {
	transport, cleanup, err := m.dialTransport(ctx, serverID, spec)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("launch transport: %w", err)
	}

	client := mcp.NewClient(&mcp.Implementation{
		Name:    m.opts.ClientName,
		Version: m.opts.ClientVersion,
	}, nil)

	initCtx, cancelInit := context.WithTimeout(ctx, m.settings.InitTimeout)
	session, err := client.Connect(initCtx, transport, nil)
	initTimedOut := initCtx.Err() == context.DeadlineExceeded
	cancelInit()
	if err != nil {
		if cleanup != nil {
			cleanup()
		}
		return nil, nil, nil, stageError("initialize handshake", err, initTimedOut, m.settings.InitTimeout)
	}

	listCtx, cancelList := context.WithTimeout(ctx, m.settings.ListToolsTimeout)
	res, err := session.ListTools(listCtx, nil)
	listTimedOut := listCtx.Err() == context.DeadlineExceeded
	cancelList()
	if err != nil {
		_ = session.Close()
		if cleanup != nil {
			cleanup()
		}
		return nil, nil, nil, stageError("list tools", err, listTimedOut, m.settings.ListToolsTimeout)
	}

	tools := make([]ToolInfo, 0, len(res.Tools))
	for _, tool := range res.Tools {
		tools = append(tools, ToolInfo{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		})
	}
	return session, cleanup, tools, nil
}

// stageError attributes a failure to its connect phase and marks deadline
// expiries as ErrTimeout so callers can tell them apart from transport
// faults.
func stageError(stage string, err error, timedOut bool, budget time.Duration) error {
	if timedOut || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w after %s", stage, ErrTimeout, budget)
	}
	return fmt.Errorf("%s: %w", stage, err)
}

// watch clears the registry entry when a session dies on its own, for
// example when the subprocess exits. An explicit disconnect nils the stored
// session first, so a stale watcher never clobbers a newer transition.
func (m *Manager) watch(serverID string, entry *serverEntry, session *mcp.ClientSession) {
	err := session.Wait()

	m.mu.Lock()
	if entry.session != session {
		m.mu.Unlock()
		return
	}
	entry.session = nil
	cleanup := entry.cleanup
	entry.cleanup = nil
	entry.tools = nil
	entry.connectedAt = time.Time{}
	if err != nil {
		entry.status = StatusError
		entry.lastErr = err.Error()
	} else {
		entry.status = StatusDisconnected
	}
	m.mu.Unlock()

	if cleanup != nil {
		cleanup()
	}
	if err != nil {
		m.logger.Warn("session ended unexpectedly", "server", serverID, "error", err)
		m.bus.Publish(Event{Type: EventServerError, ServerID: serverID, Payload: err.Error()})
		return
	}
	m.logger.Info("session ended", "server", serverID)
	m.bus.Publish(Event{Type: EventServerDisconnected, ServerID: serverID})
}

// Disconnect releases the server's session and clears its capability cache.
// It is idempotent: disconnecting an unknown or not-connected id succeeds
// silently.
func (m *Manager) Disconnect(ctx context.Context, serverID string) error {
	entry := m.entry(serverID)
	if entry == nil {
		return nil
	}
	entry.op.Lock()
	defer entry.op.Unlock()

	m.mu.Lock()
	session := entry.session
	cleanup := entry.cleanup
	entry.session = nil
	entry.cleanup = nil
	if session != nil {
		entry.status = StatusDisconnected
		entry.tools = nil
		entry.connectedAt = time.Time{}
	}
	m.mu.Unlock()

	if session == nil {
		return nil
	}
	closeErr := closeSession(ctx, session)
	if cleanup != nil {
		cleanup()
	}
	m.logger.Info("server disconnected", "server", serverID)
	m.bus.Publish(Event{Type: EventServerDisconnected, ServerID: serverID})
	return closeErr
}

// DisconnectAll disconnects every server, joining any close errors.
func (m *Manager) DisconnectAll(ctx context.Context) error {
	m.mu.RLock()
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)

	var errs []error
	for _, id := range ids {
		if err := m.Disconnect(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Close tears the pool down. Alias for DisconnectAll; the manager holds no
// other resources.
func (m *Manager) Close(ctx context.Context) error {
	return m.DisconnectAll(ctx)
}

// CallResult is the terminal outcome of one tool invocation. Failures are
// carried in Error rather than raised, since a bad server id or a remote
// fault is an expected caller condition.
type CallResult struct {
	Success  bool
	Result   *mcp.CallToolResult
	Text     string
	Error    string
	Duration time.Duration
}

// CallTool invokes a named tool on a connected server under the given
// timeout (<= 0 uses the settings default). The invocation record is
// appended and tool_call_start published before the remote call is made, so
// observers see in-flight state even if the call never returns. A timeout
// abandons the call and records the timeout value as the duration.
func (m *Manager) CallTool(ctx context.Context, serverID, tool string, args map[string]any, timeout time.Duration) CallResult {
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout <= 0 {
		timeout = m.settings.ToolTimeout
	}

	m.mu.RLock()
	entry, ok := m.entries[serverID]
	var (
		session *mcp.ClientSession
		name    string
	)
	if ok {
		name = entry.spec.Name
		if entry.status == StatusConnected {
			session = entry.session
		}
	}
	m.mu.RUnlock()

	if !ok {
		return CallResult{Error: fmt.Sprintf("server %s not found", serverID)}
	}
	if session == nil {
		return CallResult{Error: fmt.Sprintf("server %s is not connected", name)}
	}

	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return CallResult{Error: fmt.Sprintf("rate limit wait: %s", err)}
		}
	}

	rec := m.calls.start(CallRecord{
		ID:         uuid.NewString(),
		ServerID:   serverID,
		ServerName: name,
		Tool:       tool,
		Arguments:  args,
		StartedAt:  time.Now(),
		Status:     CallExecuting,
	})
	started := rec.snapshot()
	m.bus.Publish(Event{Type: EventToolCallStart, ServerID: serverID, Payload: started})
	m.auditStarted(ctx, started)

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	res, err := session.CallTool(callCtx, &mcp.CallToolParams{Name: tool, Arguments: args})

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() == context.DeadlineExceeded {
			msg := fmt.Sprintf("tool execution timed out after %s", timeout)
			final := m.calls.fail(rec, msg, timeout)
			m.finishCall(ctx, serverID, final, EventToolCallError)
			return CallResult{Error: msg, Duration: timeout}
		}
		elapsed := time.Since(rec.StartedAt)
		final := m.calls.fail(rec, err.Error(), elapsed)
		m.finishCall(ctx, serverID, final, EventToolCallError)
		return CallResult{Error: err.Error(), Duration: elapsed}
	}

	elapsed := time.Since(rec.StartedAt)
	text := flattenContent(res)
	final := m.calls.complete(rec, text, elapsed)
	m.finishCall(ctx, serverID, final, EventToolCallComplete)
	return CallResult{Success: true, Result: res, Text: text, Duration: elapsed}
}

func (m *Manager) finishCall(ctx context.Context, serverID string, rec CallRecord, eventType EventType) {
	m.bus.Publish(Event{Type: eventType, ServerID: serverID, Payload: rec})
	m.auditFinished(ctx, rec)
}

func (m *Manager) auditStarted(ctx context.Context, rec CallRecord) {
	if m.opts.Audit == nil {
		return
	}
	if err := m.opts.Audit.CallStarted(context.WithoutCancel(ctx), rec); err != nil {
		m.logger.Warn("audit sink start", "call", rec.ID, "error", err)
	}
}

func (m *Manager) auditFinished(ctx context.Context, rec CallRecord) {
	if m.opts.Audit == nil {
		return
	}
	if err := m.opts.Audit.CallFinished(context.WithoutCancel(ctx), rec); err != nil {
		m.logger.Warn("audit sink finish", "call", rec.ID, "error", err)
	}
}

// AutoConnectReport aggregates per-server outcomes of one AutoConnect batch.
type AutoConnectReport struct {
	Connected []string
	Failed    map[string]string
}

// AutoConnect concurrently connects every enabled, auto-connect-eligible
// server. The batch runs under one global deadline distinct from each
// server's own connect timeout, with the fan-out capped by the settings'
// concurrency limit. One server's failure never cancels the others; attempts
// still pending when the global deadline fires are cancelled and reported
// failed, while completed attempts keep their outcome.
func (m *Manager) AutoConnect(ctx context.Context) AutoConnectReport {
	if ctx == nil {
		ctx = context.Background()
	}
	m.mu.RLock()
	var ids []string
	for id, entry := range m.entries {
		if entry.spec.Enabled && entry.spec.AutoConnect {
			ids = append(ids, id)
		}
	}
	m.mu.RUnlock()
	sort.Strings(ids)

	report := AutoConnectReport{Failed: make(map[string]string)}
	if len(ids) == 0 {
		return report
	}

	globalCtx, cancel := context.WithTimeout(ctx, m.settings.AutoConnectTimeout)
	defer cancel()
	sem := semaphore.NewWeighted(int64(m.settings.MaxConcurrentConnects))

	type outcome struct {
		id  string
		err error
	}
	results := make(chan outcome, len(ids))
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := sem.Acquire(globalCtx, 1); err != nil {
				results <- outcome{id, fmt.Errorf("cancelled before start: %w", ErrTimeout)}
				return
			}
			defer sem.Release(1)
			results <- outcome{id, m.Connect(globalCtx, id)}
		}(id)
	}
	wg.Wait()
	close(results)

	for out := range results {
		if out.err != nil {
			report.Failed[out.id] = out.err.Error()
			m.logger.Warn("auto-connect failed", "server", out.id, "error", out.err)
			continue
		}
		report.Connected = append(report.Connected, out.id)
	}
	sort.Strings(report.Connected)
	m.logger.Info("auto-connect finished",
		"connected", len(report.Connected), "failed", len(report.Failed))
	return report
}

func (m *Manager) entry(serverID string) *serverEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries[serverID]
}

func (m *Manager) viewLocked(serverID string, entry *serverEntry) ServerView {
	view := ServerView{
		ID:          serverID,
		Spec:        entry.spec.clone(),
		Status:      entry.status,
		LastError:   entry.lastErr,
		ConnectedAt: entry.connectedAt,
	}
	if len(entry.tools) > 0 {
		view.Tools = append([]ToolInfo(nil), entry.tools...)
	}
	return view
}

// persist rewrites the full config through the store, when one is attached.
func (m *Manager) persist() {
	if m.opts.Store == nil {
		return
	}
	m.mu.RLock()
	specs := make(map[string]ServerSpec, len(m.entries))
	for id, entry := range m.entries {
		specs[id] = entry.spec.clone()
	}
	m.mu.RUnlock()
	if err := m.opts.Store.Save(specs, m.settings); err != nil {
		m.logger.Error("persist config", "error", err)
	}
}

// closeSession closes a session without letting a wedged transport hold the
// caller past its deadline.
func closeSession(ctx context.Context, session *mcp.ClientSession) error {
	if ctx == nil {
		ctx = context.Background()
	}
	done := make(chan error, 1)
	go func() { done <- session.Close() }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// flattenContent joins the text parts of a tool result for history records.
func flattenContent(res *mcp.CallToolResult) string {
	if res == nil {
		return ""
	}
	var parts []string
	for _, content := range res.Content {
		if text, ok := content.(*mcp.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n")
}
