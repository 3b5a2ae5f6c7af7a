// Package chatsession ties one chat room to the signed-in identity, the
// websocket transport and the viewer's moderation status.
//
// All state lives on the goroutine running Manager.Run. Identity changes,
// transport events, fetch results and caller commands are processed there
// one at a time. Every room or identity change, join, disconnect and ban
// entry bumps the epoch; fetch results carrying an older epoch are dropped.
package chatsession

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"activamigos-chat/internal/events"
	"activamigos-chat/internal/models"
	"activamigos-chat/internal/transport"
)

var (
	ErrBanned       = errors.New("chatsession: banned from this chat")
	ErrNotActive    = errors.New("chatsession: chat is not active")
	ErrNotMember    = errors.New("chatsession: not a member of this chat")
	ErrEmptyMessage = errors.New("chatsession: message is empty")
	ErrNoIdentity   = errors.New("chatsession: not signed in")
	ErrStopped      = errors.New("chatsession: manager stopped")
)

// Transport is the realtime connection used by the manager.
type Transport interface {
	Connect(ctx context.Context, token string) uint64
	Disconnect()
	JoinRoom(room models.RoomRef) error
	LeaveRoom(room models.RoomRef) error
	SendMessage(room models.RoomRef, content string) error
	Events() <-chan transport.Event
}

// API is the REST surface used by the manager.
type API interface {
	History(ctx context.Context, room models.RoomRef, q models.HistoryQuery) (models.HistoryPage, error)
	ModerationStatus(ctx context.Context, room models.RoomRef, userID int64) (models.ModerationStatus, error)
	IssueWarning(ctx context.Context, req models.IssueWarningRequest) (models.IssueWarningResult, error)
}

// Options tunes the manager.
type Options struct {
	PageSize int
	// ReconnectDelay is the wait before redialing after a drop. Zero
	// disables automatic reconnects.
	ReconnectDelay time.Duration
}

// Manager is the chat session state machine.
type Manager struct {
	transport  Transport
	api        API
	identities <-chan *models.Identity
	opts       Options

	cmds    chan func()
	updates chan View
	stopped chan struct{}

	runCtx      context.Context
	state       State
	identity    *models.Identity
	room        *models.RoomRef
	session     uint64
	connected   bool
	joined      uint64
	noReconnect bool
	reconnects  uint64

	epoch       uint64
	epochCtx    context.Context
	epochCancel context.CancelFunc

	buf     *buffer
	held    []models.ChatMessage
	holding bool

	status        *models.ModerationStatus
	statusUnknown bool
	statusSeq     uint64

	historyLoading bool
	historyErr     error
	hasMore        bool
	lastError      string
}

// New builds a manager. identities is typically identity.Provider.Subscribe.
func New(t Transport, api API, identities <-chan *models.Identity, opts Options) *Manager {
	if opts.PageSize <= 0 {
		opts.PageSize = models.DefaultPerPage
	}
	return &Manager{
		transport:  t,
		api:        api,
		identities: identities,
		opts:       opts,
		cmds:       make(chan func()),
		updates:    make(chan View, 1),
		stopped:    make(chan struct{}),
		buf:        newBuffer(),
	}
}

// Updates yields the latest view after every change. Intermediate views may
// be skipped.
func (m *Manager) Updates() <-chan View {
	return m.updates
}

// Run processes events until ctx is done. It must be called once.
func (m *Manager) Run(ctx context.Context) error {
	m.runCtx = ctx
	m.epochCtx, m.epochCancel = context.WithCancel(ctx)
	defer func() {
		m.epochCancel()
		m.transport.Disconnect()
		close(m.stopped)
	}()

	identities := m.identities
	transportEvents := m.transport.Events()
	m.publish()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case id, ok := <-identities:
			if !ok {
				identities = nil
				continue
			}
			m.setIdentity(id)
		case ev, ok := <-transportEvents:
			if !ok {
				transportEvents = nil
				continue
			}
			// Take everything already queued so connect flicker settles
			// into a single join.
			batch := []transport.Event{ev}
		drain:
			for {
				select {
				case ev, ok := <-transportEvents:
					if !ok {
						transportEvents = nil
						break drain
					}
					batch = append(batch, ev)
				default:
					break drain
				}
			}
			for _, ev := range batch {
				m.handleTransport(ev)
			}
		case fn := <-m.cmds:
			fn()
		}
		m.settle()
		m.publish()
	}
}

// post queues fn on the loop. It gives up once the loop has stopped.
func (m *Manager) post(fn func()) {
	select {
	case m.cmds <- fn:
	case <-m.stopped:
	}
}

// call runs fn on the loop and waits for it.
func (m *Manager) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case m.cmds <- func() { fn(); close(done) }:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.stopped:
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.stopped:
		return ErrStopped
	}
}

// SetRoom makes room the active room, leaving the previous one.
func (m *Manager) SetRoom(ctx context.Context, room models.RoomRef) error {
	if err := room.Validate(); err != nil {
		return err
	}
	return m.call(ctx, func() { m.switchRoom(&room) })
}

// ClearRoom leaves the active room.
func (m *Manager) ClearRoom(ctx context.Context) error {
	return m.call(ctx, func() { m.switchRoom(nil) })
}

// Send sends content to the active room. Failures never change state.
func (m *Manager) Send(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyMessage
	}
	var sendErr error
	if err := m.call(ctx, func() {
		switch {
		case m.state == Banned:
			sendErr = ErrBanned
		case m.state != Active:
			sendErr = ErrNotActive
		case m.status != nil && m.status.Status == models.StatusNotMember:
			sendErr = ErrNotMember
		default:
			sendErr = m.transport.SendMessage(*m.room, content)
		}
	}); err != nil {
		return err
	}
	return sendErr
}

// LoadOlder fetches the page before the oldest buffered message. The result
// arrives through Updates.
func (m *Manager) LoadOlder(ctx context.Context) error {
	var loadErr error
	if err := m.call(ctx, func() {
		if m.state != Active {
			loadErr = ErrNotActive
			return
		}
		if m.historyLoading || !m.hasMore {
			return
		}
		m.loadHistory(m.buf.oldestID())
	}); err != nil {
		return err
	}
	return loadErr
}

// RefreshStatus refetches the viewer's moderation status.
func (m *Manager) RefreshStatus(ctx context.Context) error {
	var refreshErr error
	if err := m.call(ctx, func() {
		if !m.inRoom() {
			refreshErr = ErrNotActive
			return
		}
		m.fetchStatus(false)
	}); err != nil {
		return err
	}
	return refreshErr
}

// IssueWarning warns a member of the active room. When the target is the
// viewer the status is refreshed.
func (m *Manager) IssueWarning(ctx context.Context, targetUserID int64, reason string) (models.IssueWarningResult, error) {
	var (
		room   *models.RoomRef
		viewer int64
	)
	if err := m.call(ctx, func() {
		if m.room != nil {
			r := *m.room
			room = &r
		}
		if m.identity != nil {
			viewer = m.identity.UserID
		}
	}); err != nil {
		return models.IssueWarningResult{}, err
	}
	if room == nil {
		return models.IssueWarningResult{}, ErrNotActive
	}

	res, err := m.api.IssueWarning(ctx, models.IssueWarningRequest{
		ContextType:  room.ContextType,
		ContextID:    room.ContextID,
		TargetUserID: targetUserID,
		Reason:       reason,
	})
	if err != nil {
		return models.IssueWarningResult{}, err
	}
	if targetUserID == viewer {
		m.post(func() {
			if m.identity != nil && m.identity.UserID == viewer && m.room != nil && *m.room == *room && m.inRoom() {
				m.fetchStatus(true)
			}
		})
	}
	return res, nil
}

// Reconnect drops the current connection and dials again.
func (m *Manager) Reconnect(ctx context.Context) error {
	var reconnectErr error
	if err := m.call(ctx, func() {
		if m.identity == nil {
			reconnectErr = ErrNoIdentity
			return
		}
		m.transport.Disconnect()
		m.onDisconnected()
		m.noReconnect = false
		m.reconnects++
		m.connect()
	}); err != nil {
		return err
	}
	return reconnectErr
}

// Snapshot returns the current view.
func (m *Manager) Snapshot(ctx context.Context) (View, error) {
	var v View
	err := m.call(ctx, func() { v = m.view() })
	return v, err
}

func (m *Manager) setIdentity(id *models.Identity) {
	if sameIdentity(m.identity, id) {
		return
	}

	if m.room != nil && m.connected && m.joined == m.session {
		if err := m.transport.LeaveRoom(*m.room); err != nil {
			log.Printf("chatsession: leave on identity change failed room=%s err=%v", m.room.Key(), err)
		}
	}
	m.transport.Disconnect()
	m.session, m.connected, m.joined = 0, false, 0
	m.noReconnect = false
	m.reconnects++
	m.resetRoomState()
	m.bumpEpoch()

	if id == nil {
		m.identity = nil
		m.state = Idle
		log.Printf("chatsession: signed out")
		return
	}

	cp := *id
	m.identity = &cp
	m.state = Initializing
	log.Printf("chatsession: identity user_id=%d role=%s", cp.UserID, cp.Role)
	m.connect()
}

// inRoom reports whether the room has been joined on the live session.
func (m *Manager) inRoom() bool {
	return m.state == Joining || m.state == Active || m.state == Banned
}

func sameIdentity(a, b *models.Identity) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.UserID == b.UserID && a.Token == b.Token
}

func (m *Manager) connect() {
	if m.identity == nil || m.session != 0 {
		return
	}
	m.session = m.transport.Connect(m.runCtx, m.identity.Token)
}

func (m *Manager) switchRoom(room *models.RoomRef) {
	if room != nil && m.room != nil && *room == *m.room {
		return
	}
	if m.room != nil && m.connected && m.joined == m.session {
		if err := m.transport.LeaveRoom(*m.room); err != nil {
			log.Printf("chatsession: leave failed room=%s err=%v", m.room.Key(), err)
		}
	}
	m.joined = 0
	m.resetRoomState()
	m.bumpEpoch()
	m.room = room

	if m.identity == nil {
		m.state = Idle
	} else {
		m.state = Initializing
	}
}

func (m *Manager) handleTransport(ev transport.Event) {
	if m.session == 0 || ev.Session() != m.session {
		return
	}

	switch e := ev.(type) {
	case transport.Connected:
		m.connected = true
		log.Printf("chatsession: connected session=%d", e.SessionID)
	case transport.Disconnected:
		log.Printf("chatsession: disconnected session=%d err=%v", e.SessionID, e.Err)
		m.onDisconnected()
		if errors.Is(e.Err, transport.ErrUnauthorized) {
			m.noReconnect = true
			return
		}
		m.scheduleReconnect()
	case transport.Inbound:
		m.handleInbound(e.Event)
	}
}

// onDisconnected forgets the session. A joined room is kept and its buffer
// preserved while suspended.
func (m *Manager) onDisconnected() {
	m.session, m.connected, m.joined = 0, false, 0
	m.held = nil
	m.holding = false
	m.historyLoading = false
	m.bumpEpoch()
	switch m.state {
	case Joining, Active, Banned:
		m.state = Suspended
	}
}

func (m *Manager) scheduleReconnect() {
	if m.opts.ReconnectDelay <= 0 || m.identity == nil {
		return
	}
	gen := m.reconnects
	time.AfterFunc(m.opts.ReconnectDelay, func() {
		m.post(func() {
			if gen != m.reconnects || m.noReconnect {
				return
			}
			m.connect()
		})
	})
}

// settle issues join_chat once per connected session.
func (m *Manager) settle() {
	if m.identity == nil || m.room == nil || !m.connected || m.joined == m.session {
		return
	}
	if err := m.transport.JoinRoom(*m.room); err != nil {
		log.Printf("chatsession: join failed room=%s err=%v", m.room.Key(), err)
		return
	}
	m.joined = m.session
	m.bumpEpoch()
	m.state = Joining
	m.lastError = ""
	m.fetchStatus(true)
}

func (m *Manager) handleInbound(ev events.Event) {
	if e, ok := ev.(events.Error); ok {
		if e.Room != nil && (m.room == nil || *e.Room != *m.room) {
			return
		}
		m.lastError = e.Message
		log.Printf("chatsession: server error code=%s message=%q", e.Code, e.Message)
		if e.Code == events.CodeBanned && m.inRoom() {
			m.fetchStatus(true)
		}
		return
	}

	room, ok := events.RoomOf(ev)
	if !ok || m.room == nil || room != *m.room {
		return
	}

	switch e := ev.(type) {
	case events.NewMessage:
		switch {
		case m.state == Banned:
		case m.holding:
			m.held = append(m.held, e.ChatMessage)
		case m.state == Active:
			m.buf.add(e.ChatMessage)
		}
	case events.WarningIssued:
		m.onModerationNotice(e.ModerationNotice)
	case events.UserBanned:
		m.onModerationNotice(e.ModerationNotice)
	case events.UserUnbanned:
		m.onModerationNotice(e.ModerationNotice)
	}
}

func (m *Manager) onModerationNotice(n events.ModerationNotice) {
	if n.UserID != m.identity.UserID || !m.inRoom() {
		return
	}
	m.fetchStatus(true)
}

// fetchStatus requests the viewer's status. Only the latest request applies.
// With hold set, live messages are held until it resolves.
func (m *Manager) fetchStatus(hold bool) {
	m.statusSeq++
	seq, epoch, ctx := m.statusSeq, m.epoch, m.epochCtx
	room, userID := *m.room, m.identity.UserID
	if hold {
		m.holding = true
	}

	go func() {
		st, err := m.api.ModerationStatus(ctx, room, userID)
		m.post(func() { m.applyStatus(epoch, seq, st, err) })
	}()
}

func (m *Manager) applyStatus(epoch, seq uint64, st models.ModerationStatus, err error) {
	if epoch != m.epoch || seq != m.statusSeq {
		return
	}
	held := m.held
	m.held, m.holding = nil, false

	if err != nil {
		log.Printf("chatsession: status fetch failed room=%s err=%v; treating as not banned", m.room.Key(), err)
		m.status, m.statusUnknown = nil, true
	} else {
		if !st.Consistent() {
			log.Printf("chatsession: status mismatch room=%s status=%s color=%s; gating on status", m.room.Key(), st.Status, st.SemaphoreColor)
		}
		m.status, m.statusUnknown = &st, false
	}

	if !m.inRoom() {
		return
	}
	if m.status != nil && m.status.Banned() {
		m.enterBanned()
		return
	}

	if m.state == Banned {
		// the server removed this connection from the room on ban
		m.joined = 0
		m.settle()
		return
	}
	switch m.state {
	case Joining:
		m.state = Active
		m.hasMore = false
		m.loadHistory(0)
	}
	for _, msg := range held {
		m.buf.add(msg)
	}
}

func (m *Manager) enterBanned() {
	if m.state != Banned {
		log.Printf("chatsession: banned room=%s user_id=%d", m.room.Key(), m.identity.UserID)
	}
	m.state = Banned
	m.buf.clear()
	m.held, m.holding = nil, false
	m.historyLoading, m.historyErr, m.hasMore = false, nil, false
	m.bumpEpoch()
}

// loadHistory fetches the newest page, or the page before beforeID.
func (m *Manager) loadHistory(beforeID int64) {
	epoch, ctx, room := m.epoch, m.epochCtx, *m.room
	q := models.HistoryQuery{Page: 1, PerPage: m.opts.PageSize, BeforeID: beforeID}
	m.historyLoading, m.historyErr = true, nil

	go func() {
		page, err := m.api.History(ctx, room, q)
		m.post(func() { m.applyHistory(epoch, page, err) })
	}()
}

func (m *Manager) applyHistory(epoch uint64, page models.HistoryPage, err error) {
	if epoch != m.epoch || m.state != Active {
		return
	}
	m.historyLoading = false
	if err != nil {
		log.Printf("chatsession: history fetch failed room=%s err=%v", m.room.Key(), err)
		m.historyErr = fmt.Errorf("load history: %w", err)
		return
	}
	msgs := page.Messages[:0:0]
	for _, msg := range page.Messages {
		if msg.Room() == *m.room {
			msgs = append(msgs, msg)
		}
	}
	m.buf.merge(msgs)
	m.hasMore = page.Pagination.HasNext
}

func (m *Manager) resetRoomState() {
	m.buf.clear()
	m.held, m.holding = nil, false
	m.status, m.statusUnknown = nil, false
	m.historyLoading, m.historyErr, m.hasMore = false, nil, false
	m.lastError = ""
}

func (m *Manager) bumpEpoch() {
	m.epoch++
	if m.epochCancel != nil {
		m.epochCancel()
	}
	parent := m.runCtx
	if parent == nil {
		parent = context.Background()
	}
	m.epochCtx, m.epochCancel = context.WithCancel(parent)
}

func (m *Manager) view() View {
	v := View{
		State:          m.state,
		Connected:      m.connected,
		Messages:       m.buf.snapshot(),
		StatusUnknown:  m.statusUnknown,
		HistoryLoading: m.historyLoading,
		HistoryErr:     m.historyErr,
		HasMore:        m.hasMore,
		LastError:      m.lastError,
	}
	if m.room != nil {
		r := *m.room
		v.Room = &r
	}
	if m.status != nil {
		st := *m.status
		v.Status = &st
	}
	v.CanSend = m.state == Active && m.connected &&
		(m.statusUnknown || (m.status != nil && m.status.Status == models.StatusActive))
	return v
}

func (m *Manager) publish() {
	v := m.view()
	select {
	case <-m.updates:
	default:
	}
	m.updates <- v
}
