package chatsession

import (
	"context"
	"sync"
	"testing"
	"time"

	"activamigos-chat/internal/models"
	"activamigos-chat/internal/transport"
)

type fakeTransport struct {
	events chan transport.Event

	mu          sync.Mutex
	nextID      uint64
	session     uint64
	connects    int
	disconnects int
	joins       []models.RoomRef
	leaves      []models.RoomRef
	sent        []string
	sendErr     error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan transport.Event)}
}

func (f *fakeTransport) Connect(_ context.Context, token string) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if token == "" {
		return 0
	}
	if f.session != 0 {
		return f.session
	}
	f.nextID++
	f.session = f.nextID
	f.connects++
	return f.session
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session != 0 {
		f.disconnects++
	}
	f.session = 0
}

func (f *fakeTransport) JoinRoom(room models.RoomRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins = append(f.joins, room)
	return nil
}

func (f *fakeTransport) LeaveRoom(room models.RoomRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves = append(f.leaves, room)
	return nil
}

func (f *fakeTransport) SendMessage(room models.RoomRef, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, content)
	return nil
}

func (f *fakeTransport) Events() <-chan transport.Event {
	return f.events
}

// drop simulates the connection dying without a Disconnect call.
func (f *fakeTransport) drop(t *testing.T, err error) {
	t.Helper()
	f.mu.Lock()
	id := f.session
	f.session = 0
	f.mu.Unlock()
	f.emit(t, transport.Disconnected{SessionID: id, Err: err})
}

func (f *fakeTransport) emit(t *testing.T, evs ...transport.Event) {
	t.Helper()
	for _, ev := range evs {
		select {
		case f.events <- ev:
		case <-time.After(2 * time.Second):
			t.Fatalf("manager did not accept %T", ev)
		}
	}
}

func (f *fakeTransport) joinCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.joins)
}

func (f *fakeTransport) currentSession() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session
}

type statusReply struct {
	status models.ModerationStatus
	err    error
	gate   chan struct{}
}

type fakeAPI struct {
	mu           sync.Mutex
	statuses     map[models.RoomRef]statusReply
	history      map[models.RoomRef][]models.ChatMessage
	historyErr   error
	statusCalls  int
	historyCalls []models.HistoryQuery
	warnings     []models.IssueWarningRequest
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		statuses: make(map[models.RoomRef]statusReply),
		history:  make(map[models.RoomRef][]models.ChatMessage),
	}
}

func activeStatus() models.ModerationStatus {
	return models.ModerationStatus{Status: models.StatusActive, SemaphoreColor: models.SemaphoreLightGreen, CanChat: true}
}

func bannedStatus() models.ModerationStatus {
	return models.ModerationStatus{Status: models.StatusBanned, SemaphoreColor: models.SemaphoreRed, WarningCount: 3}
}

func (a *fakeAPI) setStatus(room models.RoomRef, reply statusReply) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.statuses[room] = reply
}

func (a *fakeAPI) setHistory(room models.RoomRef, ids ...int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history[room] = msgs(room, ids...)
}

// ModerationStatus ignores ctx on gated replies so late responses really
// arrive after the epoch moved on.
func (a *fakeAPI) ModerationStatus(ctx context.Context, room models.RoomRef, userID int64) (models.ModerationStatus, error) {
	a.mu.Lock()
	a.statusCalls++
	reply, ok := a.statuses[room]
	a.mu.Unlock()
	if !ok {
		return activeStatus(), nil
	}
	if reply.gate != nil {
		<-reply.gate
	}
	return reply.status, reply.err
}

func (a *fakeAPI) History(ctx context.Context, room models.RoomRef, q models.HistoryQuery) (models.HistoryPage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.historyCalls = append(a.historyCalls, q)
	if a.historyErr != nil {
		return models.HistoryPage{}, a.historyErr
	}
	var out []models.ChatMessage
	for _, m := range a.history[room] {
		if q.BeforeID == 0 || m.ID < q.BeforeID {
			out = append(out, m)
		}
	}
	hasNext := false
	if len(out) > q.PerPage {
		out = out[len(out)-q.PerPage:]
		hasNext = true
	}
	return models.HistoryPage{Messages: out, Pagination: models.Pagination{Page: 1, PerPage: q.PerPage, HasNext: hasNext}}, nil
}

func (a *fakeAPI) IssueWarning(ctx context.Context, req models.IssueWarningRequest) (models.IssueWarningResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.warnings = append(a.warnings, req)
	return models.IssueWarningResult{WarningCount: 1}, nil
}

func (a *fakeAPI) statusCallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.statusCalls
}

func msgs(room models.RoomRef, ids ...int64) []models.ChatMessage {
	out := make([]models.ChatMessage, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.ChatMessage{ID: id, ContextType: room.ContextType, ContextID: room.ContextID, Content: "m"})
	}
	return out
}
