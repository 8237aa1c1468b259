// Package testutil provides shared test utilities, mocks, and fixtures
// for testing the chat core.
package testutil

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"tutoring-chat/internal/domain"
)

// MockParticipantRepository implements domain.ParticipantRepository with
// in-memory membership records.
type MockParticipantRepository struct {
	mu sync.RWMutex

	// Function overrides - set these to customize behavior
	MembershipFunc       func(ctx context.Context, roomID, userID string) (*domain.Participant, error)
	AdvanceWatermarkFunc func(ctx context.Context, roomID, userID string, upTo int64) (int64, error)
	ListPeersFunc        func(ctx context.Context, userID string) ([]string, error)

	// In-memory storage: roomID -> userID -> record
	Members  map[string]map[string]*domain.Participant
	Inactive map[string]bool
}

// NewMockParticipantRepository creates a new MockParticipantRepository with initialized maps
func NewMockParticipantRepository() *MockParticipantRepository {
	return &MockParticipantRepository{
		Members:  make(map[string]map[string]*domain.Participant),
		Inactive: make(map[string]bool),
	}
}

// AddRoom registers userIDs as participants of roomID.
func (m *MockParticipantRepository) AddRoom(roomID string, userIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Members[roomID] == nil {
		m.Members[roomID] = make(map[string]*domain.Participant)
	}
	for _, id := range userIDs {
		if _, ok := m.Members[roomID][id]; ok {
			continue
		}
		m.Members[roomID][id] = &domain.Participant{RoomID: roomID, UserID: id, JoinedAt: time.Now()}
	}
}

// SetInactive marks a room active or inactive.
func (m *MockParticipantRepository) SetInactive(roomID string, inactive bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Inactive[roomID] = inactive
}

// Watermark returns the stored watermark, or -1 when there is no record.
func (m *MockParticipantRepository) Watermark(roomID, userID string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if p, ok := m.Members[roomID][userID]; ok {
		return p.LastReadSeq
	}
	return -1
}

func (m *MockParticipantRepository) Membership(ctx context.Context, roomID, userID string) (*domain.Participant, error) {
	if m.MembershipFunc != nil {
		return m.MembershipFunc(ctx, roomID, userID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Inactive[roomID] {
		return nil, domain.ErrNotParticipant
	}
	p, ok := m.Members[roomID][userID]
	if !ok {
		return nil, domain.ErrNotParticipant
	}
	cp := *p
	return &cp, nil
}

func (m *MockParticipantRepository) AdvanceWatermark(ctx context.Context, roomID, userID string, upTo int64) (int64, error) {
	if m.AdvanceWatermarkFunc != nil {
		return m.AdvanceWatermarkFunc(ctx, roomID, userID, upTo)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.Members[roomID][userID]
	if !ok || m.Inactive[roomID] {
		return 0, domain.ErrNotParticipant
	}
	if upTo > p.LastReadSeq {
		p.LastReadSeq = upTo
	}
	return p.LastReadSeq, nil
}

func (m *MockParticipantRepository) ListPeers(ctx context.Context, userID string) ([]string, error) {
	if m.ListPeersFunc != nil {
		return m.ListPeersFunc(ctx, userID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	for roomID, members := range m.Members {
		if m.Inactive[roomID] {
			continue
		}
		if _, ok := members[userID]; !ok {
			continue
		}
		for id := range members {
			if id != userID {
				seen[id] = struct{}{}
			}
		}
	}

	peers := make([]string, 0, len(seen))
	for id := range seen {
		peers = append(peers, id)
	}
	sort.Strings(peers)
	return peers, nil
}

// MockRoomRepository implements domain.RoomRepository. Created rooms are
// registered with the linked participant repository.
type MockRoomRepository struct {
	mu sync.RWMutex

	// Function overrides
	CreateFunc     func(ctx context.Context, room *domain.Room) error
	GetByIDFunc    func(ctx context.Context, id string) (*domain.Room, error)
	DeactivateFunc func(ctx context.Context, id string) error

	// In-memory storage
	Rooms        map[string]*domain.Room
	Participants *MockParticipantRepository
}

// NewMockRoomRepository creates a new MockRoomRepository linked to participants
func NewMockRoomRepository(participants *MockParticipantRepository) *MockRoomRepository {
	return &MockRoomRepository{
		Rooms:        make(map[string]*domain.Room),
		Participants: participants,
	}
}

func (m *MockRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, room)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.Rooms[room.ID]; ok {
		return domain.ErrRoomExists
	}
	room.Active = true
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now()
	}
	m.Rooms[room.ID] = room
	if m.Participants != nil {
		m.Participants.AddRoom(room.ID, room.Participants...)
	}
	return nil
}

func (m *MockRoomRepository) GetByID(ctx context.Context, id string) (*domain.Room, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if room, ok := m.Rooms[id]; ok {
		return room, nil
	}
	return nil, domain.ErrRoomNotFound
}

func (m *MockRoomRepository) Deactivate(ctx context.Context, id string) error {
	if m.DeactivateFunc != nil {
		return m.DeactivateFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.Rooms[id]
	if !ok {
		return domain.ErrRoomNotFound
	}
	room.Active = false
	if m.Participants != nil {
		m.Participants.SetInactive(id, true)
	}
	return nil
}

// MockMessageRepository implements domain.MessageRepository for testing.
// Append rejects non-consecutive sequence numbers the way the primary key
// on (room_id, seq) would.
type MockMessageRepository struct {
	mu sync.RWMutex

	// Function overrides
	AppendFunc     func(ctx context.Context, msg *domain.Message) error
	LastSeqFunc    func(ctx context.Context, roomID string) (int64, error)
	CountAfterFunc func(ctx context.Context, roomID string, seq int64) (int64, error)

	// In-memory storage
	Messages     map[string][]*domain.Message
	Participants *MockParticipantRepository
}

// NewMockMessageRepository creates a new MockMessageRepository linked to participants
func NewMockMessageRepository(participants *MockParticipantRepository) *MockMessageRepository {
	return &MockMessageRepository{
		Messages:     make(map[string][]*domain.Message),
		Participants: participants,
	}
}

func (m *MockMessageRepository) Append(ctx context.Context, msg *domain.Message) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, msg)
	}
	return m.Store(ctx, msg)
}

// Store is the default Append behavior, exposed so overrides can delegate.
func (m *MockMessageRepository) Store(ctx context.Context, msg *domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	log := m.Messages[msg.RoomID]
	if int64(len(log))+1 != msg.Seq {
		m.mu.Unlock()
		return domain.ErrSeqConflict
	}
	msg.CreatedAt = time.Now()
	cp := *msg
	m.Messages[msg.RoomID] = append(log, &cp)
	m.mu.Unlock()

	if m.Participants != nil && msg.SenderID != "" {
		if _, err := m.Participants.AdvanceWatermark(ctx, msg.RoomID, msg.SenderID, msg.Seq); err != nil {
			return err
		}
	}
	return nil
}

func (m *MockMessageRepository) LastSeq(ctx context.Context, roomID string) (int64, error) {
	if m.LastSeqFunc != nil {
		return m.LastSeqFunc(ctx, roomID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.Messages[roomID])), nil
}

func (m *MockMessageRepository) CountAfter(ctx context.Context, roomID string, seq int64) (int64, error) {
	if m.CountAfterFunc != nil {
		return m.CountAfterFunc(ctx, roomID, seq)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, msg := range m.Messages[roomID] {
		if msg.Seq > seq {
			n++
		}
	}
	return n, nil
}

// Log returns a copy of the stored messages for roomID.
func (m *MockMessageRepository) Log(roomID string) []*domain.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.Message, len(m.Messages[roomID]))
	copy(out, m.Messages[roomID])
	return out
}

// MockCredentialRepository implements domain.CredentialRepository for testing
type MockCredentialRepository struct {
	mu sync.RWMutex

	GetByTokenFunc func(ctx context.Context, token string) (*domain.Credential, error)

	Credentials map[string]*domain.Credential
}

// NewMockCredentialRepository creates a new MockCredentialRepository with initialized maps
func NewMockCredentialRepository() *MockCredentialRepository {
	return &MockCredentialRepository{
		Credentials: make(map[string]*domain.Credential),
	}
}

func (m *MockCredentialRepository) Add(c *domain.Credential) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Credentials[c.Token] = c
}

func (m *MockCredentialRepository) GetByToken(ctx context.Context, token string) (*domain.Credential, error) {
	if m.GetByTokenFunc != nil {
		return m.GetByTokenFunc(ctx, token)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if c, ok := m.Credentials[token]; ok {
		if c.Expired(time.Now()) {
			return nil, domain.ErrCredentialExpired
		}
		return c, nil
	}
	return nil, domain.ErrCredentialNotFound
}

// ReceivedEvent is a decoded outbound frame.
type ReceivedEvent struct {
	Type domain.EventType `json:"event"`
	Ref  string           `json:"ref"`
	Data json.RawMessage  `json:"data"`
}

// Decode unmarshals the event data into v.
func (e ReceivedEvent) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// MockPeer implements domain.Peer and records every delivered frame.
type MockPeer struct {
	mu     sync.Mutex
	id     string
	userID string
	frames [][]byte

	// Reject makes Deliver report a full queue.
	Reject bool
}

// NewMockPeer creates a peer for userID with connection id id
func NewMockPeer(id, userID string) *MockPeer {
	return &MockPeer{id: id, userID: userID}
}

func (p *MockPeer) ID() string     { return p.id }
func (p *MockPeer) UserID() string { return p.userID }

func (p *MockPeer) Deliver(frame []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Reject {
		return false
	}
	p.frames = append(p.frames, frame)
	return true
}

// Events decodes every frame received so far.
func (p *MockPeer) Events() []ReceivedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]ReceivedEvent, 0, len(p.frames))
	for _, f := range p.frames {
		var ev ReceivedEvent
		if err := json.Unmarshal(f, &ev); err == nil {
			out = append(out, ev)
		}
	}
	return out
}

// EventsOfType returns the received events with the given type.
func (p *MockPeer) EventsOfType(t domain.EventType) []ReceivedEvent {
	var out []ReceivedEvent
	for _, ev := range p.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// Reset forgets all received frames.
func (p *MockPeer) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = nil
}
