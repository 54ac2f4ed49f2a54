package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/codecollab/collab-server/pkg/metrics"
)

// LiveState is the ephemeral tier of a document: the last content broadcast
// to the room. It is never persisted and disappears with the room.
type LiveState struct {
	Content   string    `json:"content"`
	EditorID  string    `json:"editorId"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type room struct {
	members map[string]*Participant
	live    *LiveState
}

// Relay forwards broadcasts to other instances sharing the same rooms.
type Relay interface {
	Publish(ctx context.Context, documentID string, payload []byte, excludeConnID string) error
}

// Registry maps document ids to the participants currently connected to
// them. Rooms are created on first join and removed on last leave.
//
// Registry is safe for concurrent use by multiple goroutines.
type Registry struct {
	mu          sync.RWMutex
	rooms       map[string]*room
	memberships map[string]map[string]struct{} // conn id -> document ids
	relay       Relay
	log         *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		rooms:       make(map[string]*room),
		memberships: make(map[string]map[string]struct{}),
		log:         log,
	}
}

// SetRelay enables cross-instance delivery. Call before serving traffic.
func (r *Registry) SetRelay(relay Relay) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.relay = relay
}

// Join adds p to the room for documentID and returns the room size.
func (r *Registry) Join(documentID string, p *Participant) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[documentID]
	if !ok {
		rm = &room{members: make(map[string]*Participant)}
		r.rooms[documentID] = rm
		metrics.RoomsActive.Set(float64(len(r.rooms)))
		r.log.Debug("room created", "document", documentID)
	}
	if _, member := rm.members[p.ConnID]; !member {
		rm.members[p.ConnID] = p
		if r.memberships[p.ConnID] == nil {
			r.memberships[p.ConnID] = make(map[string]struct{})
		}
		r.memberships[p.ConnID][documentID] = struct{}{}
		metrics.RoomMemberships.Inc()
	}
	return len(rm.members)
}

// Leave removes p from the room and reports whether it was a member.
func (r *Registry) Leave(documentID string, p *Participant) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(documentID, p.ConnID)
}

// LeaveAll removes p from every room it joined and returns those document ids.
func (r *Registry) LeaveAll(p *Participant) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	docs := make([]string, 0, len(r.memberships[p.ConnID]))
	for documentID := range r.memberships[p.ConnID] {
		docs = append(docs, documentID)
	}
	for _, documentID := range docs {
		r.leaveLocked(documentID, p.ConnID)
	}
	return docs
}

func (r *Registry) leaveLocked(documentID, connID string) bool {
	rm, ok := r.rooms[documentID]
	if !ok {
		return false
	}
	if _, member := rm.members[connID]; !member {
		return false
	}
	delete(rm.members, connID)
	metrics.RoomMemberships.Dec()
	if set := r.memberships[connID]; set != nil {
		delete(set, documentID)
		if len(set) == 0 {
			delete(r.memberships, connID)
		}
	}
	if len(rm.members) == 0 {
		delete(r.rooms, documentID)
		metrics.RoomsActive.Set(float64(len(r.rooms)))
		r.log.Debug("room closed", "document", documentID)
	}
	return true
}

// IsMember reports whether p currently belongs to the room.
func (r *Registry) IsMember(documentID string, p *Participant) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[documentID]
	if !ok {
		return false
	}
	_, member := rm.members[p.ConnID]
	return member
}

// Size returns the number of participants in the room (0 when absent).
func (r *Registry) Size(documentID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rm, ok := r.rooms[documentID]; ok {
		return len(rm.members)
	}
	return 0
}

// RoomCount returns the number of rooms with at least one participant.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// SetLive records the last broadcast content for an existing room.
func (r *Registry) SetLive(documentID, content, editorID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rm, ok := r.rooms[documentID]; ok {
		rm.live = &LiveState{Content: content, EditorID: editorID, UpdatedAt: time.Now().UTC()}
	}
}

// Live returns the room's unsaved broadcast content, if any.
func (r *Registry) Live(documentID string) (LiveState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rm, ok := r.rooms[documentID]; ok && rm.live != nil {
		return *rm.live, true
	}
	return LiveState{}, false
}

// DiscardLive drops the room's live state unless it was recorded after asOf.
// Call it once durable content changes so late joiners are not handed a
// draft of the replaced content. It reports whether anything was dropped.
func (r *Registry) DiscardLive(documentID string, asOf time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[documentID]
	if !ok || rm.live == nil || rm.live.UpdatedAt.After(asOf) {
		return false
	}
	rm.live = nil
	return true
}

// Broadcast delivers ev to every member except exclude (which may be nil).
// Delivery is fire-and-forget; the number of local enqueues is returned.
func (r *Registry) Broadcast(documentID string, ev *Event, exclude *Participant) int {
	excludeConnID := ""
	if exclude != nil {
		excludeConnID = exclude.ConnID
	}
	return r.broadcast(documentID, ev, excludeConnID)
}

// BroadcastInclusive delivers ev to every member, sender included.
func (r *Registry) BroadcastInclusive(documentID string, ev *Event) int {
	return r.broadcast(documentID, ev, "")
}

func (r *Registry) broadcast(documentID string, ev *Event, excludeConnID string) int {
	payload, err := ev.Encode()
	if err != nil {
		r.log.Error("encode event", "event", ev.Type, "error", err)
		return 0
	}
	n := r.Deliver(documentID, payload, excludeConnID)
	metrics.EventsBroadcast.WithLabelValues(string(ev.Type)).Add(float64(n))

	r.mu.RLock()
	relay := r.relay
	r.mu.RUnlock()
	if relay != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := relay.Publish(ctx, documentID, payload, excludeConnID); err != nil {
			r.log.Warn("relay publish failed", "document", documentID, "error", err)
		}
	}
	return n
}

// Deliver enqueues an encoded event on local members only.
func (r *Registry) Deliver(documentID string, payload []byte, excludeConnID string) int {
	r.mu.RLock()
	rm, ok := r.rooms[documentID]
	if !ok {
		r.mu.RUnlock()
		return 0
	}
	targets := make([]*Participant, 0, len(rm.members))
	for connID, p := range rm.members {
		if connID != excludeConnID {
			targets = append(targets, p)
		}
	}
	r.mu.RUnlock()

	delivered := 0
	for _, p := range targets {
		if p.Enqueue(payload) {
			delivered++
		} else {
			r.log.Debug("event not delivered", "document", documentID, "conn", p.ConnID)
		}
	}
	return delivered
}
