package session

import (
	"sort"
	"sync"

	"github.com/zsiec/moqcore/pkg/transport"
)

// groupStream is one active outgoing group stream the scheduler tracks.
type groupStream struct {
	id       uint64
	priority uint8
	sequence uint64
	ordered  bool
	stream   transport.SendStream
}

// scheduler maintains the publisher's priority queue over every active
// outgoing group stream, keyed by (subscriber_priority, group_sequence),
// and refreshes each stream's QUIC-level send priority whenever membership
// changes (spec §4.8.3). Transport priority is ascending-urgency (rank 0
// sent first), so higher subscriber priority gets a lower rank.
type scheduler struct {
	mu      sync.Mutex
	nextID  uint64
	streams map[uint64]*groupStream
}

func newScheduler() *scheduler {
	return &scheduler{streams: make(map[uint64]*groupStream)}
}

// Add registers a newly opened group stream, returning a handle to Remove
// it once the group finishes or is reset.
func (s *scheduler) Add(stream transport.SendStream, priority uint8, sequence uint64, ordered bool) uint64 {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.streams[id] = &groupStream{id: id, priority: priority, sequence: sequence, ordered: ordered, stream: stream}
	s.mu.Unlock()
	s.recompute()
	return id
}

// Remove deregisters a finished or reset group stream.
func (s *scheduler) Remove(id uint64) {
	s.mu.Lock()
	delete(s.streams, id)
	s.mu.Unlock()
	s.recompute()
}

// recompute ranks every active stream — higher subscriber priority first;
// within equal priority, newest group first unless the track asked for
// ordered delivery, in which case oldest first — and pushes each stream's
// rank down to the transport as its send priority (spec §4.8.3 "across
// congestion events, higher-priority tracks block lower-priority ones").
func (s *scheduler) recompute() {
	s.mu.Lock()
	active := make([]*groupStream, 0, len(s.streams))
	for _, gs := range s.streams {
		active = append(active, gs)
	}
	s.mu.Unlock()

	sort.Slice(active, func(i, j int) bool {
		a, b := active[i], active[j]
		if a.priority != b.priority {
			return a.priority > b.priority
		}
		if a.ordered {
			return a.sequence < b.sequence
		}
		return a.sequence > b.sequence
	})

	for rank, gs := range active {
		gs.stream.SetPriority(rank)
	}
}
