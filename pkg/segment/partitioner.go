package segment

import (
	"crypto/sha256"
	"encoding/binary"
	"sync"

	"github.com/carverauto/nodesim/pkg/models"
)

// Segment is one batch offered to the operator.
type Segment struct {
	// Platform is empty when segments are not grouped by platform.
	Platform models.Platform
	// Index is 0-based within the platform group (or overall).
	Index int
	Nodes []models.Node
}

// IDs returns the node identifiers of the segment.
func (s Segment) IDs() []string {
	return models.NodeIDs(s.Nodes)
}

// Partitioner keeps segment membership stable across re-renders. It caches
// the last result and recomputes only when the node list, the count, or the
// grouping mode change.
type Partitioner struct {
	mu         sync.Mutex
	count      int
	byPlatform bool

	key      [sha256.Size]byte
	cached   bool
	segments []Segment
}

// NewPartitioner creates a partitioner from the segment configuration.
func NewPartitioner(cfg models.SegmentConfig) *Partitioner {
	return &Partitioner{
		count:      max(cfg.Count, 1),
		byPlatform: cfg.GroupByPlatform,
	}
}

// SetCount changes the number of segments.
func (p *Partitioner) SetCount(k int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.count = max(k, 1)
}

// Count returns the configured segment count.
func (p *Partitioner) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.count
}

// Segments partitions nodes. The returned slice is shared with later calls
// over the same input and must not be modified.
func (p *Partitioner) Segments(nodes []models.Node) []Segment {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := fingerprint(nodes, p.count, p.byPlatform)
	if p.cached && key == p.key {
		return p.segments
	}

	p.key = key
	p.cached = true
	p.segments = p.compute(nodes)

	return p.segments
}

func (p *Partitioner) compute(nodes []models.Node) []Segment {
	if !p.byPlatform {
		parts := Partition(nodes, p.count)
		out := make([]Segment, 0, len(parts))

		for i, part := range parts {
			out = append(out, Segment{Index: i, Nodes: part})
		}

		return out
	}

	var out []Segment

	for _, g := range ByPlatform(nodes, p.count) {
		for i, part := range g.Segments {
			out = append(out, Segment{Platform: g.Platform, Index: i, Nodes: part})
		}
	}

	return out
}

func fingerprint(nodes []models.Node, k int, byPlatform bool) [sha256.Size]byte {
	h := sha256.New()

	var buf [8]byte

	binary.BigEndian.PutUint64(buf[:], uint64(k))
	h.Write(buf[:])

	if byPlatform {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}

	for i := range nodes {
		h.Write([]byte(nodes[i].NodeID))
		h.Write([]byte{0})
		h.Write([]byte(nodes[i].Platform))
		h.Write([]byte{0})
	}

	var sum [sha256.Size]byte
	copy(sum[:], h.Sum(nil))

	return sum
}
