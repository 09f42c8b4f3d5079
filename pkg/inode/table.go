package inode

import (
	"crypto/sha256"
	"io"
	"sync"

	"github.com/bgrewell/iso-forge/pkg/iso9660/directory"
)

// Table is the content-addressed payload table for one image. Every Inode
// Pack will write belongs to exactly one Table, shared across the ISO,
// Joliet and UDF trees being built from it.
type Table struct {
	mu      sync.Mutex
	nextID  uint64
	inodes  map[uint64]*Inode
	bySum   map[[sha256.Size]byte][]uint64
	zero    *Inode
}

// NewTable returns an empty Table.
func NewTable() *Table {
	return &Table{
		inodes: make(map[uint64]*Inode),
		bySum:  make(map[[sha256.Size]byte][]uint64),
	}
}

// Zero returns the table's sentinel zero-length Inode, creating it on first
// use. Every empty file in the image shares this one Inode.
func (t *Table) Zero() *Inode {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.zero == nil {
		t.zero = &Inode{ID: t.allocID(), Source: zeroSource{}}
		t.inodes[t.zero.ID] = t.zero
	}
	return t.zero
}

// AddBytes returns the Inode for data, reusing an existing Inode if this
// exact content is already present. Content addressing only applies to
// in-memory payloads: hashing an external stream up front to look for a
// duplicate would mean reading it twice for no benefit, so AddReaderAt
// never dedups.
func (t *Table) AddBytes(data []byte) *Inode {
	if len(data) == 0 {
		return t.Zero()
	}

	sum := sha256.Sum256(data)

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, id := range t.bySum[sum] {
		existing := t.inodes[id]
		if existing.Length == uint64(len(data)) {
			return existing
		}
	}

	n := &Inode{ID: t.allocID(), Length: uint64(len(data)), Source: FromBytes(data)}
	t.inodes[n.ID] = n
	t.bySum[sum] = append(t.bySum[sum], n.ID)
	return n
}

// AddReaderAt returns a fresh Inode over [offset, offset+length) of r.
func (t *Table) AddReaderAt(r io.ReaderAt, offset, length int64) *Inode {
	if length == 0 {
		return t.Zero()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	n := &Inode{ID: t.allocID(), Length: uint64(length), Source: FromReaderAt(r, offset, length)}
	t.inodes[n.ID] = n
	return n
}

// allocID must be called with t.mu held.
func (t *Table) allocID() uint64 {
	t.nextID++
	return t.nextID
}

// AddRef records that node (in the given plane) names n's payload,
// incrementing its reference count, and points node back at n via
// node.InodeID.
func (t *Table) AddRef(n *Inode, plane Plane, node *directory.Node) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n.BackRefs = append(n.BackRefs, BackRef{Plane: plane, Node: node})
	node.InodeID = n.ID
}

// RemoveRef drops node's back-reference to n. When that was the last
// reference, the Inode is freed from the table and freed reports true;
// Pack must not assign it an extent or write its payload after that.
func (t *Table) RemoveRef(n *Inode, plane Plane, node *directory.Node) (freed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, ref := range n.BackRefs {
		if ref.Plane == plane && ref.Node == node {
			n.BackRefs = append(n.BackRefs[:i], n.BackRefs[i+1:]...)
			break
		}
	}

	if len(n.BackRefs) > 0 || n == t.zero {
		return false
	}

	delete(t.inodes, n.ID)
	if sum, ok := contentSumOf(n); ok {
		t.bySum[sum] = removeID(t.bySum[sum], n.ID)
	}
	return true
}

// Get returns the Inode with the given ID, if it is still live.
func (t *Table) Get(id uint64) (*Inode, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.inodes[id]
	return n, ok
}

// All returns every live Inode, ordered by ID for deterministic iteration
// across planner passes.
func (t *Table) All() []*Inode {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*Inode, 0, len(t.inodes))
	for _, n := range t.inodes {
		out = append(out, n)
	}
	sortInodesByID(out)
	return out
}

func sortInodesByID(nodes []*Inode) {
	for i := 1; i < len(nodes); i++ {
		for j := i; j > 0 && nodes[j-1].ID > nodes[j].ID; j-- {
			nodes[j-1], nodes[j] = nodes[j], nodes[j-1]
		}
	}
}

func removeID(ids []uint64, id uint64) []uint64 {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// contentSumOf recomputes the hash key under which n would be indexed in
// bySum, for cleanup on RemoveRef. Only bytesSource payloads are indexed.
func contentSumOf(n *Inode) ([sha256.Size]byte, bool) {
	b, ok := n.Source.(bytesSource)
	if !ok {
		return [sha256.Size]byte{}, false
	}
	return sha256.Sum256(b.data), true
}
