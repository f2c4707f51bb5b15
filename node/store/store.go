// Package store is the off-ledger node's persistent segment store: a
// column-partitioned embedded key-value store holding spool-number/address
// mappings, packed segments and Merkle canopy caches (spec §4.4). It is
// grounded on the teacher's key-prefixing convention for ledger-backed state
// (core/Nodes/witness/archival_witness_node.go's "aw:tx:%x" keys) generalized
// to the fixed set of logical column families this store needs, and backed
// by goleveldb in place of the teacher's in-memory state map since this
// store must survive a process restart.
package store

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"spoolchain/core"
)

// segmentCacheSize bounds the in-memory hot cache of recently-read packed
// segments (spec §4.4 read path), so a resync or challenge burst re-reading
// the same handful of sectors does not thrash goleveldb's own block cache.
const segmentCacheSize = 4096

type segmentCacheKey struct {
	addr  core.Address
	segNo uint64
}

// Logical column family prefixes. Every key this store writes begins with
// exactly one of these, so a single flat goleveldb namespace behaves like
// the multiple column families spec §4.4 describes.
const (
	cfSpoolByNumber  = 'N'
	cfSpoolByAddress = 'A'
	cfSegment        = 'S'
	cfMerkleCache    = 'M'
	cfStats          = 'T'
	cfHealth         = 'H'
)

// Mode is how a store handle was opened (spec §4.4 "primary, secondary ...
// or read-only").
type Mode int

const (
	// ModePrimary is the single read-write handle the ingestion pipeline
	// and packer write through.
	ModePrimary Mode = iota
	// ModeSecondary is a read-replica handle that must be periodically told
	// to catch up via Refresh. goleveldb has no native secondary-instance
	// API the way RocksDB does, so this mode is simulated by closing and
	// reopening a read-only handle on Refresh; it is documented here as a
	// simplification rather than a literal secondary instance.
	ModeSecondary
	// ModeReadOnly never writes and is never refreshed.
	ModeReadOnly
)

// Store wraps a goleveldb handle with the typed accessors the rest of the
// node uses instead of raw key bytes.
type Store struct {
	mu       sync.RWMutex
	path     string
	mode     Mode
	db       *leveldb.DB
	log      *logrus.Entry
	segCache *lru.Cache[segmentCacheKey, []byte]
}

// Open opens (creating if necessary, for ModePrimary) the store at path.
func Open(path string, mode Mode) (*Store, error) {
	opts := &opt.Options{ReadOnly: mode != ModePrimary}
	db, err := leveldb.OpenFile(path, opts)
	if err != nil {
		return nil, fmt.Errorf("spoolchain: open store %s: %w", path, err)
	}
	segCache, err := lru.New[segmentCacheKey, []byte](segmentCacheSize)
	if err != nil {
		return nil, fmt.Errorf("spoolchain: allocate segment cache: %w", err)
	}
	return &Store{
		path:     path,
		mode:     mode,
		db:       db,
		log:      logrus.WithFields(map[string]interface{}{"component": "store", "path": path}),
		segCache: segCache,
	}, nil
}

// Close releases the underlying handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Refresh catches a secondary handle up to the primary's latest state. A
// no-op for ModePrimary and ModeReadOnly.
func (s *Store) Refresh() error {
	if s.mode != ModeSecondary {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("spoolchain: refresh close %s: %w", s.path, err)
	}
	db, err := leveldb.OpenFile(s.path, &opt.Options{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("spoolchain: refresh reopen %s: %w", s.path, err)
	}
	s.db = db
	s.segCache.Purge()
	return nil
}

func beU64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func spoolByNumberKey(number uint64) []byte {
	return append([]byte{cfSpoolByNumber}, beU64(number)...)
}

func spoolByAddressKey(addr core.Address) []byte {
	return append([]byte{cfSpoolByAddress}, addr[:]...)
}

func segmentKey(addr core.Address, segNo uint64) []byte {
	key := make([]byte, 0, 1+32+8)
	key = append(key, cfSegment)
	key = append(key, addr[:]...)
	key = append(key, beU64(segNo)...)
	return key
}

func segmentPrefix(addr core.Address) []byte {
	key := make([]byte, 0, 1+32)
	key = append(key, cfSegment)
	key = append(key, addr[:]...)
	return key
}

// PutSpoolAddress records the (number, address) mapping in both directions
// atomically, so the two logical column families never drift apart (spec
// §4.4 "Write path is batched atomically where two CFs must stay in sync").
func (s *Store) PutSpoolAddress(number uint64, addr core.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := new(leveldb.Batch)
	batch.Put(spoolByNumberKey(number), addr[:])
	batch.Put(spoolByAddressKey(addr), beU64(number))
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("spoolchain: %w: put spool address %d: %v", core.ErrIO, number, err)
	}
	return nil
}

// SpoolAddressByNumber resolves a finalized spool's address from its number.
func (s *Store) SpoolAddressByNumber(number uint64) (core.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, err := s.db.Get(spoolByNumberKey(number), nil)
	if err == leveldb.ErrNotFound {
		return core.Address{}, fmt.Errorf("spool %d: %w", number, core.ErrSpoolNotFound)
	}
	if err != nil {
		return core.Address{}, fmt.Errorf("spoolchain: %w: get spool %d: %v", core.ErrIO, number, err)
	}
	if len(v) != 32 {
		return core.Address{}, fmt.Errorf("spool %d: %w", number, core.ErrInvalidPubkey)
	}
	var addr core.Address
	copy(addr[:], v)
	return addr, nil
}

// SpoolNumberByAddress is the inverse of SpoolAddressByNumber.
func (s *Store) SpoolNumberByAddress(addr core.Address) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, err := s.db.Get(spoolByAddressKey(addr), nil)
	if err == leveldb.ErrNotFound {
		return 0, fmt.Errorf("spool %s: %w", addr, core.ErrSpoolNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("spoolchain: %w: get spool %s: %v", core.ErrIO, addr, err)
	}
	if len(v) != 8 {
		return 0, fmt.Errorf("spool %s: %w", addr, core.ErrInvalidSegmentKey)
	}
	return binary.BigEndian.Uint64(v), nil
}

// PutSegment stores a packed segment's bytes at (spool, segmentNumber).
func (s *Store) PutSegment(spoolAddr core.Address, segNo uint64, packed []byte) error {
	if len(packed) != core.PackedSegmentSize {
		return fmt.Errorf("spool %s segment %d: %w", spoolAddr, segNo, core.ErrInvalidSegmentKey)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Put(segmentKey(spoolAddr, segNo), packed, nil); err != nil {
		return fmt.Errorf("spoolchain: %w: put segment %s/%d: %v", core.ErrIO, spoolAddr, segNo, err)
	}
	cached := make([]byte, len(packed))
	copy(cached, packed)
	s.segCache.Add(segmentCacheKey{spoolAddr, segNo}, cached)
	return nil
}

// GetSegment returns the packed segment bytes at (spool, segmentNumber), or
// ErrSegmentNotFoundForAddr if absent. Recently read or written segments are
// served from an in-memory hot cache before falling through to goleveldb.
func (s *Store) GetSegment(spoolAddr core.Address, segNo uint64) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ck := segmentCacheKey{spoolAddr, segNo}
	if v, ok := s.segCache.Get(ck); ok {
		out := make([]byte, len(v))
		copy(out, v)
		return out, nil
	}
	v, err := s.db.Get(segmentKey(spoolAddr, segNo), nil)
	if err == leveldb.ErrNotFound {
		return nil, fmt.Errorf("spool %s segment %d: %w", spoolAddr, segNo, core.ErrSegmentNotFoundForAddr)
	}
	if err != nil {
		return nil, fmt.Errorf("spoolchain: %w: get segment %s/%d: %v", core.ErrIO, spoolAddr, segNo, err)
	}
	out := make([]byte, len(v))
	copy(out, v)
	s.segCache.Add(ck, out)
	return out, nil
}

// HasSegment reports whether a packed segment is already stored, the check
// the live ingestion loop makes before enqueuing a redundant pack job.
func (s *Store) HasSegment(spoolAddr core.Address, segNo uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ok, _ := s.db.Has(segmentKey(spoolAddr, segNo), nil)
	return ok
}

// SegmentCount returns how many packed segments are stored for spoolAddr, by
// scanning the Segment column family's key range for that address.
func (s *Store) SegmentCount(spoolAddr core.Address) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prefix := segmentPrefix(spoolAddr)
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	var n uint64
	for iter.Next() {
		n++
	}
	return n
}

// MerkleCacheKind selects which logical canopy snapshot a MerkleCache key
// addresses (spec §4.4 "Key variants").
type MerkleCacheKind byte

const (
	KindZeroValues        MerkleCacheKind = 'z'
	KindUnpackedSpoolLayer MerkleCacheKind = 'u'
	KindPackedSpoolLayer   MerkleCacheKind = 'p'
)

func merkleCacheKey(kind MerkleCacheKind, spoolAddr core.Address, layer int) []byte {
	key := make([]byte, 0, 2+32+4)
	key = append(key, cfMerkleCache, byte(kind))
	key = append(key, spoolAddr[:]...)
	lb := make([]byte, 4)
	binary.BigEndian.PutUint32(lb, uint32(layer))
	return append(key, lb...)
}

// PutMerkleLayer persists a sector-layer snapshot: the canopy engine's only
// persisted intermediate state (spec §9 "Two-level canopy"). The layer
// vector is rlp-encoded, the same wire encoding the teacher's core package
// already depends on go-ethereum for elsewhere.
func (s *Store) PutMerkleLayer(kind MerkleCacheKind, spoolAddr core.Address, layer int, values []core.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw := make([][]byte, len(values))
	for i, h := range values {
		raw[i] = h[:]
	}
	buf, err := rlp.EncodeToBytes(raw)
	if err != nil {
		return fmt.Errorf("spoolchain: %w: encode merkle layer: %v", core.ErrIO, err)
	}
	if err := s.db.Put(merkleCacheKey(kind, spoolAddr, layer), buf, nil); err != nil {
		return fmt.Errorf("spoolchain: %w: put merkle layer: %v", core.ErrIO, err)
	}
	return nil
}

// GetMerkleLayer retrieves a previously persisted sector-layer snapshot, or
// (nil, nil) if none has been written yet.
func (s *Store) GetMerkleLayer(kind MerkleCacheKind, spoolAddr core.Address, layer int) ([]core.Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, err := s.db.Get(merkleCacheKey(kind, spoolAddr, layer), nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("spoolchain: %w: get merkle layer: %v", core.ErrIO, err)
	}
	var raw [][]byte
	if err := rlp.DecodeBytes(v, &raw); err != nil {
		return nil, fmt.Errorf("spoolchain: %w: corrupt merkle layer: %v", core.ErrIO, err)
	}
	out := make([]core.Hash, len(raw))
	for i, b := range raw {
		if len(b) != 32 {
			return nil, fmt.Errorf("spoolchain: %w: corrupt merkle layer entry", core.ErrIO)
		}
		copy(out[i][:], b)
	}
	return out, nil
}

// IncrStat bumps a named counter under the Stats column family. The store's
// own write paths (PutSpoolAddress, PutSegment, PutMerkleLayer) do not call
// it; a counter changes only when a caller invokes IncrStat directly.
func (s *Store) IncrStat(name string, delta uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := append([]byte{cfStats}, []byte(name)...)
	cur := uint64(0)
	if v, err := s.db.Get(key, nil); err == nil && len(v) == 8 {
		cur = binary.BigEndian.Uint64(v)
	}
	cur += delta
	if err := s.db.Put(key, beU64(cur), nil); err != nil {
		return fmt.Errorf("spoolchain: %w: incr stat %s: %v", core.ErrIO, name, err)
	}
	return nil
}

// Stat reads a named counter, defaulting to zero.
func (s *Store) Stat(name string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, err := s.db.Get(append([]byte{cfStats}, []byte(name)...), nil)
	if err != nil || len(v) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(v)
}

// SetHealth records a health-check heartbeat under the Health column family.
func (s *Store) SetHealth(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Put(append([]byte{cfHealth}, []byte(key)...), value, nil); err != nil {
		return fmt.Errorf("spoolchain: %w: set health %s: %v", core.ErrIO, key, err)
	}
	return nil
}
