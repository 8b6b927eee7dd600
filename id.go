package docdb

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// ID identifies a document within a collection. Generated ids are
// time-ordered: 41 bits of milliseconds since idEpoch, 10 bits of node id,
// 12 bits of sequence. Stored in documents as a decimal string.
type ID int64

const (
	idEpoch = 1288834974657

	nodeIDBits     = 10
	sequenceBits   = 12
	maxNodeID      = -1 ^ (-1 << nodeIDBits)
	sequenceMask   = -1 ^ (-1 << sequenceBits)
	nodeIDShift    = sequenceBits
	timestampShift = sequenceBits + nodeIDBits
)

// ParseID parses the decimal form of an id. Only positive values are valid.
func ParseID(s string) (ID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return ID(n), nil
}

func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Time returns the generation time encoded in a generated id.
func (id ID) Time() time.Time {
	return time.UnixMilli(int64(id)>>timestampShift + idEpoch)
}

// NodeID returns the node part of a generated id.
func (id ID) NodeID() int64 {
	return (int64(id) >> nodeIDShift) & maxNodeID
}

func (id ID) key() []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(id))
}

func idFromKey(k []byte) ID {
	if len(k) < 8 {
		return 0
	}
	return ID(binary.BigEndian.Uint64(k[len(k)-8:]))
}

// IDGenerator hands out strictly increasing ids as long as the clock does
// not go backwards. It is safe for concurrent use.
type IDGenerator struct {
	mu       sync.Mutex
	nodeID   int64
	lastTime int64
	sequence int64

	now    func() int64
	sleep  func(time.Duration)
	logger *slog.Logger
}

// NewIDGenerator returns a generator with a random node id.
func NewIDGenerator() *IDGenerator {
	return newIDGenerator(randomNodeID(), nil)
}

// NewIDGeneratorForNode returns a generator with a fixed node id, which
// must fit in 10 bits.
func NewIDGeneratorForNode(nodeID int) *IDGenerator {
	if nodeID < 0 || nodeID > maxNodeID {
		panic(fmt.Errorf("node id %d out of range 0..%d", nodeID, maxNodeID))
	}
	return newIDGenerator(int64(nodeID), nil)
}

func newIDGenerator(nodeID int64, logger *slog.Logger) *IDGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &IDGenerator{
		nodeID:   nodeID,
		lastTime: -1,
		now:      func() int64 { return time.Now().UnixMilli() },
		sleep:    time.Sleep,
		logger:   logger,
	}
}

func randomNodeID() int64 {
	var seed [16]byte
	_, err := rand.Read(seed[:])
	if err != nil {
		binary.LittleEndian.PutUint64(seed[:], uint64(time.Now().UnixNano()))
	}
	h := xxhash.Sum64(seed[:])
	var folded uint64
	for ; h != 0; h >>= nodeIDBits {
		folded ^= h & maxNodeID
	}
	return int64(folded)
}

func (g *IDGenerator) NodeID() int {
	return int(g.nodeID)
}

// Next returns the next id. It blocks while the clock is behind the last
// issued timestamp and spins to the next millisecond when the sequence
// is exhausted.
func (g *IDGenerator) Next() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts := g.now()
	for ts < g.lastTime {
		g.sleep(time.Duration(g.lastTime-ts) * time.Millisecond)
		ts = g.now()
	}

	if ts == g.lastTime {
		g.sequence = (g.sequence + 1) & sequenceMask
		if g.sequence == 0 {
			for ts <= g.lastTime {
				ts = g.now()
			}
		}
	} else {
		g.sequence = 0
	}
	g.lastTime = ts

	id := ((ts - idEpoch) << timestampShift) | (g.nodeID << nodeIDShift) | g.sequence
	if id < 0 {
		g.logger.LogAttrs(context.Background(), slog.LevelWarn, "docdb: generated negative id", slog.Int64("id", id), slog.Int64("ts", ts))
	}
	return ID(id)
}

var defaultIDGenerator = NewIDGenerator()

// NewID returns an id from the process-wide generator.
func NewID() ID {
	return defaultIDGenerator.Next()
}
