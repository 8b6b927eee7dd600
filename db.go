package docdb

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"go.etcd.io/bbolt"
	"golang.org/x/sync/errgroup"
)

// DB is an embedded document database: a set of named collections kept in
// one Bolt file, or in memory.
type DB struct {
	bdb     *bbolt.DB
	st      *store
	logger  *slog.Logger
	verbose bool
	ids     *IDGenerator
	codec   valueCodec
	txns    txnTracker

	mu     sync.Mutex
	colls  map[string]*Collection
	closed bool
}

type Options struct {
	Logger    *slog.Logger
	Verbose   bool
	IsTesting bool
	MmapSize  int

	// InMemory keeps everything in memory. Open also does this for an
	// empty path.
	InMemory bool

	Compression          Compression
	CompressionThreshold int // bytes, smaller documents stay uncompressed

	// JSONValues stores documents as JSON instead of msgpack.
	JSONValues bool

	// NodeID fixes the node part of generated ids. Nil picks one at random.
	NodeID *int
}

const defaultCompressionThreshold = 256

func Open(path string, opt Options) (*DB, error) {
	logger := opt.Logger
	if logger == nil {
		logger = slog.Default()
	}

	db := &DB{
		logger:  logger,
		verbose: opt.Verbose,
		colls:   make(map[string]*Collection),
		codec: valueCodec{
			encoding:    MsgPack,
			compression: opt.Compression,
			threshold:   opt.CompressionThreshold,
		},
	}
	if opt.JSONValues {
		db.codec.encoding = JSON
	}
	if db.codec.threshold == 0 {
		db.codec.threshold = defaultCompressionThreshold
	}
	if opt.NodeID != nil {
		if *opt.NodeID < 0 || *opt.NodeID > maxNodeID {
			return nil, validationErrf("node id %d out of range 0..%d", *opt.NodeID, maxNodeID)
		}
		db.ids = newIDGenerator(int64(*opt.NodeID), logger)
	} else {
		db.ids = newIDGenerator(randomNodeID(), logger)
	}

	if opt.InMemory || path == "" {
		db.st = newStore(newMemStorage(), logger)
	} else {
		bopt := &bbolt.Options{}
		*bopt = *bbolt.DefaultOptions
		bopt.Timeout = 10 * time.Second
		if opt.IsTesting {
			bopt.NoSync = true
			bopt.NoFreelistSync = true
			bopt.InitialMmapSize = 1024 * 1024 * 5
		} else {
			bopt.InitialMmapSize = 1024 * 1024 * 1024
			bopt.FreelistType = bbolt.FreelistMapType
		}
		if opt.MmapSize != 0 {
			bopt.InitialMmapSize = opt.MmapSize
		}

		bdb, err := bbolt.Open(path, 0666, bopt)
		if err != nil {
			return nil, fmt.Errorf("docdb: %w", err)
		}
		db.bdb = bdb
		db.st = newStore(newBoltStorage(bdb), logger)
	}

	if err := db.openExisting(); err != nil {
		db.st.Close()
		return nil, err
	}
	return db, nil
}

// openExisting opens every stored collection, rebuilding indexes whose
// build was interrupted. Collections are opened in parallel.
func (db *DB) openExisting() error {
	names := db.storedCollections()
	opened := make([]*Collection, len(names))
	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			c, err := openCollection(name, db.collectionConfig())
			if err != nil {
				return fmt.Errorf("docdb: opening %s: %w", name, err)
			}
			opened[i] = c
			return nil
		})
	}
	err := g.Wait()
	for _, c := range opened {
		if c != nil {
			db.colls[c.name] = c
		}
	}
	return err
}

func (db *DB) storedCollections() []string {
	var names []string
	for _, m := range db.st.MapNames() {
		if name, ok := strings.CutPrefix(m, catalogPrefix); ok {
			names = append(names, name)
		}
	}
	return names
}

func (db *DB) collectionConfig() collectionConfig {
	return collectionConfig{
		store:   db.st,
		codec:   db.codec,
		ids:     db.ids,
		logger:  db.logger,
		verbose: db.verbose,
		release: db.forget,
		txns:    &db.txns,
	}
}

func (db *DB) forget(c *Collection) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.colls[c.name] == c {
		delete(db.colls, c.name)
	}
}

// Collection returns the named collection, creating it if needed.
func (db *DB) Collection(name string) (*Collection, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, ErrClosed
	}
	if c := db.colls[name]; c != nil {
		return c, nil
	}
	c, err := openCollection(name, db.collectionConfig())
	if err != nil {
		return nil, err
	}
	db.colls[name] = c
	return c, nil
}

func (db *DB) HasCollection(name string) bool {
	return db.st.HasMap(catalogMapName(name))
}

// ListCollections returns the names of all collections in sorted order.
func (db *DB) ListCollections() []string {
	names := db.storedCollections()
	slices.Sort(names)
	return names
}

// DropCollection drops the named collection if it exists.
func (db *DB) DropCollection(name string) error {
	if !db.HasCollection(name) {
		return nil
	}
	c, err := db.Collection(name)
	if err != nil {
		return err
	}
	return c.Drop()
}

// Commit flushes written data to disk. Needed only with IsTesting, which
// turns off syncing on every write.
func (db *DB) Commit() error {
	if db.bdb == nil {
		return nil
	}
	return db.bdb.Sync()
}

func (db *DB) Bolt() *bbolt.DB {
	return db.bdb
}

func (db *DB) ReadCount() uint64  { return db.st.ReadCount.Load() }
func (db *DB) WriteCount() uint64 { return db.st.WriteCount.Load() }

// DescribeOpenTransactions lists the transactions that have not ended,
// oldest first, with the stack that started long-running ones.
func (db *DB) DescribeOpenTransactions() string {
	return db.txns.describe()
}

// Close closes every collection and then the store.
func (db *DB) Close() error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil
	}
	db.closed = true
	colls := make([]*Collection, 0, len(db.colls))
	for _, c := range db.colls {
		colls = append(colls, c)
	}
	db.mu.Unlock()

	for _, c := range colls {
		if err := c.Close(); err != nil {
			return err
		}
	}
	if err := db.st.Close(); err != nil {
		return fmt.Errorf("docdb: closing: %w", err)
	}
	return nil
}
