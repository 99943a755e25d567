package storage

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/syndtr/goleveldb/leveldb"
)

// Database is a generic interface for a key-value store. This allows the
// state store to use any database backend (in-memory or persistent) while
// also exposing a shared triedb.Database handle so the Merkle-Patricia trie
// layer (storage/trie) and any raw key/value access operate on the same
// backing storage.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	// TrieDB returns the go-ethereum trie database backed by this store,
	// shared across every Trie opened against it.
	TrieDB() *triedb.Database
	Close() // A way to gracefully shut down the database connection.
}

// --- In-Memory DB (for testing) ---

type MemDB struct {
	mu     sync.RWMutex
	data   map[string][]byte
	ethdb  ethdb.Database
	trieDB *triedb.Database
}

func NewMemDB() *MemDB {
	ethDB := rawdb.NewMemoryDatabase()
	return &MemDB{
		data:   make(map[string][]byte),
		ethdb:  ethDB,
		trieDB: triedb.NewDatabase(ethDB, nil),
	}
}

func (db *MemDB) Put(key []byte, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data[string(key)] = value
	return nil
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	value, ok := db.data[string(key)]
	if !ok {
		return nil, fmt.Errorf("key not found")
	}
	return value, nil
}

// TrieDB returns the shared trie database backing this store's state trie.
func (db *MemDB) TrieDB() *triedb.Database {
	return db.trieDB
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() {
	db.trieDB.Close()
	db.ethdb.Close()
}

// --- Persistent DB (for mainnet) ---

// LevelDB is a persistent key-value store using LevelDB, also exposing a
// triedb.Database view of the same underlying files so the world-state trie
// and raw auxiliary data (receipts, parameter store entries) live side by
// side on disk.
type LevelDB struct {
	db     *leveldb.DB
	ethdb  ethdb.Database
	trieDB *triedb.Database
}

// NewLevelDB creates or opens a LevelDB database at the specified path. The
// world-state trie is kept in its own "trie" subdirectory so go-ethereum's
// rawdb/triedb stack and the raw auxiliary key/value store (receipts,
// parameter registry entries, pause flags) never contend for the same
// on-disk LOCK file.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(filepath.Join(path, "aux"), nil)
	if err != nil {
		return nil, err
	}
	ethDB, err := rawdb.NewLevelDBDatabase(filepath.Join(path, "trie"), 512, 128, "dytallix/", false)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: open trie-backing leveldb: %w", err)
	}
	return &LevelDB{
		db:     db,
		ethdb:  ethDB,
		trieDB: triedb.NewDatabase(ethDB, nil),
	}, nil
}

// Put inserts or updates a key-value pair.
func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return ldb.db.Put(key, value, nil)
}

// Get retrieves a value for a given key.
func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	return ldb.db.Get(key, nil)
}

// TrieDB returns the shared trie database backing this store's state trie.
func (ldb *LevelDB) TrieDB() *triedb.Database {
	return ldb.trieDB
}

// Close closes the database connection.
func (ldb *LevelDB) Close() {
	ldb.trieDB.Close()
	ldb.ethdb.Close()
	ldb.db.Close()
}
