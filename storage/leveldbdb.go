package storage

import (
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/chainkit/worldstate/trie"
	"github.com/chainkit/worldstate/types"
)

// LevelDB is a trie.Db backed by github.com/syndtr/goleveldb, for
// durable storage across process restarts. Keys are the raw 32-byte
// node hash; values are the node's encoded bytes, exactly as handed to
// a WorldStateChanges.Inserts map.
type LevelDB struct {
	db *leveldb.DB
}

// OpenLevelDB opens (creating if absent) a LevelDB store at path.
func OpenLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{})
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// Get implements trie.Db.
func (l *LevelDB) Get(hash types.NodeHash) ([]byte, bool, error) {
	data, err := l.db.Get(hash.Bytes(), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// Apply writes a WorldStateChanges-shaped node delta as one atomic
// batch.
func (l *LevelDB) Apply(inserts map[types.Hash][]byte, deletes map[types.Hash]struct{}) error {
	batch := new(leveldb.Batch)
	for h, b := range inserts {
		batch.Put(h.Bytes(), b)
	}
	for h := range deletes {
		batch.Delete(h.Bytes())
	}
	return l.db.Write(batch, nil)
}

// Close releases the underlying LevelDB handle.
func (l *LevelDB) Close() error {
	return l.db.Close()
}

var _ trie.Db = (*LevelDB)(nil)
