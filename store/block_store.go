package store

import (
	"bytes"

	"dagbft/types"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/log"
	tmdb "github.com/tendermint/tm-db"
	leveldb "github.com/tendermint/tm-db/goleveldb"
	"github.com/tendermint/tm-db/memdb"
	"github.com/tendermint/tm-db/metadb"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store persists accepted blocks so the core can recover its DAG after a
// restart.
type Store interface {
	// WriteBlocks atomically writes blocks.
	WriteBlocks(blocks []*types.VerifiedBlock) error

	// ReadBlocks returns the blocks in refs order, nil for unknown refs.
	ReadBlocks(refs []types.BlockRef) ([]*types.VerifiedBlock, error)

	ContainsBlocks(refs []types.BlockRef) ([]bool, error)

	// ScanBlocks returns every stored block with round >= from, in
	// (round, author, digest) order.
	ScanBlocks(from types.Round) ([]*types.VerifiedBlock, error)

	// LastRound returns the highest stored round, GenesisRound when empty.
	LastRound() (types.Round, error)

	Close() error
}

// key layout: b/{round(8 BE)}{author(4 BE)}{digest}
var (
	blockPrefix    = []byte("b/")
	blockPrefixEnd = []byte("b0") // '/'+1
)

func blockKey(ref types.BlockRef) []byte {
	buffer := new(bytes.Buffer)
	buffer.Write(blockPrefix)
	buffer.Write(ref.Bytes())
	return buffer.Bytes()
}

func roundKey(round types.Round) []byte {
	return append(append([]byte{}, blockPrefix...), round.Bytes()...)
}

// Backends opened without going through the metadb registry.
const (
	GoLevelDBBackend = "goleveldb"
	MemDBBackend     = "memdb"
)

// NewBlockStore opens (or creates) the database name under dir with backend.
func NewBlockStore(name, backend, dir string, logger log.Logger) (*BlockStore, error) {
	var (
		db  tmdb.DB
		err error
	)
	switch backend {
	case GoLevelDBBackend:
		db, err = leveldb.NewDB(name, dir)
	case MemDBBackend:
		db = memdb.NewDB()
	default:
		// cleveldb, rocksdb, ... need their build tags
		db, err = metadb.NewDB(name, metadb.BackendType(backend), dir)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "open %s block store in %s", backend, dir)
	}
	return NewBlockStoreWithDB(db, logger), nil
}

// NewMemBlockStore returns a store backed by an in-memory database.
func NewMemBlockStore() *BlockStore {
	return NewBlockStoreWithDB(memdb.NewDB(), log.NewNopLogger())
}

func NewBlockStoreWithDB(db tmdb.DB, logger log.Logger) *BlockStore {
	return &BlockStore{db: db, logger: logger}
}

// BlockStore implements Store on top of tm-db.
type BlockStore struct {
	db tmdb.DB

	logger log.Logger
}

var _ Store = (*BlockStore)(nil)

func (bs *BlockStore) WriteBlocks(blocks []*types.VerifiedBlock) error {
	if len(blocks) == 0 {
		return nil
	}
	batch := bs.db.NewBatch()
	defer batch.Close()

	for _, b := range blocks {
		bz, err := json.Marshal(b.Block)
		if err != nil {
			return errors.Wrapf(err, "encode block %v", b.Reference())
		}
		if err := batch.Set(blockKey(b.Reference()), bz); err != nil {
			return errors.Wrapf(err, "stage block %v", b.Reference())
		}
	}
	if err := batch.WriteSync(); err != nil {
		return errors.Wrap(err, "write blocks")
	}
	bs.logger.Debug("wrote blocks", "count", len(blocks))
	return nil
}

func (bs *BlockStore) ReadBlocks(refs []types.BlockRef) ([]*types.VerifiedBlock, error) {
	blocks := make([]*types.VerifiedBlock, len(refs))
	for i, ref := range refs {
		bz, err := bs.db.Get(blockKey(ref))
		if err != nil {
			return nil, errors.Wrapf(err, "read block %v", ref)
		}
		if bz == nil {
			continue
		}
		b, err := decodeBlock(bz)
		if err != nil {
			return nil, err
		}
		blocks[i] = b
	}
	return blocks, nil
}

func (bs *BlockStore) ContainsBlocks(refs []types.BlockRef) ([]bool, error) {
	found := make([]bool, len(refs))
	for i, ref := range refs {
		ok, err := bs.db.Has(blockKey(ref))
		if err != nil {
			return nil, errors.Wrapf(err, "lookup block %v", ref)
		}
		found[i] = ok
	}
	return found, nil
}

func (bs *BlockStore) ScanBlocks(from types.Round) ([]*types.VerifiedBlock, error) {
	it, err := bs.db.Iterator(roundKey(from), blockPrefixEnd)
	if err != nil {
		return nil, errors.Wrap(err, "scan blocks")
	}
	defer it.Close()

	var blocks []*types.VerifiedBlock
	for ; it.Valid(); it.Next() {
		b, err := decodeBlock(it.Value())
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	if err := it.Error(); err != nil {
		return nil, errors.Wrap(err, "scan blocks")
	}
	return blocks, nil
}

func (bs *BlockStore) LastRound() (types.Round, error) {
	it, err := bs.db.ReverseIterator(blockPrefix, blockPrefixEnd)
	if err != nil {
		return types.GenesisRound, errors.Wrap(err, "last round")
	}
	defer it.Close()

	if !it.Valid() {
		return types.GenesisRound, nil
	}
	b, err := decodeBlock(it.Value())
	if err != nil {
		return types.GenesisRound, err
	}
	return b.Round, nil
}

func (bs *BlockStore) Close() error {
	return bs.db.Close()
}

// GetDB exposes the underlying database, used by the inspect command.
func (bs *BlockStore) GetDB() tmdb.DB {
	return bs.db
}

func decodeBlock(bz []byte) (*types.VerifiedBlock, error) {
	b := new(types.Block)
	if err := json.Unmarshal(bz, b); err != nil {
		return nil, errors.Wrap(err, "decode block")
	}
	return types.NewVerifiedBlock(b), nil
}
