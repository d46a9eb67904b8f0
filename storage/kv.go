package storage

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

// KV layers an RLP codec over a raw Database so callers can persist typed
// records without hand-rolling serialization.
type KV struct {
	db Database
}

// NewKV wraps the supplied database.
func NewKV(db Database) *KV {
	return &KV{db: db}
}

// KVPut RLP-encodes value and stores it under key.
func (kv *KV) KVPut(key []byte, value interface{}) error {
	if kv == nil || kv.db == nil {
		return fmt.Errorf("storage: kv not initialised")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("storage: encode %q: %w", key, err)
	}
	return kv.db.Put(key, encoded)
}

// KVGet decodes the record stored under key into out. The boolean reports
// whether the key was present.
func (kv *KV) KVGet(key []byte, out interface{}) (bool, error) {
	if kv == nil || kv.db == nil {
		return false, fmt.Errorf("storage: kv not initialised")
	}
	raw, err := kv.db.Get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("storage: decode %q: %w", key, err)
	}
	return true, nil
}

// KVHas reports whether key is present without decoding it.
func (kv *KV) KVHas(key []byte) (bool, error) {
	if kv == nil || kv.db == nil {
		return false, fmt.Errorf("storage: kv not initialised")
	}
	return kv.db.Has(key)
}
