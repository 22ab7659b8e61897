package bplus

import (
	"bytes"

	mappedfile "PagedKV/storage_engine/mapped_file"
)

// Search returns the value of the first record stored under key.
func (t *BPlusTree) Search(key []byte) ([]byte, bool, error) {
	if err := t.checkRecord(key, nil); err != nil {
		return nil, false, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, false, mappedfile.ErrClosed
	}

	if v, ok := t.lookup.get(key); ok {
		return bytes.Clone(v), true, nil
	}

	it := &Iterator{tree: t}
	if err := it.seek(key); err != nil {
		return nil, false, err
	}
	if !it.Valid() || !bytes.Equal(it.Key(), key) {
		return nil, false, nil
	}
	value := it.Value()
	t.lookup.put(key, value)
	return value, true, nil
}
