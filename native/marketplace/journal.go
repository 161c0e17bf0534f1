package marketplace

import (
	"errors"

	"swapmarket/storage"
)

// kv is the slice of storage.Database the registry reads and writes through.
type kv interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
}

// journal stages writes over a database so an operation either commits all of
// its state changes in one batch or none of them.
type journal struct {
	db      storage.Database
	writes  map[string][]byte
	deletes map[string]struct{}
	order   []string
}

func newJournal(db storage.Database) *journal {
	return &journal{
		db:      db,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

func (j *journal) touch(key string) {
	if _, ok := j.writes[key]; ok {
		return
	}
	if _, ok := j.deletes[key]; ok {
		return
	}
	j.order = append(j.order, key)
}

func (j *journal) Get(key []byte) ([]byte, error) {
	k := string(key)
	if v, ok := j.writes[k]; ok {
		return append([]byte(nil), v...), nil
	}
	if _, ok := j.deletes[k]; ok {
		return nil, storage.ErrNotFound
	}
	return j.db.Get(key)
}

func (j *journal) Put(key, value []byte) error {
	k := string(key)
	j.touch(k)
	delete(j.deletes, k)
	j.writes[k] = append([]byte(nil), value...)
	return nil
}

func (j *journal) Delete(key []byte) error {
	k := string(key)
	j.touch(k)
	delete(j.writes, k)
	j.deletes[k] = struct{}{}
	return nil
}

func (j *journal) dirty() bool { return len(j.order) > 0 }

// commit flushes the staged writes in first-touch order.
func (j *journal) commit() error {
	if j == nil || j.db == nil {
		return errNilState
	}
	if !j.dirty() {
		return nil
	}
	batch := j.db.NewBatch()
	for _, k := range j.order {
		if v, ok := j.writes[k]; ok {
			batch.Put([]byte(k), v)
			continue
		}
		batch.Delete([]byte(k))
	}
	if err := batch.Write(); err != nil {
		return err
	}
	j.writes = make(map[string][]byte)
	j.deletes = make(map[string]struct{})
	j.order = nil
	return nil
}

func isNotFound(err error) bool { return errors.Is(err, storage.ErrNotFound) }
