package journal

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var bucketEntries = []byte("entries")

// Entry is one recorded command invocation.
type Entry struct {
	ID    string    `json:"id"`
	Time  time.Time `json:"time"`
	Op    string    `json:"op"`
	Args  []string  `json:"args,omitempty"`
	OK    bool      `json:"ok"`
	Error string    `json:"error,omitempty"`
}

// Journal is an append-only record of operations backed by BoltDB.
type Journal struct {
	db *bolt.DB
}

// Open opens or creates the journal database at path. The open timeout is
// short so a concurrent invocation holding the file lock fails the caller
// fast instead of blocking the command.
func Open(path string) (*Journal, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketEntries); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketEntries, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Journal{db: db}, nil
}

// Close closes the database
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends one entry. A missing ID or timestamp is filled in.
func (j *Journal) Record(entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Time.IsZero() {
		entry.Time = time.Now().UTC()
	}

	return j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)

		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

// Recent returns the last n entries in chronological order. n <= 0 returns
// everything.
func (j *Journal) Recent(n int) ([]Entry, error) {
	var entries []Entry
	err := j.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			entries = append(entries, e)
			if n > 0 && len(entries) >= n {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Walked newest to oldest; flip back.
	for i, k := 0, len(entries)-1; i < k; i, k = i+1, k-1 {
		entries[i], entries[k] = entries[k], entries[i]
	}
	return entries, nil
}
