package audit

import (
	"encoding/binary"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"edugrants/core/events"
	"edugrants/core/types"
)

var bucketEvents = []byte("events")

// Entry is one journaled engine event. Sequences are assigned by the bucket
// counter and strictly increase; the journal is append-only.
type Entry struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
	RecordedAt time.Time         `json:"recordedAt"`
}

// Store persists the audit journal of engine events in BoltDB. It satisfies
// events.Emitter so it can sit directly behind the engine.
type Store struct {
	db     *bolt.DB
	logger *slog.Logger
}

// NewStore initialises (and migrates) the BoltDB-backed journal.
func NewStore(path string, options *bolt.Options) (*Store, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEvents)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// SetLogger configures the logger used to report journal write failures.
func (s *Store) SetLogger(logger *slog.Logger) { s.logger = logger }

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Append journals an event and returns the assigned sequence.
func (s *Store) Append(eventType string, attributes map[string]string) (uint64, error) {
	var seq uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketEvents)
		next, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		seq = next
		entry := Entry{
			Sequence:   next,
			Type:       eventType,
			Attributes: attributes,
			RecordedAt: time.Now().UTC(),
		}
		raw, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, next)
		return bucket.Put(key, raw)
	})
	if err != nil {
		return 0, err
	}
	return seq, nil
}

type eventCarrier interface {
	Event() *types.Event
}

// Emit implements events.Emitter. The journal is an audit sink, not a
// behavior-affecting collaborator: a write failure is logged and dropped so
// it cannot abort the transition that emitted the event.
func (s *Store) Emit(evt events.Event) {
	carrier, ok := evt.(eventCarrier)
	if !ok {
		return
	}
	event := carrier.Event()
	if event == nil {
		return
	}
	if _, err := s.Append(event.Type, event.Attributes); err != nil && s.logger != nil {
		s.logger.Error("audit journal append failed", slog.String("type", event.Type), slog.Any("error", err))
	}
}

// List returns journal entries in sequence order. An empty prefix matches
// every entry; limit <= 0 disables the cap.
func (s *Store) List(prefix string, limit int) ([]Entry, error) {
	var entries []Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(bucketEvents).Cursor()
		for key, value := cursor.First(); key != nil; key, value = cursor.Next() {
			var entry Entry
			if err := json.Unmarshal(value, &entry); err != nil {
				return err
			}
			if prefix != "" && !strings.HasPrefix(entry.Type, prefix) {
				continue
			}
			entries = append(entries, entry)
			if limit > 0 && len(entries) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
