// Package session owns the current authenticated identity and its
// durable copy. The store does no network I/O; the authentication
// handshake writes it and data components observe it.
package session

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.etcd.io/bbolt"

	"spendbook/internal/log"
)

const (
	bucketName   = "session"
	keyLoginFlag = "isLoggedIn"
	keyIdentity  = "sessionUser"
)

// Listener observes identity changes. ok is false when the identity was
// cleared.
type Listener func(id Identity, ok bool)

// Store holds the current Identity and persists it across restarts in a
// bbolt key-value database. Set and Clear notify subscribers
// synchronously, in subscription order.
type Store struct {
	db     *bbolt.DB
	logger *log.Logger

	mu      sync.Mutex
	current Identity
	present bool
	subs    map[int]Listener
	nextSub int
}

// Open opens (creating if needed) the session database at path.
func Open(path string, logger *log.Logger) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening session db: %w", err)
	}
	return NewStore(db, logger), nil
}

// NewStore wraps an already-open bbolt database.
func NewStore(db *bbolt.DB, logger *log.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.WithComponent(log.ComponentSession),
		subs:   map[int]Listener{},
	}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Restore loads the durable logged-in flag and serialized identity. The
// identity becomes current only when the flag is set and the stored
// record is complete; anything else leaves the store unauthenticated.
// Restore does not notify subscribers: it runs before any are attached.
func (s *Store) Restore() error {
	var (
		flagged bool
		raw     []byte
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return nil
		}
		flagged = string(b.Get([]byte(keyLoginFlag))) == "true"
		if data := b.Get([]byte(keyIdentity)); data != nil {
			raw = append([]byte(nil), data...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}

	if !flagged || raw == nil {
		return nil
	}

	var id Identity
	if err := json.Unmarshal(raw, &id); err != nil {
		s.logger.Warn("stored session unreadable, starting unauthenticated",
			log.FieldOperation, log.OpRestore, log.FieldError, err)
		return nil
	}
	if !id.Complete() {
		s.logger.Warn("stored session incomplete, starting unauthenticated",
			log.FieldOperation, log.OpRestore)
		return nil
	}

	s.mu.Lock()
	s.current = id
	s.present = true
	s.mu.Unlock()

	s.logger.Info("session restored",
		log.FieldOperation, log.OpRestore, log.FieldEmail, id.Email)
	return nil
}

// Set replaces the current Identity and persists it durably.
func (s *Store) Set(id Identity) error {
	if !id.Complete() {
		return fmt.Errorf("refusing to store incomplete identity")
	}

	data, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("serialize identity: %w", err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		if err != nil {
			return err
		}
		if err := b.Put([]byte(keyLoginFlag), []byte("true")); err != nil {
			return err
		}
		return b.Put([]byte(keyIdentity), data)
	})
	if err != nil {
		return fmt.Errorf("persist session: %w", err)
	}

	s.mu.Lock()
	s.current = id
	s.present = true
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(id, true)
	}
	return nil
}

// Clear removes the current Identity and erases the durable record.
func (s *Store) Clear() error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return nil
		}
		if err := b.Delete([]byte(keyLoginFlag)); err != nil {
			return err
		}
		return b.Delete([]byte(keyIdentity))
	})
	if err != nil {
		return fmt.Errorf("erase session: %w", err)
	}

	s.mu.Lock()
	s.current = Identity{}
	s.present = false
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(Identity{}, false)
	}
	return nil
}

// Current returns the active Identity, if any.
func (s *Store) Current() (Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.present
}

// Subscribe registers a listener for identity changes and returns a
// cancel function. Listeners run synchronously on the goroutine calling
// Set or Clear.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	idx := s.nextSub
	s.nextSub++
	s.subs[idx] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, idx)
		s.mu.Unlock()
	}
}

// snapshotListeners copies subscribers in registration order; callers
// must hold mu.
func (s *Store) snapshotListeners() []Listener {
	out := make([]Listener, 0, len(s.subs))
	for i := 0; i < s.nextSub; i++ {
		if fn, ok := s.subs[i]; ok {
			out = append(out, fn)
		}
	}
	return out
}
