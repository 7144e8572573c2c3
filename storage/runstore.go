// Package storage persists reconciliation run history.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/btree"
	"go.etcd.io/bbolt"

	"github.com/yairfalse/suoja/executor"
	"github.com/yairfalse/suoja/types"
)

// Bucket names in bbolt
var (
	bucketRuns       = []byte("runs")
	bucketEnrollment = []byte("enrollment")
	bucketMeta       = []byte("meta")
)

var keyRevision = []byte("revision")

// RunRecord is one persisted reconciliation run
type RunRecord struct {
	RunID      string                     `json:"run_id"`
	ClusterID  string                     `json:"cluster_id"`
	Mode       string                     `json:"mode"`
	StartedAt  time.Time                  `json:"started_at"`
	Evaluated  int                        `json:"evaluated"`
	InScope    int                        `json:"in_scope"`
	NoopCount  int                        `json:"noop_count"`
	DryRun     bool                       `json:"dry_run,omitempty"`
	Operations []types.ReconcileOperation `json:"operations,omitempty"`
	Report     *executor.Report           `json:"report,omitempty"`
}

// appliedStates maps each applied resource to its resulting enrollment
func (r RunRecord) appliedStates() map[string]bool {
	if r.Report == nil || r.DryRun {
		return nil
	}
	kinds := make(map[string]types.OpKind, len(r.Operations))
	for _, op := range r.Operations {
		kinds[op.ResourceID] = op.Kind
	}
	states := make(map[string]bool, len(r.Report.Applied))
	for _, resourceID := range r.Report.Applied {
		states[resourceID] = kinds[resourceID] == types.OpEnroll
	}
	return states
}

// enrollmentEntry tracks last-known enrollment in the in-memory index
type enrollmentEntry struct {
	ResourceID string
	Enrolled   bool
	Revision   int64
}

// RunStore appends run records under a monotonic revision and keeps an
// ordered in-memory index of last-known enrollment per resource
type RunStore struct {
	mu sync.RWMutex

	index      *btree.BTreeG[*enrollmentEntry]
	db         *bbolt.DB
	currentRev int64
}

// Open creates or opens a run store in the given directory
func Open(dir string) (*RunStore, error) {
	dbPath := filepath.Join(dir, "suoja.db")

	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketRuns, bucketEnrollment, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	store := &RunStore{
		index: btree.NewG[*enrollmentEntry](32, func(a, b *enrollmentEntry) bool {
			return a.ResourceID < b.ResourceID
		}),
		db: db,
	}

	if err := store.loadRevision(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.rebuildIndex(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the store
func (s *RunStore) Close() error {
	return s.db.Close()
}

// SaveRun persists a run record and folds its applied operations into
// the last-known enrollment index
func (s *RunStore) SaveRun(record RunRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.currentRev++
	rev := s.currentRev

	data, err := json.Marshal(record)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal run record: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketRuns).Put(revKey(rev), data); err != nil {
			return err
		}
		if err := s.storeEnrollmentChanges(tx, record, rev); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(keyRevision, revKey(rev))
	})
	if err != nil {
		s.currentRev--
		return 0, fmt.Errorf("failed to save run: %w", err)
	}

	s.indexEnrollmentChanges(record, rev)
	return rev, nil
}

func (s *RunStore) storeEnrollmentChanges(tx *bbolt.Tx, record RunRecord, rev int64) error {
	bucket := tx.Bucket(bucketEnrollment)
	for resourceID, enrolled := range record.appliedStates() {
		entry := enrollmentEntry{
			ResourceID: resourceID,
			Enrolled:   enrolled,
			Revision:   rev,
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		if err := bucket.Put([]byte(resourceID), data); err != nil {
			return err
		}
	}
	return nil
}

func (s *RunStore) indexEnrollmentChanges(record RunRecord, rev int64) {
	for resourceID, enrolled := range record.appliedStates() {
		s.index.ReplaceOrInsert(&enrollmentEntry{
			ResourceID: resourceID,
			Enrolled:   enrolled,
			Revision:   rev,
		})
	}
}

// LastRuns returns up to n most recent run records, newest first
func (s *RunStore) LastRuns(n int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []RunRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket(bucketRuns).Cursor()
		for k, v := cursor.Last(); k != nil && len(records) < n; k, v = cursor.Prev() {
			var record RunRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("corrupt run record at rev %d: %w", revOf(k), err)
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// LastKnownEnrollment reports the most recent enrollment recorded for a
// resource, and whether anything is known at all
func (s *RunStore) LastKnownEnrollment(resourceID string) (bool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.index.Get(&enrollmentEntry{ResourceID: resourceID})
	if !ok {
		return false, false
	}
	return entry.Enrolled, true
}

// KnownResources walks the enrollment index in resource ID order
func (s *RunStore) KnownResources() []types.EnrollmentState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	states := make([]types.EnrollmentState, 0, s.index.Len())
	s.index.Ascend(func(entry *enrollmentEntry) bool {
		states = append(states, types.EnrollmentState{
			ResourceID: entry.ResourceID,
			Enrolled:   entry.Enrolled,
		})
		return true
	})
	return states
}

// CurrentRevision returns the latest persisted revision
func (s *RunStore) CurrentRevision() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentRev
}

func (s *RunStore) loadRevision() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(keyRevision)
		if data != nil {
			s.currentRev = revOf(data)
		}
		return nil
	})
}

func (s *RunStore) rebuildIndex() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEnrollment).ForEach(func(k, v []byte) error {
			var entry enrollmentEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("corrupt enrollment entry %s: %w", k, err)
			}
			s.index.ReplaceOrInsert(&entry)
			return nil
		})
	})
}

func revKey(rev int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(rev)) // #nosec G115 -- revisions start at 1
	return key
}

func revOf(key []byte) int64 {
	return int64(binary.BigEndian.Uint64(key)) // #nosec G115
}
