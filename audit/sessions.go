package audit

import (
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketSessions = []byte("audit_sessions")

// sessionStore is a small bbolt-backed registry, keyed by audit log
// path, of each log's current session id, sequence number, and last
// checksum. It is grounded on the teacher's node/store/db.go
// bucket-per-kind layout, repurposed here to let Init resume a
// session across a process restart without rescanning the
// pipe-delimited text log (SPEC_FULL.md §B, bbolt).
type sessionStore struct {
	db *bolt.DB
}

func openSessionStore(path string) (*sessionStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open session store %q: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSessions)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create session bucket: %w", err)
	}
	return &sessionStore{db: db}, nil
}

// record upserts the session state recorded against logPath.
func (s *sessionStore) record(logPath string, rec sessionRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		return b.Put([]byte(logPath), encodeSessionValue(rec))
	})
}

// lookup returns the session last recorded against logPath, if any —
// the resume path Init uses to continue a session's sequence counter
// and checksum chain after a crash.
func (s *sessionStore) lookup(logPath string) (sessionRecord, bool, error) {
	var rec sessionRecord
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		if v := b.Get([]byte(logPath)); v != nil {
			rec = decodeSessionValue(v)
			found = true
		}
		return nil
	})
	return rec, found, err
}

func (s *sessionStore) close() error {
	return s.db.Close()
}

// sessionRecord is the resumable state of one audit session: the
// session id in force, the last sequence number written, and the
// checksum the next entry's hash chain must build on.
type sessionRecord struct {
	sessionID string
	seq       uint32
	checksum  uint32
}

func encodeSessionValue(r sessionRecord) []byte {
	buf := make([]byte, 8+len(r.sessionID))
	binary.BigEndian.PutUint32(buf[0:4], r.seq)
	binary.BigEndian.PutUint32(buf[4:8], r.checksum)
	copy(buf[8:], r.sessionID)
	return buf
}

func decodeSessionValue(v []byte) sessionRecord {
	if len(v) < 8 {
		return sessionRecord{}
	}
	return sessionRecord{
		seq:       binary.BigEndian.Uint32(v[0:4]),
		checksum:  binary.BigEndian.Uint32(v[4:8]),
		sessionID: string(v[8:]),
	}
}
