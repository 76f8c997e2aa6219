package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

var sessionsBucket = []byte("sessions")

// IndexEntry is one completed session in the recordings index.
type IndexEntry struct {
	MeetingID    string    `json:"meetingId"`
	Title        string    `json:"title"`
	StartTime    time.Time `json:"startTime"`
	EndTime      time.Time `json:"endTime"`
	SegmentCount int       `json:"segmentCount"`
	ArtifactPath string    `json:"artifactPath"`
	WavPath      string    `json:"wavPath,omitempty"`
}

// Index records completed sessions in a small bolt database next to the
// recordings so past meetings can be listed without scanning the
// directory.
type Index struct {
	db *bolt.DB
}

// OpenIndex opens (or creates) the index database at path.
func OpenIndex(path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening session index: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing session index: %w", err)
	}
	return &Index{db: db}, nil
}

func (ix *Index) Close() error { return ix.db.Close() }

// Record stores one completed session, keyed by meeting id and start
// time so re-used meeting ids don't clobber earlier sessions.
func (ix *Index) Record(entry IndexEntry) error {
	key := fmt.Sprintf("%s@%s", entry.MeetingID, entry.StartTime.Format(time.RFC3339))
	value, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return ix.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).Put([]byte(key), value)
	})
}

// List returns all recorded sessions, newest first. Malformed entries
// are skipped instead of failing the whole listing.
func (ix *Index) List() ([]IndexEntry, error) {
	var out []IndexEntry
	err := ix.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).ForEach(func(k, v []byte) error {
			var entry IndexEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return nil
			}
			out = append(out, entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, nil
}
