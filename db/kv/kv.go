// Package kv implements the coordinator Repository on top of an embedded
// bolt database. Every entity lives in its own bucket with a JSON-encoded
// value; unique keys get a small index bucket pointing back at the primary
// id. Bolt serializes write transactions, which is what makes the
// claim-one-queued-job and report-with-items operations atomic.
package kv

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	prombolt "github.com/prysmaticlabs/prombbolt"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

var log = logrus.WithField("prefix", "kv")

const (
	// CoordinatorDbDirName is the folder the database lives in under the
	// configured data directory.
	CoordinatorDbDirName = "coordinatordata"
	databaseFileName     = "coordinator.db"
)

var (
	nodesBucket        = []byte("storage-nodes")
	nodePeerIndex      = []byte("storage-nodes-peer-index")
	filesBucket        = []byte("files")
	fileCIDIndex       = []byte("files-cid-index")
	validatorsBucket   = []byte("validators")
	challengesBucket   = []byte("poa-challenges")
	challengeTimeIndex = []byte("poa-challenges-time-index")
	assignmentsBucket  = []byte("storage-assignments")
	jobsBucket         = []byte("encoding-jobs")
	jobPermlinkIndex   = []byte("encoding-jobs-permlink-index")
	jobQueueIndex      = []byte("encoding-jobs-queue-index")
	encodersBucket     = []byte("encoder-nodes")
	reportsBucket      = []byte("payout-reports")
	reportItemsBucket  = []byte("payout-report-items")
	eventsBucket       = []byte("settlement-events")
)

var allBuckets = [][]byte{
	nodesBucket, nodePeerIndex,
	filesBucket, fileCIDIndex,
	validatorsBucket,
	challengesBucket, challengeTimeIndex,
	assignmentsBucket,
	jobsBucket, jobPermlinkIndex, jobQueueIndex,
	encodersBucket,
	reportsBucket, reportItemsBucket,
	eventsBucket,
}

// Store is the bolt-backed Repository implementation.
type Store struct {
	db           *bolt.DB
	databasePath string
}

// NewKVStore opens (creating if necessary) the coordinator database under
// dirPath and registers it with the prometheus default registry.
func NewKVStore(dirPath string) (*Store, error) {
	hasDir, err := dirExists(dirPath)
	if err != nil {
		return nil, err
	}
	if !hasDir {
		if err := os.MkdirAll(dirPath, 0700); err != nil {
			return nil, errors.Wrapf(err, "could not create directory %s", dirPath)
		}
	}
	datafile := filepath.Join(dirPath, databaseFileName)
	boltDB, err := bolt.Open(datafile, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, errors.New("cannot obtain database lock, database may be in use by another process")
		}
		return nil, errors.Wrap(err, "could not open bolt database")
	}
	store := &Store{db: boltDB, databasePath: dirPath}
	if err := store.db.Update(func(tx *bolt.Tx) error {
		for _, bkt := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(bkt); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "could not create buckets")
	}
	err = prometheus.Register(prombolt.New("coordinatorDB", boltDB))
	if err != nil {
		log.WithError(err).Debug("Could not register database prometheus collector")
	}
	return store, nil
}

// Close releases the underlying bolt database.
func (s *Store) Close() error {
	prometheus.Unregister(prombolt.New("coordinatorDB", s.db))
	return s.db.Close()
}

// DatabasePath is the directory the database file lives in.
func (s *Store) DatabasePath() string {
	return s.databasePath
}

// ClearDB removes the database file from disk. The store must not be
// used afterwards.
func (s *Store) ClearDB() error {
	if _, err := os.Stat(filepath.Join(s.databasePath, databaseFileName)); os.IsNotExist(err) {
		return nil
	}
	prometheus.Unregister(prombolt.New("coordinatorDB", s.db))
	if err := s.db.Close(); err != nil {
		return errors.Wrap(err, "failed to close db prior to clearing")
	}
	return os.Remove(filepath.Join(s.databasePath, databaseFileName))
}

func (s *Store) view(ctx context.Context, fn func(tx *bolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(fn)
}

func (s *Store) update(ctx context.Context, fn func(tx *bolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(fn)
}

func putJSON(bkt *bolt.Bucket, key []byte, v interface{}) error {
	enc, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "could not encode value")
	}
	return bkt.Put(key, enc)
}

func getJSON(bkt *bolt.Bucket, key []byte, v interface{}) (bool, error) {
	enc := bkt.Get(key)
	if enc == nil {
		return false, nil
	}
	if err := json.Unmarshal(enc, v); err != nil {
		return false, errors.Wrap(err, "could not decode value")
	}
	return true, nil
}

// timeKey builds a lexicographically sortable key from a timestamp plus a
// distinguishing suffix.
func timeKey(t time.Time, suffix string) []byte {
	key := make([]byte, 8, 8+len(suffix))
	binary.BigEndian.PutUint64(key, uint64(t.UnixNano()))
	return append(key, suffix...)
}

func dirExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}
