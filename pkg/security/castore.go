package security

import (
	"errors"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var (
	caBucket = []byte("ca")
	caKey    = []byte("root")
)

// BoltCAStore persists the cluster root CA in a single-bucket bbolt file,
// separate from pkg/storage's entity repositories since CA material is
// cluster-wide singleton state, not a domain entity.
type BoltCAStore struct {
	db *bolt.DB
}

// NewBoltCAStore opens (creating if necessary) a bbolt file under dir for
// CA persistence.
func NewBoltCAStore(dir string) (*BoltCAStore, error) {
	db, err := bolt.Open(filepath.Join(dir, "ca.db"), 0600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(caBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltCAStore{db: db}, nil
}

func (s *BoltCAStore) Close() error { return s.db.Close() }

// GetCA returns the previously-saved CA data, or an error if none exists.
func (s *BoltCAStore) GetCA() ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(caBucket).Get(caKey)
		if v == nil {
			return errors.New("no CA data stored")
		}
		data = append([]byte(nil), v...)
		return nil
	})
	return data, err
}

func (s *BoltCAStore) SaveCA(data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(caBucket).Put(caKey, data)
	})
}
