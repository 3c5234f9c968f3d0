package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/mothershiphq/mothership/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketUsers          = []byte("users")
	bucketProjects       = []byte("projects")
	bucketRifts          = []byte("rifts")
	bucketCheckpoints    = []byte("checkpoints")
	bucketRiftCheckpoint = []byte("rift_checkpoint_index")
	bucketTransactions   = []byte("transactions")
)

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if necessary) a BoltDB database under
// dataDir and ensures all entity buckets exist.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "mothership.db")

	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketUsers,
			bucketProjects,
			bucketRifts,
			bucketCheckpoints,
			bucketRiftCheckpoint,
			bucketTransactions,
		}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// User operations

func (s *BoltStore) CreateUser(user *types.User) error {
	return s.put(bucketUsers, user.ID, user)
}

func (s *BoltStore) GetUser(id string) (*types.User, error) {
	var user types.User
	if err := s.get(bucketUsers, id, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *BoltStore) ListUsers() ([]*types.User, error) {
	var out []*types.User
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(k, v []byte) error {
			var user types.User
			if err := json.Unmarshal(v, &user); err != nil {
				return err
			}
			out = append(out, &user)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) DeleteUser(id string) error {
	return s.delete(bucketUsers, id)
}

// Project operations

func (s *BoltStore) CreateProject(project *types.Project) error {
	return s.put(bucketProjects, project.ID, project)
}

func (s *BoltStore) GetProject(id string) (*types.Project, error) {
	var project types.Project
	if err := s.get(bucketProjects, id, &project); err != nil {
		return nil, err
	}
	return &project, nil
}

func (s *BoltStore) GetProjectByName(name string) (*types.Project, error) {
	var found *types.Project
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProjects).ForEach(func(k, v []byte) error {
			var project types.Project
			if err := json.Unmarshal(v, &project); err != nil {
				return err
			}
			if project.Name == name {
				found = &project
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: project %s", ErrNotFound, name)
	}
	return found, nil
}

func (s *BoltStore) ListProjects() ([]*types.Project, error) {
	var out []*types.Project
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProjects).ForEach(func(k, v []byte) error {
			var project types.Project
			if err := json.Unmarshal(v, &project); err != nil {
				return err
			}
			out = append(out, &project)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) UpdateProject(project *types.Project) error {
	return s.put(bucketProjects, project.ID, project)
}

func (s *BoltStore) DeleteProject(id string) error {
	return s.delete(bucketProjects, id)
}

// ProjectCount reports the total number of projects, for metrics.
func (s *BoltStore) ProjectCount() (int, error) {
	n := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProjects).ForEach(func(k, v []byte) error {
			n++
			return nil
		})
	})
	return n, err
}

// RiftCounts reports how many rifts are active versus inactive, for
// metrics.
func (s *BoltStore) RiftCounts() (active, inactive int, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRifts).ForEach(func(k, v []byte) error {
			var rift types.Rift
			if err := json.Unmarshal(v, &rift); err != nil {
				return err
			}
			if rift.Active {
				active++
			} else {
				inactive++
			}
			return nil
		})
	})
	return active, inactive, err
}

// Rift operations

func (s *BoltStore) CreateRift(rift *types.Rift) error {
	return s.put(bucketRifts, rift.ID, rift)
}

func (s *BoltStore) GetRift(id string) (*types.Rift, error) {
	var rift types.Rift
	if err := s.get(bucketRifts, id, &rift); err != nil {
		return nil, err
	}
	return &rift, nil
}

func (s *BoltStore) GetRiftByName(projectID, name string) (*types.Rift, error) {
	var found *types.Rift
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRifts).ForEach(func(k, v []byte) error {
			var rift types.Rift
			if err := json.Unmarshal(v, &rift); err != nil {
				return err
			}
			if rift.ProjectID == projectID && rift.Name == name {
				found = &rift
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: rift %s/%s", ErrNotFound, projectID, name)
	}
	return found, nil
}

func (s *BoltStore) ListRiftsByProject(projectID string) ([]*types.Rift, error) {
	var out []*types.Rift
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRifts).ForEach(func(k, v []byte) error {
			var rift types.Rift
			if err := json.Unmarshal(v, &rift); err != nil {
				return err
			}
			if rift.ProjectID == projectID {
				out = append(out, &rift)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) UpdateRift(rift *types.Rift) error {
	return s.put(bucketRifts, rift.ID, rift)
}

func (s *BoltStore) DeleteRift(id string) error {
	return s.delete(bucketRifts, id)
}

// Checkpoint operations. Checkpoints are additionally indexed per rift
// so ListCheckpointsByRift doesn't need a full bucket scan.

func (s *BoltStore) CreateCheckpoint(cp *types.Checkpoint) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(cp)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketCheckpoints).Put([]byte(cp.ID), data); err != nil {
			return err
		}

		idxBucket := tx.Bucket(bucketRiftCheckpoint)
		var ids []string
		if raw := idxBucket.Get([]byte(cp.RiftID)); raw != nil {
			if err := json.Unmarshal(raw, &ids); err != nil {
				return err
			}
		}
		ids = append(ids, cp.ID)
		raw, err := json.Marshal(ids)
		if err != nil {
			return err
		}
		return idxBucket.Put([]byte(cp.RiftID), raw)
	})
}

func (s *BoltStore) GetCheckpoint(id string) (*types.Checkpoint, error) {
	var cp types.Checkpoint
	if err := s.get(bucketCheckpoints, id, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *BoltStore) ListCheckpointsByRift(riftID string) ([]*types.Checkpoint, error) {
	var out []*types.Checkpoint
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketRiftCheckpoint).Get([]byte(riftID))
		if raw == nil {
			return nil
		}
		var ids []string
		if err := json.Unmarshal(raw, &ids); err != nil {
			return err
		}
		cpBucket := tx.Bucket(bucketCheckpoints)
		for _, id := range ids {
			data := cpBucket.Get([]byte(id))
			if data == nil {
				continue // trimmed by retention cap; index not yet compacted
			}
			var cp types.Checkpoint
			if err := json.Unmarshal(data, &cp); err != nil {
				return err
			}
			out = append(out, &cp)
		}
		return nil
	})
	return out, err
}

func (s *BoltStore) DeleteCheckpoint(id string, riftID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketCheckpoints).Delete([]byte(id)); err != nil {
			return err
		}

		idxBucket := tx.Bucket(bucketRiftCheckpoint)
		raw := idxBucket.Get([]byte(riftID))
		if raw == nil {
			return nil
		}
		var ids []string
		if err := json.Unmarshal(raw, &ids); err != nil {
			return err
		}
		kept := ids[:0]
		for _, existing := range ids {
			if existing != id {
				kept = append(kept, existing)
			}
		}
		data, err := json.Marshal(kept)
		if err != nil {
			return err
		}
		return idxBucket.Put([]byte(riftID), data)
	})
}

// Transaction operations

func (s *BoltStore) CreateTransaction(txn *types.Transaction) error {
	return s.put(bucketTransactions, txn.ID, txn)
}

func (s *BoltStore) GetTransaction(id string) (*types.Transaction, error) {
	var txn types.Transaction
	if err := s.get(bucketTransactions, id, &txn); err != nil {
		return nil, err
	}
	return &txn, nil
}

func (s *BoltStore) ListTransactionsByRift(riftID string) ([]*types.Transaction, error) {
	var out []*types.Transaction
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTransactions).ForEach(func(k, v []byte) error {
			var txn types.Transaction
			if err := json.Unmarshal(v, &txn); err != nil {
				return err
			}
			if txn.RiftID == riftID {
				out = append(out, &txn)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) UpdateTransaction(txn *types.Transaction) error {
	return s.put(bucketTransactions, txn.ID, txn)
}

func (s *BoltStore) DeleteTransaction(id string) error {
	return s.delete(bucketTransactions, id)
}

// put and get and delete are small helpers shared by every bucket
// that is keyed directly by entity ID with no secondary index.

func (s *BoltStore) put(bucket []byte, id string, v interface{}) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return tx.Bucket(bucket).Put([]byte(id), data)
	})
}

func (s *BoltStore) get(bucket []byte, id string, v interface{}) error {
	return s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s %s", ErrNotFound, bucket, id)
		}
		return json.Unmarshal(data, v)
	})
}

func (s *BoltStore) delete(bucket []byte, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete([]byte(id))
	})
}
