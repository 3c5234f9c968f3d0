package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	bolt "go.etcd.io/bbolt"

	"github.com/mothershiphq/mothership/pkg/types"
)

var (
	dataDir    = flag.String("data-dir", "/var/lib/mothership", "mothership server data directory")
	dryRun     = flag.Bool("dry-run", false, "show what would change without writing anything")
	backupPath = flag.String("backup", "", "path to back up the database to before migrating (default: <data-dir>/mothership.db.backup)")
)

var (
	bucketCheckpoints    = []byte("checkpoints")
	bucketRiftCheckpoint = []byte("rift_checkpoint_index")
)

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Mothership Database Migration Tool - reindex-checkpoints")
	log.Println("==========================================================")

	dbPath := filepath.Join(*dataDir, "mothership.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		log.Fatalf("Database not found at %s", dbPath)
	}

	log.Printf("Database: %s", dbPath)
	log.Printf("Dry run: %v", *dryRun)

	if !*dryRun {
		backupFile := *backupPath
		if backupFile == "" {
			backupFile = dbPath + ".backup"
		}
		log.Printf("Creating backup: %s", backupFile)
		if err := copyFile(dbPath, backupFile); err != nil {
			log.Fatalf("Failed to create backup: %v", err)
		}
		log.Println("backup created")
	}

	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := reindexCheckpoints(db, *dryRun); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	if *dryRun {
		log.Println("\nDry run completed. No changes made.")
	} else {
		log.Println("\nReindex completed.")
	}
}

// reindexCheckpoints rebuilds rift_checkpoint_index from the
// checkpoints bucket itself. The index is an operational cache, not
// the source of truth, so it can always be regenerated if it drifts
// (a bad write during a crash, or a manual edit of the checkpoints
// bucket) from what checkpoints actually say their rift_id is.
func reindexCheckpoints(db *bolt.DB, dryRun bool) error {
	type entry struct {
		id        string
		riftID    string
		createdAt int64
	}

	var entries []entry
	err := db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketCheckpoints)
		if bucket == nil {
			return fmt.Errorf("checkpoints bucket not found")
		}
		return bucket.ForEach(func(k, v []byte) error {
			var cp types.Checkpoint
			if err := json.Unmarshal(v, &cp); err != nil {
				log.Printf("skipping checkpoint %s: %v", k, err)
				return nil
			}
			entries = append(entries, entry{id: cp.ID, riftID: cp.RiftID, createdAt: cp.CreatedAt.UnixNano()})
			return nil
		})
	})
	if err != nil {
		return err
	}

	log.Printf("found %d checkpoints", len(entries))

	byRift := make(map[string][]entry)
	for _, e := range entries {
		byRift[e.riftID] = append(byRift[e.riftID], e)
	}
	for riftID, es := range byRift {
		sort.Slice(es, func(i, j int) bool { return es[i].createdAt < es[j].createdAt })
		byRift[riftID] = es
	}

	log.Printf("index would cover %d rifts", len(byRift))

	if dryRun {
		for riftID, es := range byRift {
			log.Printf("  [DRY RUN] rift %s: %d checkpoints", riftID, len(es))
		}
		return nil
	}

	return db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketRiftCheckpoint); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		idx, err := tx.CreateBucket(bucketRiftCheckpoint)
		if err != nil {
			return err
		}

		for riftID, es := range byRift {
			ids := make([]string, len(es))
			for i, e := range es {
				ids[i] = e.id
			}
			data, err := json.Marshal(ids)
			if err != nil {
				return err
			}
			if err := idx.Put([]byte(riftID), data); err != nil {
				return err
			}
			log.Printf("  rift %s: reindexed %d checkpoints", riftID, len(ids))
		}
		return nil
	})
}

func copyFile(src, dst string) error {
	input, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, input, 0o600)
}
