package ledger

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketProofs = []byte("proofs")
	bucketByID   = []byte("proofs_by_id")
)

// Queue failures surfaced to callers. A persistence failure is fatal to the
// collection that triggered it but never corrupts previously enqueued
// proofs: bbolt transactions commit atomically or not at all.
var (
	ErrProofNotFound  = errors.New("ledger: proof not found")
	ErrDuplicateProof = errors.New("ledger: proof already enqueued")
)

// Queue is the durable local proof queue. Proofs append in FIFO order,
// survive process restart, and only ever mutate by flipping Synced to true.
type Queue struct {
	db *bolt.DB
}

// OpenQueue opens (or creates) the proof queue file at path.
func OpenQueue(path string) (*Queue, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("ledger: open queue: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketProofs); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketByID)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: init queue buckets: %w", err)
	}
	return &Queue{db: db}, nil
}

// Close releases the underlying queue file.
func (q *Queue) Close() error {
	if q == nil || q.db == nil {
		return nil
	}
	return q.db.Close()
}

// Enqueue appends proof to the queue. Re-enqueueing an id that is already
// present fails with ErrDuplicateProof.
func (q *Queue) Enqueue(proof *Proof) error {
	if q == nil || q.db == nil {
		return errors.New("ledger: queue not open")
	}
	if proof == nil || proof.ID == "" {
		return errors.New("ledger: proof id required")
	}
	encoded, err := json.Marshal(proof)
	if err != nil {
		return fmt.Errorf("ledger: encode proof: %w", err)
	}
	return q.db.Update(func(tx *bolt.Tx) error {
		index := tx.Bucket(bucketByID)
		if index.Get([]byte(proof.ID)) != nil {
			return ErrDuplicateProof
		}
		proofs := tx.Bucket(bucketProofs)
		seq, err := proofs.NextSequence()
		if err != nil {
			return err
		}
		key := sequenceKey(seq)
		if err := proofs.Put(key, encoded); err != nil {
			return err
		}
		return index.Put([]byte(proof.ID), key)
	})
}

// MarkSynced flips the proof's synced flag. Marking an already-synced proof
// again is a no-op, not an error; the transition is monotonic.
func (q *Queue) MarkSynced(id string) error {
	if q == nil || q.db == nil {
		return errors.New("ledger: queue not open")
	}
	return q.db.Update(func(tx *bolt.Tx) error {
		key := tx.Bucket(bucketByID).Get([]byte(id))
		if key == nil {
			return ErrProofNotFound
		}
		proofs := tx.Bucket(bucketProofs)
		encoded := proofs.Get(key)
		if encoded == nil {
			return ErrProofNotFound
		}
		var proof Proof
		if err := json.Unmarshal(encoded, &proof); err != nil {
			return fmt.Errorf("ledger: decode proof %s: %w", id, err)
		}
		if proof.Synced {
			return nil
		}
		proof.Synced = true
		updated, err := json.Marshal(&proof)
		if err != nil {
			return fmt.Errorf("ledger: encode proof %s: %w", id, err)
		}
		return proofs.Put(key, updated)
	})
}

// Proof fetches a single proof by id.
func (q *Queue) Proof(id string) (*Proof, error) {
	if q == nil || q.db == nil {
		return nil, errors.New("ledger: queue not open")
	}
	var proof *Proof
	err := q.db.View(func(tx *bolt.Tx) error {
		key := tx.Bucket(bucketByID).Get([]byte(id))
		if key == nil {
			return ErrProofNotFound
		}
		encoded := tx.Bucket(bucketProofs).Get(key)
		if encoded == nil {
			return ErrProofNotFound
		}
		decoded := &Proof{}
		if err := json.Unmarshal(encoded, decoded); err != nil {
			return fmt.Errorf("ledger: decode proof %s: %w", id, err)
		}
		proof = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return proof, nil
}

// Unsynced returns the proofs still awaiting reconciliation, oldest first.
func (q *Queue) Unsynced() ([]*Proof, error) {
	return q.scan(func(p *Proof) bool { return !p.Synced })
}

// All returns every queued proof in FIFO order.
func (q *Queue) All() ([]*Proof, error) {
	return q.scan(func(*Proof) bool { return true })
}

func (q *Queue) scan(keep func(*Proof) bool) ([]*Proof, error) {
	if q == nil || q.db == nil {
		return nil, errors.New("ledger: queue not open")
	}
	var proofs []*Proof
	err := q.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProofs).ForEach(func(_, encoded []byte) error {
			proof := &Proof{}
			if err := json.Unmarshal(encoded, proof); err != nil {
				return fmt.Errorf("ledger: decode queued proof: %w", err)
			}
			if keep(proof) {
				proofs = append(proofs, proof)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return proofs, nil
}

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
