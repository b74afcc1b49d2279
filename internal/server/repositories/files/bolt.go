package files

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"time"

	"github.com/boltdb/bolt"
	"github.com/dmitrijs2005/tgfilestream/internal/common"
	"github.com/dmitrijs2005/tgfilestream/internal/server/models"
	"github.com/fxamacker/cbor/v2"
)

var (
	filesBucket     = []byte("files")
	byMessageBucket = []byte("files_by_message")
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("files: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("files: CBOR decoder initialization failed: " + err.Error())
	}
}

// boltRecord is the stored form of a FileRecord.
type boltRecord struct {
	Hash           string     `cbor:"1,keyasint"`
	MessageID      int64      `cbor:"2,keyasint"`
	FileID         string     `cbor:"3,keyasint"`
	UserID         int64      `cbor:"4,keyasint"`
	UserName       string     `cbor:"5,keyasint"`
	Name           string     `cbor:"6,keyasint"`
	Size           int64      `cbor:"7,keyasint"`
	MimeType       string     `cbor:"8,keyasint"`
	Kind           string     `cbor:"9,keyasint"`
	RevokeVerifier []byte     `cbor:"10,keyasint"`
	Revoked        bool       `cbor:"11,keyasint"`
	RevokedAt      *time.Time `cbor:"12,keyasint,omitempty"`
	Downloads      int64      `cbor:"13,keyasint"`
	CreatedAt      time.Time  `cbor:"14,keyasint"`
}

func toBolt(r *models.FileRecord) boltRecord {
	return boltRecord(*r)
}

func fromBolt(b boltRecord) *models.FileRecord {
	r := models.FileRecord(b)
	return &r
}

// BoltRepository implements Repository on a local bolt file. Records are
// CBOR encoded under their hash; a second bucket maps message ids to hashes.
type BoltRepository struct {
	db *bolt.DB
}

// NewBoltRepository creates the buckets it needs in db.
func NewBoltRepository(db *bolt.DB) (*BoltRepository, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(filesBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(byMessageBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("bolt buckets: %w", err)
	}
	return &BoltRepository{db: db}, nil
}

func id2key(id int64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(id))
	return k
}

func get(tx *bolt.Tx, hash []byte) (*models.FileRecord, error) {
	v := tx.Bucket(filesBucket).Get(hash)
	if v == nil {
		return nil, common.ErrorNotFound
	}
	var b boltRecord
	if err := decMode.Unmarshal(v, &b); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", hash, err)
	}
	return fromBolt(b), nil
}

func put(tx *bolt.Tx, rec *models.FileRecord) error {
	v, err := encMode.Marshal(toBolt(rec))
	if err != nil {
		return fmt.Errorf("encode record %s: %w", rec.Hash, err)
	}
	return tx.Bucket(filesBucket).Put([]byte(rec.Hash), v)
}

func (r *BoltRepository) Create(_ context.Context, rec *models.FileRecord) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(filesBucket).Get([]byte(rec.Hash)) != nil {
			return fmt.Errorf("%w: hash %s", ErrAlreadyExists, rec.Hash)
		}
		byMessage := tx.Bucket(byMessageBucket)
		if byMessage.Get(id2key(rec.MessageID)) != nil {
			return fmt.Errorf("%w: message %d", ErrAlreadyExists, rec.MessageID)
		}
		if err := put(tx, rec); err != nil {
			return err
		}
		return byMessage.Put(id2key(rec.MessageID), []byte(rec.Hash))
	})
}

func (r *BoltRepository) GetByHash(_ context.Context, hash string) (*models.FileRecord, error) {
	var rec *models.FileRecord
	err := r.db.View(func(tx *bolt.Tx) error {
		var err error
		rec, err = get(tx, []byte(hash))
		return err
	})
	return rec, err
}

func (r *BoltRepository) GetByMessageID(_ context.Context, messageID int64) (*models.FileRecord, error) {
	var rec *models.FileRecord
	err := r.db.View(func(tx *bolt.Tx) error {
		hash := tx.Bucket(byMessageBucket).Get(id2key(messageID))
		if hash == nil {
			return common.ErrorNotFound
		}
		var err error
		rec, err = get(tx, hash)
		return err
	})
	return rec, err
}

func (r *BoltRepository) MarkRevoked(_ context.Context, hash string, at time.Time) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		rec, err := get(tx, []byte(hash))
		if err != nil {
			return err
		}
		if rec.Revoked {
			return common.ErrRevoked
		}
		rec.Revoked = true
		rec.RevokedAt = &at
		return put(tx, rec)
	})
}

func (r *BoltRepository) IncrementDownloads(_ context.Context, messageID int64) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		hash := tx.Bucket(byMessageBucket).Get(id2key(messageID))
		if hash == nil {
			return common.ErrorNotFound
		}
		rec, err := get(tx, hash)
		if err != nil {
			return err
		}
		rec.Downloads++
		return put(tx, rec)
	})
}

func (r *BoltRepository) ListByUser(_ context.Context, userID int64, limit int) ([]*models.FileRecord, error) {
	var result []*models.FileRecord
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(filesBucket).ForEach(func(k, v []byte) error {
			var b boltRecord
			if err := decMode.Unmarshal(v, &b); err != nil {
				return fmt.Errorf("decode record %s: %w", k, err)
			}
			if b.UserID == userID && !b.Revoked {
				result = append(result, fromBolt(b))
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
