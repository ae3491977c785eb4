// Package objectstore keeps uploaded files (avatars, message images) in a
// bbolt database and hands out public URLs for them.
package objectstore

import (
	"bytes"
	"context"
	"encoding/gob"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

var objectsBucket = []byte("objects")

var ErrNotFound = errors.New("object not found")

type Object struct {
	Key         string
	Name        string
	ContentType string
	Data        []byte
	CreatedAt   time.Time
}

type Bolt struct {
	db        *bbolt.DB
	publicURL string
}

// Open opens or creates the database at path. publicURL is the externally
// visible server address used to build object URLs.
func Open(path, publicURL string) (*Bolt, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "objectstore.Open")
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(objectsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "objectstore.Open.CreateBucket")
	}

	return &Bolt{db: db, publicURL: strings.TrimRight(publicURL, "/")}, nil
}

func (b *Bolt) Close() error {
	return b.db.Close()
}

// Put stores data under a new key and returns the key.
func (b *Bolt) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	obj := Object{
		Key:         uuid.NewString(),
		Name:        name,
		ContentType: contentType,
		Data:        data,
		CreatedAt:   time.Now().UTC(),
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&obj); err != nil {
		return "", errors.Wrap(err, "objectstore.Put.Encode")
	}
	err := b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(objectsBucket).Put([]byte(obj.Key), buf.Bytes())
	})
	if err != nil {
		return "", errors.Wrap(err, "objectstore.Put")
	}
	return obj.Key, nil
}

func (b *Bolt) Get(ctx context.Context, key string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var obj Object
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(objectsBucket).Get([]byte(key))
		if data == nil {
			return ErrNotFound
		}
		return gob.NewDecoder(bytes.NewReader(data)).Decode(&obj)
	})
	if err != nil {
		return nil, err
	}
	return &obj, nil
}

func (b *Bolt) URL(key string) string {
	return b.publicURL + "/uploads/" + key
}
