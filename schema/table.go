// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package schema

import (
	"errors"

	"github.com/luxfi/crypto/hash"
	"github.com/luxfi/database"
	"github.com/luxfi/database/prefixdb"
	"github.com/luxfi/ids"
)

var (
	lengthKey = []byte("length")

	leafDomain = []byte{0x00}
	nodeDomain = []byte{0x01}
)

// list is an append-only sequence stored under its own prefix. Items are
// keyed by their big-endian index and the length is kept alongside.
type list struct {
	db database.Database
}

func newList(parent database.Database, key []byte) *list {
	return &list{db: prefixdb.New(key, parent)}
}

func (l *list) Len() (uint64, error) {
	length, err := database.GetUInt64(l.db, lengthKey)
	if errors.Is(err, database.ErrNotFound) {
		return 0, nil
	}
	return length, err
}

func (l *list) Get(index uint64) ([]byte, error) {
	return l.db.Get(database.PackUInt64(index))
}

// Push appends value and returns its index.
func (l *list) Push(value []byte) (uint64, error) {
	length, err := l.Len()
	if err != nil {
		return 0, err
	}
	if err := l.db.Put(database.PackUInt64(length), value); err != nil {
		return 0, err
	}
	return length, database.PutUInt64(l.db, lengthKey, length+1)
}

// FromEnd returns the item offset positions before the last one, or false
// when the list is too short.
func (l *list) FromEnd(offset uint64) ([]byte, bool, error) {
	length, err := l.Len()
	if err != nil || length <= offset {
		return nil, false, err
	}
	value, err := l.Get(length - 1 - offset)
	return value, err == nil, err
}

func (l *list) Items() ([][]byte, error) {
	length, err := l.Len()
	if err != nil {
		return nil, err
	}
	items := make([][]byte, length)
	for i := range items {
		items[i], err = l.Get(uint64(i))
		if err != nil {
			return nil, err
		}
	}
	return items, nil
}

// RootHash summarizes the list as a binary Merkle tree. Leaves and inner
// nodes are hashed under distinct domains and a node without a right child
// hashes its left child alone. The empty list hashes to ids.Empty.
func (l *list) RootHash() (ids.ID, error) {
	items, err := l.Items()
	if err != nil || len(items) == 0 {
		return ids.Empty, err
	}
	level := make([]ids.ID, len(items))
	for i, item := range items {
		level[i] = hash.ComputeHash256Array(append(leafDomain[:1:1], item...))
	}
	for len(level) > 1 {
		next := make([]ids.ID, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			buf := append(nodeDomain[:1:1], level[i][:]...)
			if i+1 < len(level) {
				buf = append(buf, level[i+1][:]...)
			}
			next = append(next, hash.ComputeHash256Array(buf))
		}
		level = next
	}
	return level[0], nil
}
