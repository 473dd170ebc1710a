// MIT License
//
// Copyright (c) 2025 Mike Lane
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"sigs.k8s.io/controller-runtime/pkg/log"
)

var (
	// ErrUnavailable is returned when the database cannot be read.
	ErrUnavailable = errors.New("preview database unavailable")
	// ErrWriteFailed is returned when the database cannot be written.
	ErrWriteFailed = errors.New("preview database write failed")
)

// Store loads and persists the preview database.
type Store interface {
	// Load fetches the current database. An empty or unparsable payload
	// yields an empty database.
	Load(ctx context.Context) (Database, error)
	// Persist writes db, merging it with the stored copy so that only the
	// entry for forPR is taken from db. On success db holds the merged view.
	Persist(ctx context.Context, db Database, forPR int) error
}

// Decode parses a stored payload. An empty payload is an empty database.
func Decode(payload string) (Database, error) {
	db := Database{}
	if strings.TrimSpace(payload) == "" {
		return db, nil
	}
	if err := json.Unmarshal([]byte(payload), &db); err != nil {
		return nil, err
	}
	for k, rec := range db {
		if rec == nil {
			delete(db, k)
		}
	}
	return db, nil
}

// Encode serializes db for storage.
func Encode(db Database) (string, error) {
	data, err := json.Marshal(db)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// decodeOrEmpty parses a payload loaded from the store. Corrupt data is
// logged and dropped.
func decodeOrEmpty(ctx context.Context, payload string) Database {
	db, err := Decode(payload)
	if err != nil {
		log.FromContext(ctx).Error(err, "Discarding unparsable preview database", "bytes", len(payload))
		return Database{}
	}
	return db
}

// prepare clears the display text of the record being written and merges
// the entry for forPR from local into the remote payload.
func prepare(ctx context.Context, remote string, local Database, forPR int) Database {
	if rec, ok := local.Get(forPR); ok {
		rec.Comment.Content = ""
	}

	merged, err := Decode(remote)
	if err != nil {
		log.FromContext(ctx).Error(err, "Stored preview database is unparsable, overwriting it", "pr", forPR)
		merged = Database{}
		for k, v := range local {
			merged[k] = v
		}
		return merged
	}

	if rec, ok := local.Get(forPR); ok {
		merged[forPR] = rec
	} else {
		delete(merged, forPR)
	}
	return merged
}

// encodeMerged prepares and serializes the payload written for forPR.
func encodeMerged(ctx context.Context, remote string, local Database, forPR int) (Database, string, error) {
	merged := prepare(ctx, remote, local, forPR)
	payload, err := Encode(merged)
	if err != nil {
		return nil, "", fmt.Errorf("%w: encode: %w", ErrWriteFailed, err)
	}
	return merged, payload, nil
}
