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
	"fmt"

	"github.com/mikelane/prpreview/internal/devopness"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// VariableClient reads and writes platform variables.
type VariableClient interface {
	GetVariable(ctx context.Context, id int) (*devopness.Variable, error)
	UpdateVariable(ctx context.Context, id int, v *devopness.Variable) error
}

// VariableStore keeps the database as the value of a platform variable.
// Writes are an unconditional read-modify-write, so two processes persisting
// at the same time can still lose one of the updates.
type VariableStore struct {
	client     VariableClient
	variableID int
}

// NewVariableStore returns a store backed by the given variable.
func NewVariableStore(c VariableClient, variableID int) *VariableStore {
	return &VariableStore{client: c, variableID: variableID}
}

// Load fetches and parses the variable.
func (s *VariableStore) Load(ctx context.Context) (Database, error) {
	v, err := s.client.GetVariable(ctx, s.variableID)
	if err != nil {
		return nil, fmt.Errorf("%w: read variable %d: %w", ErrUnavailable, s.variableID, err)
	}
	db := decodeOrEmpty(ctx, v.Value)
	log.FromContext(ctx).V(1).Info("Loaded preview database", "variable", s.variableID, "records", len(db))
	return db, nil
}

// Persist re-reads the variable for its current metadata and value, merges
// the entry for forPR and writes the result back.
func (s *VariableStore) Persist(ctx context.Context, db Database, forPR int) error {
	current, err := s.client.GetVariable(ctx, s.variableID)
	if err != nil {
		return fmt.Errorf("%w: read variable %d before update: %w", ErrWriteFailed, s.variableID, err)
	}

	merged, payload, err := encodeMerged(ctx, current.Value, db, forPR)
	if err != nil {
		return err
	}

	update := &devopness.Variable{
		ID:     current.ID,
		Key:    current.Key,
		Value:  payload,
		Target: current.Target,
		Hidden: current.Hidden,
		Type:   current.Type,
	}
	if err := s.client.UpdateVariable(ctx, s.variableID, update); err != nil {
		return fmt.Errorf("%w: update variable %d: %w", ErrWriteFailed, s.variableID, err)
	}

	replaceContents(db, merged)
	log.FromContext(ctx).V(1).Info("Persisted preview database", "variable", s.variableID, "pr", forPR, "records", len(db))
	return nil
}
