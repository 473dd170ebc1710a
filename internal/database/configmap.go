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

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/util/retry"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// DefaultConfigMapKey is the data key holding the serialized database.
const DefaultConfigMapKey = "previews.json"

// ConfigMapStore keeps the database in a ConfigMap data key. Updates carry
// the resourceVersion they were read at and are retried on conflict, so
// concurrent writers for different pull requests do not lose each other's
// entries.
type ConfigMapStore struct {
	client client.Client
	key    types.NamespacedName
	field  string
}

// NewConfigMapStore returns a store backed by namespace/name. An empty field
// uses DefaultConfigMapKey.
func NewConfigMapStore(c client.Client, namespace, name, field string) *ConfigMapStore {
	if field == "" {
		field = DefaultConfigMapKey
	}
	return &ConfigMapStore{
		client: c,
		key:    types.NamespacedName{Namespace: namespace, Name: name},
		field:  field,
	}
}

// Load reads the ConfigMap. A missing ConfigMap is an empty database.
func (s *ConfigMapStore) Load(ctx context.Context) (Database, error) {
	cm := &corev1.ConfigMap{}
	if err := s.client.Get(ctx, s.key, cm); err != nil {
		if apierrors.IsNotFound(err) {
			log.FromContext(ctx).V(1).Info("Preview database ConfigMap not found, starting empty", "configmap", s.key)
			return Database{}, nil
		}
		return nil, fmt.Errorf("%w: get configmap %s: %w", ErrUnavailable, s.key, err)
	}
	return decodeOrEmpty(ctx, cm.Data[s.field]), nil
}

// Persist merges the entry for forPR into the ConfigMap, creating it when
// missing.
func (s *ConfigMapStore) Persist(ctx context.Context, db Database, forPR int) error {
	var merged Database
	retriable := func(err error) bool {
		return apierrors.IsConflict(err) || apierrors.IsAlreadyExists(err)
	}

	err := retry.OnError(retry.DefaultRetry, retriable, func() error {
		cm := &corev1.ConfigMap{}
		err := s.client.Get(ctx, s.key, cm)
		if err != nil && !apierrors.IsNotFound(err) {
			return err
		}
		exists := err == nil

		var payload string
		merged, payload, err = encodeMerged(ctx, cm.Data[s.field], db, forPR)
		if err != nil {
			return err
		}

		if !exists {
			cm = &corev1.ConfigMap{
				ObjectMeta: metav1.ObjectMeta{
					Name:      s.key.Name,
					Namespace: s.key.Namespace,
					Labels: map[string]string{
						"app.kubernetes.io/managed-by": "pr-preview",
					},
				},
				Data: map[string]string{s.field: payload},
			}
			return s.client.Create(ctx, cm)
		}

		if cm.Data == nil {
			cm.Data = map[string]string{}
		}
		cm.Data[s.field] = payload
		return s.client.Update(ctx, cm)
	})
	if err != nil {
		return fmt.Errorf("%w: configmap %s: %w", ErrWriteFailed, s.key, err)
	}

	replaceContents(db, merged)
	log.FromContext(ctx).V(1).Info("Persisted preview database", "configmap", s.key, "pr", forPR, "records", len(db))
	return nil
}
