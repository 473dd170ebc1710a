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
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
	"sigs.k8s.io/controller-runtime/pkg/client/interceptor"
)

func newScheme(t *testing.T) *runtime.Scheme {
	t.Helper()
	scheme := runtime.NewScheme()
	if err := corev1.AddToScheme(scheme); err != nil {
		t.Fatalf("add corev1 to scheme: %v", err)
	}
	return scheme
}

func previewConfigMap(payload string) *corev1.ConfigMap {
	return &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: "previews", Namespace: "pr-preview"},
		Data:       map[string]string{DefaultConfigMapKey: payload},
	}
}

func readPayload(t *testing.T, c client.Client) Database {
	t.Helper()
	cm := &corev1.ConfigMap{}
	if err := c.Get(context.Background(), types.NamespacedName{Namespace: "pr-preview", Name: "previews"}, cm); err != nil {
		t.Fatalf("get configmap: %v", err)
	}
	db, err := Decode(cm.Data[DefaultConfigMapKey])
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	return db
}

func TestConfigMapStore_Load(t *testing.T) {
	tests := []struct {
		name     string
		existing []client.Object
		want     Database
	}{
		{name: "Missing configmap is empty", want: Database{}},
		{name: "Corrupt payload is empty", existing: []client.Object{previewConfigMap("[")}, want: Database{}},
		{
			name:     "Reads records",
			existing: []client.Object{previewConfigMap(`{"3":{"branch_name":"fix"}}`)},
			want:     Database{3: {BranchName: "fix"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := fake.NewClientBuilder().
				WithScheme(newScheme(t)).
				WithObjects(tt.existing...).
				Build()
			store := NewConfigMapStore(c, "pr-preview", "previews", "")

			db, err := store.Load(context.Background())
			if err != nil {
				t.Fatalf("Load() unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, db); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestConfigMapStore_Persist_CreatesConfigMap(t *testing.T) {
	c := fake.NewClientBuilder().WithScheme(newScheme(t)).Build()
	store := NewConfigMapStore(c, "pr-preview", "previews", "")

	db := Database{5: {BranchName: "feat", Comment: Comment{ID: 1, Content: "body"}}}
	if err := store.Persist(context.Background(), db, 5); err != nil {
		t.Fatalf("Persist() unexpected error: %v", err)
	}

	want := Database{5: {BranchName: "feat", Comment: Comment{ID: 1}}}
	if diff := cmp.Diff(want, readPayload(t, c)); diff != "" {
		t.Errorf("stored mismatch (-want +got):\n%s", diff)
	}
}

func TestConfigMapStore_Persist_RetriesOnConflict(t *testing.T) {
	var conflicted bool
	c := fake.NewClientBuilder().
		WithScheme(newScheme(t)).
		WithObjects(previewConfigMap(`{}`)).
		WithInterceptorFuncs(interceptor.Funcs{
			Update: func(ctx context.Context, c client.WithWatch, obj client.Object, opts ...client.UpdateOption) error {
				if conflicted {
					return c.Update(ctx, obj, opts...)
				}
				conflicted = true
				// A concurrent run records PR 7 first.
				other := previewConfigMap(`{"7":{"branch_name":"other"}}`)
				current := &corev1.ConfigMap{}
				if err := c.Get(ctx, client.ObjectKeyFromObject(other), current); err != nil {
					return err
				}
				current.Data = other.Data
				if err := c.Update(ctx, current); err != nil {
					return err
				}
				return apierrors.NewConflict(schema.GroupResource{Resource: "configmaps"}, "previews", errors.New("stale"))
			},
		}).
		Build()
	store := NewConfigMapStore(c, "pr-preview", "previews", "")

	db := Database{42: {BranchName: "feature-x"}}
	if err := store.Persist(context.Background(), db, 42); err != nil {
		t.Fatalf("Persist() unexpected error: %v", err)
	}

	want := Database{7: {BranchName: "other"}, 42: {BranchName: "feature-x"}}
	if diff := cmp.Diff(want, readPayload(t, c)); diff != "" {
		t.Errorf("stored mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, db); diff != "" {
		t.Errorf("local view mismatch (-want +got):\n%s", diff)
	}
}

func TestConfigMapStore_Persist_Failure(t *testing.T) {
	c := fake.NewClientBuilder().
		WithScheme(newScheme(t)).
		WithInterceptorFuncs(interceptor.Funcs{
			Get: func(ctx context.Context, c client.WithWatch, key client.ObjectKey, obj client.Object, opts ...client.GetOption) error {
				return apierrors.NewForbidden(schema.GroupResource{Resource: "configmaps"}, key.Name, errors.New("rbac"))
			},
		}).
		Build()
	store := NewConfigMapStore(c, "pr-preview", "previews", "")

	if err := store.Persist(context.Background(), Database{1: {}}, 1); !errors.Is(err, ErrWriteFailed) {
		t.Errorf("Persist() error = %v, want ErrWriteFailed", err)
	}
	if _, err := store.Load(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Load() error = %v, want ErrUnavailable", err)
	}
}
