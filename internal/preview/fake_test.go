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

package preview

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mikelane/prpreview/internal/devopness"
	"github.com/mikelane/prpreview/internal/github"
)

// fakePlatform is an in-memory Devopness serving the variable, resource and
// action endpoints the orchestrator uses.
type fakePlatform struct {
	mu sync.Mutex

	variable devopness.Variable
	nextID   int
	serverIP string
	// statuses is the status sequence every action goes through.
	statuses []string

	calls       map[string]int
	vhostNames  []string
	appErr      error
	deleteErr   error
	actionSteps map[int]int
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		variable:    devopness.Variable{ID: 7, Key: "PREVIEW_DATABASE", Target: "os-env-var", Hidden: true, Type: "variable"},
		nextID:      100,
		serverIP:    "10.0.0.5",
		statuses:    []string{devopness.ActionStatusRunning, devopness.ActionStatusCompleted},
		calls:       map[string]int{},
		actionSteps: map[int]int{},
	}
}

func (f *fakePlatform) record(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	f.nextID++
	return f.nextID
}

func (f *fakePlatform) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// platformCalls counts calls other than the database variable reads and writes.
func (f *fakePlatform) platformCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for op, c := range f.calls {
		if op != "GetVariable" && op != "UpdateVariable" {
			n += c
		}
	}
	return n
}

func (f *fakePlatform) GetVariable(_ context.Context, id int) (*devopness.Variable, error) {
	f.record("GetVariable")
	f.mu.Lock()
	defer f.mu.Unlock()
	if id != f.variable.ID {
		return nil, fmt.Errorf("variable %d not found", id)
	}
	v := f.variable
	return &v, nil
}

func (f *fakePlatform) UpdateVariable(_ context.Context, _ int, v *devopness.Variable) error {
	f.record("UpdateVariable")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.variable = *v
	return nil
}

func (f *fakePlatform) CreateApplication(_ context.Context, _ int, req *devopness.ApplicationRequest) (*devopness.Application, error) {
	id := f.record("CreateApplication")
	if f.appErr != nil {
		return nil, f.appErr
	}
	return &devopness.Application{ID: id, Name: req.Name}, nil
}

func (f *fakePlatform) DeleteApplication(_ context.Context, _ int) error {
	f.record("DeleteApplication")
	return f.deleteErr
}

func (f *fakePlatform) CreateVirtualHost(_ context.Context, _ int, req *devopness.VirtualHostRequest) (*devopness.VirtualHost, error) {
	id := f.record("CreateVirtualHost")
	f.mu.Lock()
	f.vhostNames = append(f.vhostNames, req.Name)
	f.mu.Unlock()
	return &devopness.VirtualHost{ID: id, Name: req.Name}, nil
}

func (f *fakePlatform) DeleteVirtualHost(_ context.Context, _ int) error {
	f.record("DeleteVirtualHost")
	return f.deleteErr
}

func (f *fakePlatform) GetServer(_ context.Context, id int) (*devopness.Server, error) {
	f.record("GetServer")
	return &devopness.Server{ID: id, IPAddress: f.serverIP}, nil
}

func (f *fakePlatform) ListPipelines(_ context.Context, _ string, _ int) ([]devopness.Pipeline, error) {
	id := f.record("ListPipelines")
	return []devopness.Pipeline{{ID: id, Operation: "deploy"}}, nil
}

func (f *fakePlatform) AddPipelineAction(_ context.Context, _ int, _ *devopness.PipelineActionRequest) (*devopness.Action, error) {
	id := f.record("AddPipelineAction")
	return &devopness.Action{ID: id, Status: devopness.ActionStatusQueued, URLWebPermalink: fmt.Sprintf("https://app/actions/%d", id)}, nil
}

func (f *fakePlatform) GetAction(_ context.Context, id int) (*devopness.Action, error) {
	f.record("GetAction")
	f.mu.Lock()
	defer f.mu.Unlock()
	step := f.actionSteps[id]
	if step >= len(f.statuses) {
		step = len(f.statuses) - 1
	}
	f.actionSteps[id]++
	return &devopness.Action{ID: id, Status: f.statuses[step]}, nil
}

// fakeForge stores tracking comments by ID.
type fakeForge struct {
	mu        sync.Mutex
	nextID    int64
	comments  map[int64]string
	history   []string
	createErr error
}

func newFakeForge() *fakeForge {
	return &fakeForge{nextID: 1233, comments: map[int64]string{}}
}

func (f *fakeForge) CreateComment(_ context.Context, _, _ string, _ int, body string) (*github.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	f.comments[f.nextID] = body
	f.history = append(f.history, body)
	return &github.Comment{ID: f.nextID, Body: body}, nil
}

func (f *fakeForge) UpdateComment(_ context.Context, _, _ string, id int64, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.comments[id]; !ok {
		return errors.New("comment not found")
	}
	f.comments[id] = body
	f.history = append(f.history, body)
	return nil
}

func (f *fakeForge) body(id int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.comments[id]
}
