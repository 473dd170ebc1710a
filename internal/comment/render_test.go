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

package comment

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mikelane/prpreview/internal/database"
	"github.com/mikelane/prpreview/internal/github"
)

func sampleDetails() Details {
	return Details{
		Application: database.Application{ID: 55, URL: "https://app/applications/55"},
		VirtualHost: database.VirtualHost{ID: 77, Port: 9000, URL: "https://app/virtual-hosts/77"},
		Deploy:      database.Deploy{ID: 900, URL: "https://app/actions/900"},
		PreviewURL:  "http://10.0.0.5:9000/",
		Error:       "action 900 failed with status: failed",
		Interval:    30 * time.Second,
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		name      string
		phase     Phase
		details   Details
		contains  []string
		excludes  []string
		wantError bool
	}{
		{
			name:     "Preparing",
			phase:    PhasePreparing,
			contains: []string{"🚀 Preparing your preview environment..."},
		},
		{
			name:    "Initialized",
			phase:   PhaseInitialized,
			details: sampleDetails(),
			contains: []string{
				"✅ Preview environment initialized",
				"**Application:** [55](https://app/applications/55)",
				"**Virtual Host:** [77](https://app/virtual-hosts/77)",
				"⚡ Deployment Starting...",
			},
		},
		{
			name:    "Deploying",
			phase:   PhaseDeploying,
			details: sampleDetails(),
			contains: []string{
				"🚢 Deployment in Progress",
				"**Deployment ID:** 900 - [View details](https://app/actions/900)",
				"🔍 Monitoring every 30 seconds...",
			},
		},
		{
			name:    "Failed deployment",
			phase:   PhaseFailed,
			details: sampleDetails(),
			contains: []string{
				"❌ Preview environment initialization **Failed**",
				"🚢 Deployment Failed",
				"**Error:** action 900 failed with status: failed",
			},
		},
		{
			name:     "Failed before deployment",
			phase:    PhaseFailed,
			details:  Details{Application: database.Application{ID: 55, URL: "u"}, Error: "no preview port available"},
			contains: []string{"**Application:** [55](u)", "**Error:** no preview port available"},
			excludes: []string{"Virtual Host", "Deployment ID", "🚢"},
		},
		{
			name:    "Ready",
			phase:   PhaseReady,
			details: sampleDetails(),
			contains: []string{
				"🎉 Preview Environment Ready!",
				"🚢 Deployment Completed",
				"Access the **Application Preview** in http://10.0.0.5:9000/",
			},
		},
		{name: "Synchronizing", phase: PhaseSynchronizing, contains: []string{"🔄 Synchronizing Preview Environment..."}},
		{name: "Cleaning up", phase: PhaseCleaningUp, contains: []string{"🧹 Cleaning Up Preview Environment..."}},
		{name: "Cleaned up", phase: PhaseCleanedUp, contains: []string{"🧹 Preview environment cleaned up."}},
		{name: "Unknown phase", phase: Phase(99), wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := Render(tt.phase, tt.details)
			if tt.wantError {
				if err == nil {
					t.Errorf("Render() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Render() unexpected error: %v", err)
			}
			for _, want := range tt.contains {
				if !strings.Contains(body, want) {
					t.Errorf("Render() body missing %q:\n%s", want, body)
				}
			}
			for _, unwanted := range tt.excludes {
				if strings.Contains(body, unwanted) {
					t.Errorf("Render() body contains %q:\n%s", unwanted, body)
				}
			}
		})
	}
}

func TestInterval(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{in: 0, want: "30 seconds"},
		{in: 10 * time.Second, want: "10 seconds"},
		{in: time.Minute, want: "minute"},
		{in: 2 * time.Minute, want: "2 minutes"},
	}
	for _, tt := range tests {
		if got := interval(tt.in); got != tt.want {
			t.Errorf("interval(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// fakeForge records comment traffic.
type fakeForge struct {
	created   []string
	updated   map[int64]string
	updateErr error
}

func (f *fakeForge) CreateComment(_ context.Context, owner, repo string, number int, body string) (*github.Comment, error) {
	f.created = append(f.created, body)
	return &github.Comment{ID: 1234, Body: body}, nil
}

func (f *fakeForge) UpdateComment(_ context.Context, owner, repo string, id int64, body string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	if f.updated == nil {
		f.updated = map[int64]string{}
	}
	f.updated[id] = body
	return nil
}

func TestReporter(t *testing.T) {
	forge := &fakeForge{}
	r := NewReporter(forge, "acme", "site")

	c, err := r.Create(context.Background(), 42)
	if err != nil {
		t.Fatalf("Create() unexpected error: %v", err)
	}
	if c.ID != 1234 || !strings.Contains(c.Content, "Preparing") {
		t.Errorf("Create() = %+v", c)
	}

	body, err := r.Update(context.Background(), c.ID, PhaseCleanedUp, Details{})
	if err != nil {
		t.Fatalf("Update() unexpected error: %v", err)
	}
	if forge.updated[1234] != body {
		t.Errorf("forge received %q, Update returned %q", forge.updated[1234], body)
	}

	forge.updateErr = errors.New("boom")
	if _, err := r.Update(context.Background(), c.ID, PhaseReady, sampleDetails()); err == nil {
		t.Error("Update() expected error, got nil")
	}
}
