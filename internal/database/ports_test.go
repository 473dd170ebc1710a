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

import "testing"

func TestAllocatePort(t *testing.T) {
	full := Database{}
	for i := 0; i <= MaxPort-MinPort; i++ {
		full[i+1] = &Record{VirtualHost: VirtualHost{Port: MinPort + i}}
	}

	tests := []struct {
		name     string
		db       Database
		wantPort int
		wantOK   bool
	}{
		{name: "Empty database gets first port", db: Database{}, wantPort: 9000, wantOK: true},
		{
			name: "Skips taken ports",
			db: Database{
				1: {VirtualHost: VirtualHost{Port: 9000}},
				2: {VirtualHost: VirtualHost{Port: 9001}},
			},
			wantPort: 9002,
			wantOK:   true,
		},
		{
			name: "Fills lowest gap",
			db: Database{
				1: {VirtualHost: VirtualHost{Port: 9000}},
				2: {VirtualHost: VirtualHost{Port: 9002}},
			},
			wantPort: 9001,
			wantOK:   true,
		},
		{
			name: "Ignores records without a port",
			db: Database{
				1: {BranchName: "a"},
				2: nil,
			},
			wantPort: 9000,
			wantOK:   true,
		},
		{name: "Exhausted range", db: full, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port, ok := AllocatePort(tt.db)
			if ok != tt.wantOK {
				t.Fatalf("AllocatePort() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && port != tt.wantPort {
				t.Errorf("AllocatePort() = %d, want %d", port, tt.wantPort)
			}
		})
	}
}

func TestAllocatePort_LastPortFree(t *testing.T) {
	db := Database{}
	for i := 0; i < MaxPort-MinPort; i++ {
		db[i+1] = &Record{VirtualHost: VirtualHost{Port: MinPort + i}}
	}

	port, ok := AllocatePort(db)
	if !ok || port != MaxPort {
		t.Errorf("AllocatePort() = %d, %v, want %d, true", port, ok, MaxPort)
	}
}
