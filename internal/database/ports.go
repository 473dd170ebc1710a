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
	"k8s.io/apimachinery/pkg/util/sets"
)

const (
	// MinPort is the first port handed out to a preview virtual host.
	MinPort = 9000
	// MaxPort is the last port handed out to a preview virtual host.
	MaxPort = 9500
)

// UsedPorts returns the virtual host ports held by records in db.
func UsedPorts(db Database) sets.Set[int] {
	used := sets.New[int]()
	for _, rec := range db {
		if rec != nil && rec.VirtualHost.Port != 0 {
			used.Insert(rec.VirtualHost.Port)
		}
	}
	return used
}

// AllocatePort returns the lowest port in [MinPort, MaxPort] not assigned to
// any record in db. It returns false when the whole range is taken.
func AllocatePort(db Database) (int, bool) {
	used := UsedPorts(db)
	for port := MinPort; port <= MaxPort; port++ {
		if !used.Has(port) {
			return port, true
		}
	}
	return 0, false
}
