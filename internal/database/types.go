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

// Application identifies the platform application serving a preview.
type Application struct {
	ID  int    `json:"id"`
	URL string `json:"url"`
}

// Comment identifies the tracking comment on the pull request.
type Comment struct {
	ID      int64  `json:"id"`
	Content string `json:"content"`
}

// Deploy identifies the latest deployment action.
type Deploy struct {
	ID  int    `json:"id"`
	URL string `json:"url"`
}

// VirtualHost identifies the IP:port binding of a preview.
type VirtualHost struct {
	ID   int    `json:"id"`
	Port int    `json:"port"`
	URL  string `json:"url"`
}

// Record is the provisioning state of one pull request's preview.
// Zero IDs and empty URLs mean the resource has not been created yet.
type Record struct {
	BranchName  string      `json:"branch_name"`
	Application Application `json:"application"`
	Comment     Comment     `json:"comment"`
	Deploy      Deploy      `json:"deploy"`
	VirtualHost VirtualHost `json:"virtual_host"`
	PreviewURL  string      `json:"preview_url"`
}

// NewRecord returns the skeleton record created when a pull request opens.
func NewRecord(branch string) *Record {
	return &Record{BranchName: branch}
}

// Database maps pull request numbers to their preview records. JSON encodes
// the keys as strings.
type Database map[int]*Record

// Get returns the record for a pull request, if any.
func (db Database) Get(pr int) (*Record, bool) {
	rec, ok := db[pr]
	if !ok || rec == nil {
		return nil, false
	}
	return rec, true
}

// replaceContents makes dst hold exactly the entries of src.
func replaceContents(dst, src Database) {
	for k := range dst {
		if _, ok := src[k]; !ok {
			delete(dst, k)
		}
	}
	for k, v := range src {
		dst[k] = v
	}
}
