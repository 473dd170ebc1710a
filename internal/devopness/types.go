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

package devopness

// Variable is a platform key/value variable. The preview database is stored
// as the Value of one of these.
type Variable struct {
	ID     int    `json:"id"`
	Key    string `json:"key"`
	Value  string `json:"value"`
	Target string `json:"target"`
	Hidden bool   `json:"hidden"`
	Type   string `json:"type"`
}

// ApplicationRequest registers a deployable unit in an environment.
type ApplicationRequest struct {
	CredentialID        int    `json:"credential_id"`
	Repository          string `json:"repository"`
	Name                string `json:"name"`
	ProgrammingLanguage string `json:"programming_language"`
	EngineVersion       string `json:"engine_version"`
	Framework           string `json:"framework"`
	DefaultBranch       string `json:"default_branch"`
}

// Application is the subset of the platform application we use.
type Application struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// VirtualHostRequest binds an IP:port pair to an application.
type VirtualHostRequest struct {
	Type          string `json:"type"`
	Name          string `json:"name"`
	ApplicationID int    `json:"application_id"`
}

// VirtualHost is the subset of the platform virtual host we use.
type VirtualHost struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Server holds the metadata needed to build preview URLs.
type Server struct {
	ID        int    `json:"id"`
	IPAddress string `json:"ip_address"`
}

// Pipeline is a reusable operation configured on a resource.
type Pipeline struct {
	ID        int    `json:"id"`
	Operation string `json:"operation"`
}

// PipelineActionRequest triggers a pipeline run from a source ref.
type PipelineActionRequest struct {
	SourceType string `json:"source_type"`
	SourceRef  string `json:"source_ref"`
	Servers    []int  `json:"servers"`
}

// ActionRef is a lightweight reference to a parent or child action.
type ActionRef struct {
	ID     int    `json:"id"`
	Status string `json:"status"`
}

// Action is an asynchronous unit of work, possibly with nested children.
type Action struct {
	ID              int         `json:"id"`
	Status          string      `json:"status"`
	URLWebPermalink string      `json:"url_web_permalink"`
	Parent          *ActionRef  `json:"parent,omitempty"`
	Children        []ActionRef `json:"children"`
}

// Action statuses reported by the platform.
const (
	ActionStatusQueued    = "queued"
	ActionStatusPending   = "pending"
	ActionStatusRunning   = "running"
	ActionStatusCompleted = "completed"
	ActionStatusFailed    = "failed"
	ActionStatusSkipped   = "skipped"
)

// Resource types accepted by ListPipelines.
const (
	ResourceTypeApplication = "application"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
}
