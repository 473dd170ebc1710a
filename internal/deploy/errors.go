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

package deploy

import (
	"errors"
	"fmt"
	"time"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

var (
	// ErrPipelineNotFound is returned when the application has no deploy pipeline.
	ErrPipelineNotFound = errors.New("deploy pipeline not found")
	// ErrTriggerFailed is returned when the platform rejects a new deploy action.
	ErrTriggerFailed = errors.New("deployment trigger failed")
	// ErrDeploymentFailed is matched by every FailedError.
	ErrDeploymentFailed = errors.New("deployment failed")
	// ErrDeploymentTimedOut is matched by every TimedOutError.
	ErrDeploymentTimedOut = errors.New("deployment timed out")
	// ErrTreeTooDeep is returned when an action tree is deeper than the
	// configured bound.
	ErrTreeTooDeep = errors.New("action tree too deep")
)

// FailedError reports an action that reached a terminal failure status.
type FailedError struct {
	ActionID int
	Status   string
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("action %d failed with status: %s", e.ActionID, e.Status)
}

func (e *FailedError) Unwrap() error { return ErrDeploymentFailed }

// TimedOutError reports an action still not terminal when its watch budget
// ran out. Status is the last status observed, empty if none was.
type TimedOutError struct {
	ActionID int
	Status   string
	Timeout  time.Duration
}

func (e *TimedOutError) Error() string {
	status := e.Status
	if status == "" {
		status = "unknown"
	}
	return fmt.Sprintf("action %d timed out after %s, last status: %s", e.ActionID, e.Timeout, status)
}

func (e *TimedOutError) Unwrap() error { return ErrDeploymentTimedOut }

// ChildErrors collects the failures of an action tree's children. It unwraps
// to every member so errors.As can reach each FailedError or TimedOutError.
type ChildErrors struct {
	utilerrors.Aggregate
}

func (e *ChildErrors) Unwrap() []error { return e.Errors() }

// newChildErrors returns nil when errs holds no error.
func newChildErrors(errs []error) error {
	agg := utilerrors.NewAggregate(errs)
	if agg == nil {
		return nil
	}
	return &ChildErrors{Aggregate: agg}
}
