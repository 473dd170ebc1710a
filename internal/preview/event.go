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
	"errors"
	"fmt"

	gogithub "github.com/google/go-github/v66/github"
)

// Pull request actions with a handler.
const (
	ActionOpened      = "opened"
	ActionReopened    = "reopened"
	ActionSynchronize = "synchronize"
	ActionClosed      = "closed"
)

// EventPullRequest is the only event type handled.
const EventPullRequest = "pull_request"

var (
	// ErrUnsupportedEvent is returned for events other than pull_request.
	ErrUnsupportedEvent = errors.New("unsupported event")
	// ErrInvalidPayload is returned when a payload lacks a required field.
	ErrInvalidPayload = errors.New("invalid event payload")
)

// Event is the part of a pull_request event the orchestrator needs.
type Event struct {
	Action string
	Number int
	Branch string
	Owner  string
	Repo   string
}

// ParseEvent decodes a pull_request payload, either a webhook body or the
// event file of a workflow run.
func ParseEvent(eventName string, payload []byte) (*Event, error) {
	if eventName == "" || len(payload) == 0 {
		return nil, fmt.Errorf("%w: event name or payload is not available", ErrInvalidPayload)
	}
	if eventName != EventPullRequest {
		return nil, fmt.Errorf("%w: %q, expected %q", ErrUnsupportedEvent, eventName, EventPullRequest)
	}

	raw, err := gogithub.ParseWebHook(eventName, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	pr, ok := raw.(*gogithub.PullRequestEvent)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected payload type %T", ErrInvalidPayload, raw)
	}

	if pr.PullRequest == nil {
		return nil, fmt.Errorf("%w: pull request is not available", ErrInvalidPayload)
	}
	ev := &Event{
		Action: pr.GetAction(),
		Number: pr.GetNumber(),
		Branch: pr.GetPullRequest().GetHead().GetRef(),
		Owner:  pr.GetRepo().GetOwner().GetLogin(),
		Repo:   pr.GetRepo().GetName(),
	}
	if ev.Number == 0 {
		ev.Number = pr.GetPullRequest().GetNumber()
	}

	var missing []string
	if ev.Action == "" {
		missing = append(missing, "action")
	}
	if ev.Number == 0 {
		missing = append(missing, "pull_request.number")
	}
	if ev.Branch == "" {
		missing = append(missing, "pull_request.head.ref")
	}
	if ev.Owner == "" || ev.Repo == "" {
		missing = append(missing, "repository")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %v", ErrInvalidPayload, missing)
	}
	return ev, nil
}
