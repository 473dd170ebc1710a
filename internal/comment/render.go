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
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/mikelane/prpreview/internal/database"
	"github.com/nao1215/markdown"
)

// Phase is a step of the preview lifecycle shown in the tracking comment.
type Phase int

const (
	PhasePreparing Phase = iota
	PhaseInitialized
	PhaseDeploying
	PhaseFailed
	PhaseReady
	PhaseSynchronizing
	PhaseCleaningUp
	PhaseCleanedUp
)

var phaseNames = map[Phase]string{
	PhasePreparing:     "preparing",
	PhaseInitialized:   "initialized",
	PhaseDeploying:     "deploying",
	PhaseFailed:        "failed",
	PhaseReady:         "ready",
	PhaseSynchronizing: "synchronizing",
	PhaseCleaningUp:    "cleaning-up",
	PhaseCleanedUp:     "cleaned-up",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "Phase(" + strconv.Itoa(int(p)) + ")"
}

// Details are the values a phase may show. Zero resources are omitted.
type Details struct {
	Application database.Application
	VirtualHost database.VirtualHost
	Deploy      database.Deploy
	PreviewURL  string
	// Error is shown by PhaseFailed.
	Error string
	// Interval is the poll interval quoted by PhaseDeploying.
	Interval time.Duration
}

// DetailsFor collects the displayable parts of a record.
func DetailsFor(rec *database.Record) Details {
	if rec == nil {
		return Details{}
	}
	return Details{
		Application: rec.Application,
		VirtualHost: rec.VirtualHost,
		Deploy:      rec.Deploy,
		PreviewURL:  rec.PreviewURL,
	}
}

type renderFunc func(md *markdown.Markdown, d Details)

var renderers = map[Phase]renderFunc{
	PhasePreparing:     renderPreparing,
	PhaseInitialized:   renderInitialized,
	PhaseDeploying:     renderDeploying,
	PhaseFailed:        renderFailed,
	PhaseReady:         renderReady,
	PhaseSynchronizing: renderSynchronizing,
	PhaseCleaningUp:    renderCleaningUp,
	PhaseCleanedUp:     renderCleanedUp,
}

// Render returns the comment body for a phase.
func Render(p Phase, d Details) (string, error) {
	render, ok := renderers[p]
	if !ok {
		return "", fmt.Errorf("no template for phase %s", p)
	}
	buf := new(bytes.Buffer)
	md := markdown.NewMarkdown(buf)
	render(md, d)
	if err := md.Build(); err != nil {
		return "", fmt.Errorf("render %s comment: %w", p, err)
	}
	return buf.String(), nil
}

func renderPreparing(md *markdown.Markdown, _ Details) {
	md.PlainText("🚀 Preparing your preview environment...")
}

func renderInitialized(md *markdown.Markdown, d Details) {
	md.PlainText("✅ Preview environment initialized")
	resources(md, d)
	md.PlainText("")
	md.PlainText("⚡ Deployment Starting...")
}

func renderDeploying(md *markdown.Markdown, d Details) {
	md.PlainText("✅ Preview environment initialized")
	resources(md, d)
	md.PlainText("")
	md.PlainText("🚢 Deployment in Progress")
	deployment(md, d)
	md.PlainText("")
	md.PlainTextf("🔍 Monitoring every %s...", interval(d.Interval))
}

func renderFailed(md *markdown.Markdown, d Details) {
	md.PlainTextf("❌ Preview environment initialization %s", markdown.Bold("Failed"))
	resources(md, d)
	if d.Deploy.ID != 0 {
		md.PlainText("")
		md.PlainText("🚢 Deployment Failed")
		deployment(md, d)
	}
	md.PlainText("")
	md.PlainTextf("%s %s", markdown.Bold("Error:"), d.Error)
	md.PlainText("")
	md.PlainText("Please check the Deployment logs in Devopness for more details.")
}

func renderReady(md *markdown.Markdown, d Details) {
	md.PlainText("🎉 Preview Environment Ready!")
	resources(md, d)
	md.PlainText("")
	md.PlainText("🚢 Deployment Completed")
	deployment(md, d)
	md.PlainText("")
	md.PlainTextf("Access the %s in %s", markdown.Bold("Application Preview"), d.PreviewURL)
}

func renderSynchronizing(md *markdown.Markdown, _ Details) {
	md.PlainText("🔄 Synchronizing Preview Environment...")
}

func renderCleaningUp(md *markdown.Markdown, _ Details) {
	md.PlainText("🧹 Cleaning Up Preview Environment...")
}

func renderCleanedUp(md *markdown.Markdown, _ Details) {
	md.PlainText("🧹 Preview environment cleaned up.")
}

// resources writes the application and virtual host links that exist.
func resources(md *markdown.Markdown, d Details) {
	if d.Application.ID == 0 && d.VirtualHost.ID == 0 {
		return
	}
	md.PlainText("")
	if d.Application.ID != 0 {
		md.PlainTextf("%s %s", markdown.Bold("Application:"), markdown.Link(strconv.Itoa(d.Application.ID), d.Application.URL))
	}
	if d.VirtualHost.ID != 0 {
		md.PlainTextf("%s %s", markdown.Bold("Virtual Host:"), markdown.Link(strconv.Itoa(d.VirtualHost.ID), d.VirtualHost.URL))
	}
}

func deployment(md *markdown.Markdown, d Details) {
	if d.Deploy.ID == 0 {
		return
	}
	md.PlainText("")
	md.PlainTextf("%s %d - %s", markdown.Bold("Deployment ID:"), d.Deploy.ID, markdown.Link("View details", d.Deploy.URL))
}

func interval(d time.Duration) string {
	if d <= 0 {
		d = 30 * time.Second
	}
	if d%time.Minute == 0 {
		if d == time.Minute {
			return "minute"
		}
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
	return fmt.Sprintf("%d seconds", int(d.Round(time.Second)/time.Second))
}
