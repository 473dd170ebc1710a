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
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/mikelane/prpreview/internal/comment"
	"github.com/mikelane/prpreview/internal/database"
	"github.com/mikelane/prpreview/internal/deploy"
	"github.com/mikelane/prpreview/internal/devopness"
	"github.com/mikelane/prpreview/internal/metrics"
	"github.com/mikelane/prpreview/internal/provision"
)

var _ = Describe("Orchestrator", func() {
	var (
		ctx      context.Context
		platform *fakePlatform
		forge    *fakeForge
		store    database.Store
		orch     *Orchestrator
	)

	event := func(action string) *Event {
		return &Event{Action: action, Number: 42, Branch: "feature/login", Owner: "acme", Repo: "site"}
	}

	load := func() database.Database {
		db, err := store.Load(ctx)
		Expect(err).NotTo(HaveOccurred())
		return db
	}

	BeforeEach(func() {
		ctx = context.Background()
		platform = newFakePlatform()
		forge = newFakeForge()
		store = database.NewVariableStore(platform, platform.variable.ID)

		orch = New(Dependencies{
			Store: store,
			Provisioner: provision.New(platform, provision.Environment{
				AppURL:        "https://app.devopness.com/",
				ProjectID:     1,
				EnvironmentID: 2,
				ServerID:      3,
				CredentialID:  4,
				Repository:    "acme/site",
			}),
			Watcher:  deploy.NewWatcher(platform, deploy.Options{Interval: 5 * time.Millisecond, Timeout: time.Second}),
			Reporter: comment.NewReporter(forge, "acme", "site"),
			ServerID: 3,
			Metrics:  metrics.NewRecorder(),
		})
	})

	Context("when a pull request is opened", func() {
		It("provisions, deploys and publishes the preview", func() {
			Expect(orch.Handle(ctx, event(ActionOpened))).To(Succeed())

			rec, ok := load().Get(42)
			Expect(ok).To(BeTrue())
			Expect(rec.BranchName).To(Equal("feature/login"))
			Expect(rec.Comment.ID).NotTo(BeZero())
			Expect(rec.Comment.Content).To(BeEmpty(), "comment bodies are not persisted")
			Expect(rec.Application.ID).NotTo(BeZero())
			Expect(rec.Application.URL).To(HavePrefix("https://app.devopness.com/projects/1/environments/2/applications/"))
			Expect(rec.VirtualHost.Port).To(Equal(database.MinPort))
			Expect(rec.Deploy.ID).NotTo(BeZero())
			Expect(rec.PreviewURL).To(Equal("http://10.0.0.5:9000/"))

			Expect(platform.vhostNames).To(ConsistOf("10.0.0.5:9000"))
			Expect(forge.history).To(HaveLen(4))
			Expect(forge.body(rec.Comment.ID)).To(ContainSubstring("Access the **Application Preview** in http://10.0.0.5:9000/"))
		})

		It("assigns the next free port when other previews exist", func() {
			platform.variable.Value = `{"7":{"branch_name":"other","virtual_host":{"id":1,"port":9000}}}`

			Expect(orch.Handle(ctx, event(ActionOpened))).To(Succeed())

			db := load()
			Expect(db).To(HaveLen(2))
			Expect(db[42].VirtualHost.Port).To(Equal(9001))
			Expect(db[7].VirtualHost.Port).To(Equal(9000))
		})

		It("aborts without resources when the comment cannot be created", func() {
			forge.createErr = errors.New("forbidden")

			Expect(orch.Handle(ctx, event(ActionOpened))).To(MatchError(ContainSubstring("forbidden")))
			Expect(platform.platformCalls()).To(BeZero())
			Expect(load()).To(BeEmpty())
		})

		It("reports a provisioning failure in the comment", func() {
			platform.appErr = errors.New("quota exceeded")

			err := orch.Handle(ctx, event(ActionOpened))
			Expect(err).To(MatchError(provision.ErrProvisioningFailed))

			rec, ok := load().Get(42)
			Expect(ok).To(BeTrue())
			Expect(forge.body(rec.Comment.ID)).To(And(
				ContainSubstring("**Failed**"),
				ContainSubstring("quota exceeded"),
			))
		})

		It("reports a failed deployment in the comment", func() {
			platform.statuses = []string{devopness.ActionStatusRunning, devopness.ActionStatusFailed}

			err := orch.Handle(ctx, event(ActionOpened))
			Expect(err).To(MatchError(deploy.ErrDeploymentFailed))

			rec, _ := load().Get(42)
			Expect(rec.PreviewURL).To(BeEmpty())
			Expect(forge.body(rec.Comment.ID)).To(And(
				ContainSubstring("🚢 Deployment Failed"),
				ContainSubstring("failed with status: failed"),
			))
		})

		It("reuses the resources of a record that never got a comment", func() {
			platform.variable.Value = `{"42":{"branch_name":"feature/login","application":{"id":5},"virtual_host":{"id":6,"port":9003}}}`

			Expect(orch.Handle(ctx, event(ActionOpened))).To(Succeed())

			Expect(platform.count("CreateApplication")).To(BeZero())
			Expect(platform.count("CreateVirtualHost")).To(BeZero())
			rec, ok := load().Get(42)
			Expect(ok).To(BeTrue())
			Expect(rec.Comment.ID).NotTo(BeZero())
			Expect(rec.Application.ID).To(Equal(5))
			Expect(rec.VirtualHost.ID).To(Equal(6))
			Expect(rec.PreviewURL).To(Equal("http://10.0.0.5:9003/"))
		})

		It("keeps an incomplete record when the comment cannot be created", func() {
			platform.variable.Value = `{"42":{"branch_name":"feature/login","application":{"id":5},"virtual_host":{"id":6,"port":9003}}}`
			forge.createErr = errors.New("forbidden")

			Expect(orch.Handle(ctx, event(ActionOpened))).To(MatchError(ContainSubstring("forbidden")))

			rec, ok := load().Get(42)
			Expect(ok).To(BeTrue())
			Expect(rec.Application.ID).To(Equal(5))
			Expect(rec.VirtualHost.ID).To(Equal(6))
		})

		It("redeploys when the preview already exists", func() {
			Expect(orch.Handle(ctx, event(ActionOpened))).To(Succeed())
			Expect(orch.Handle(ctx, event(ActionReopened))).To(Succeed())

			Expect(platform.count("CreateApplication")).To(Equal(1))
			Expect(platform.count("AddPipelineAction")).To(Equal(2))
		})
	})

	Context("when a pull request is synchronized", func() {
		It("does nothing without a recorded preview", func() {
			Expect(orch.HandleSynchronize(ctx, database.Database{}, event(ActionSynchronize))).To(Succeed())
			Expect(platform.platformCalls()).To(BeZero())
			Expect(forge.history).To(BeEmpty())
		})

		It("does nothing for a record without a comment", func() {
			db := database.Database{42: {
				BranchName:  "x",
				Application: database.Application{ID: 5},
				VirtualHost: database.VirtualHost{ID: 6},
			}}

			Expect(orch.HandleSynchronize(ctx, db, event(ActionSynchronize))).To(Succeed())
			Expect(platform.platformCalls()).To(BeZero())
			Expect(platform.count("UpdateVariable")).To(BeZero())
			Expect(forge.history).To(BeEmpty())
			Expect(db[42].BranchName).To(Equal("x"))
		})

		It("redeploys the recorded preview", func() {
			Expect(orch.Handle(ctx, event(ActionOpened))).To(Succeed())
			before, _ := load().Get(42)

			Expect(orch.Handle(ctx, event(ActionSynchronize))).To(Succeed())

			after, _ := load().Get(42)
			Expect(after.Deploy.ID).NotTo(Equal(before.Deploy.ID))
			Expect(after.Application).To(Equal(before.Application))
			Expect(after.VirtualHost).To(Equal(before.VirtualHost))
			Expect(after.PreviewURL).To(Equal(before.PreviewURL))
			Expect(platform.count("CreateVirtualHost")).To(Equal(1))
			Expect(forge.body(after.Comment.ID)).To(ContainSubstring("Preview Environment Ready"))
		})

		It("fails when the record has no virtual host", func() {
			db := database.Database{42: {BranchName: "feature/login", Comment: database.Comment{ID: 1234}, Application: database.Application{ID: 55}}}
			forge.comments[1234] = "old"

			err := orch.HandleSynchronize(ctx, db, event(ActionSynchronize))
			Expect(err).To(MatchError(ErrIncompleteRecord))
			Expect(platform.count("AddPipelineAction")).To(BeZero())
			Expect(forge.body(1234)).To(ContainSubstring("no virtual host recorded"))
		})
	})

	Context("when a pull request is closed", func() {
		It("does nothing without a recorded preview", func() {
			Expect(orch.Handle(ctx, event(ActionClosed))).To(Succeed())
			Expect(platform.platformCalls()).To(BeZero())
		})

		It("skips deletes for resources that were never created", func() {
			platform.variable.Value = `{"42":{"branch_name":"feature/login","comment":{"id":0}}}`

			Expect(orch.Handle(ctx, event(ActionClosed))).To(Succeed())
			Expect(platform.count("DeleteApplication")).To(BeZero())
			Expect(platform.count("DeleteVirtualHost")).To(BeZero())
			Expect(load()).To(BeEmpty())
		})

		It("removes the resources and forgets the preview", func() {
			Expect(orch.Handle(ctx, event(ActionOpened))).To(Succeed())
			rec, _ := load().Get(42)

			Expect(orch.Handle(ctx, event(ActionClosed))).To(Succeed())

			Expect(platform.count("DeleteApplication")).To(Equal(1))
			Expect(platform.count("DeleteVirtualHost")).To(Equal(1))
			Expect(load()).NotTo(HaveKey(42))
			Expect(forge.body(rec.Comment.ID)).To(ContainSubstring("Preview environment cleaned up."))
		})

		It("forgets the preview even when deletes fail", func() {
			Expect(orch.Handle(ctx, event(ActionOpened))).To(Succeed())
			platform.deleteErr = errors.New("gone")

			Expect(orch.Handle(ctx, event(ActionClosed))).To(Succeed())
			Expect(load()).To(BeEmpty())
		})

		It("frees the port for the next preview", func() {
			Expect(orch.Handle(ctx, event(ActionOpened))).To(Succeed())
			Expect(orch.Handle(ctx, event(ActionClosed))).To(Succeed())

			next := event(ActionOpened)
			next.Number = 43
			Expect(orch.Handle(ctx, next)).To(Succeed())
			Expect(load()[43].VirtualHost.Port).To(Equal(database.MinPort))
		})
	})

	It("ignores actions without a handler", func() {
		Expect(orch.Handle(ctx, event("labeled"))).To(Succeed())
		Expect(platform.platformCalls()).To(BeZero())
	})
})
