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

package provision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mikelane/prpreview/internal/database"
	"github.com/mikelane/prpreview/internal/devopness"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

var (
	// ErrProvisioningFailed is returned when the platform rejects a create call.
	ErrProvisioningFailed = errors.New("provisioning failed")
	// ErrNoPortAvailable is returned when every preview port is taken.
	ErrNoPortAvailable = errors.New("no preview port available")
	// ErrServerLookupFailed is returned when server metadata cannot be read.
	ErrServerLookupFailed = errors.New("server lookup failed")
)

// Virtual host settings used for every preview.
const (
	VirtualHostTypeIPBased = "ip-based"

	programmingLanguage = "html"
	engineVersion       = "none"
	framework           = "none"
)

// Platform is the subset of the deployment platform API the provisioner uses.
type Platform interface {
	CreateApplication(ctx context.Context, environmentID int, req *devopness.ApplicationRequest) (*devopness.Application, error)
	DeleteApplication(ctx context.Context, id int) error
	CreateVirtualHost(ctx context.Context, environmentID int, req *devopness.VirtualHostRequest) (*devopness.VirtualHost, error)
	DeleteVirtualHost(ctx context.Context, id int) error
	GetServer(ctx context.Context, id int) (*devopness.Server, error)
}

// Environment identifies where previews are provisioned.
type Environment struct {
	// AppURL is the base URL of the platform web UI.
	AppURL        string
	ProjectID     int
	EnvironmentID int
	ServerID      int
	CredentialID  int
	Repository    string
}

// Provisioner creates and removes the platform resources of a preview.
type Provisioner struct {
	platform Platform
	env      Environment
}

// New returns a Provisioner for env.
func New(p Platform, env Environment) *Provisioner {
	env.AppURL = strings.TrimRight(env.AppURL, "/")
	return &Provisioner{platform: p, env: env}
}

// ApplicationName returns the deterministic application name for a PR.
func ApplicationName(pr int) string {
	return fmt.Sprintf("pr-%d-preview", pr)
}

// PreviewURL returns the address a preview is served on.
func PreviewURL(ip string, port int) string {
	return fmt.Sprintf("http://%s:%d/", ip, port)
}

func (p *Provisioner) resourceURL(kind string, id int) string {
	return fmt.Sprintf("%s/projects/%d/environments/%d/%s/%d",
		p.env.AppURL, p.env.ProjectID, p.env.EnvironmentID, kind, id)
}

// CreateApplication registers the application serving pr from branch.
func (p *Provisioner) CreateApplication(ctx context.Context, pr int, branch string) (database.Application, error) {
	logger := log.FromContext(ctx)
	req := &devopness.ApplicationRequest{
		CredentialID:        p.env.CredentialID,
		Repository:          p.env.Repository,
		Name:                ApplicationName(pr),
		ProgrammingLanguage: programmingLanguage,
		EngineVersion:       engineVersion,
		Framework:           framework,
		DefaultBranch:       branch,
	}

	app, err := p.platform.CreateApplication(ctx, p.env.EnvironmentID, req)
	if err != nil {
		return database.Application{}, fmt.Errorf("%w: create application %s: %w", ErrProvisioningFailed, req.Name, err)
	}

	res := database.Application{ID: app.ID, URL: p.resourceURL("applications", app.ID)}
	logger.Info("Created application", "application", app.ID, "name", req.Name)
	return res, nil
}

// CreateVirtualHost allocates a free port and binds server-ip:port to the
// application.
func (p *Provisioner) CreateVirtualHost(ctx context.Context, db database.Database, applicationID int) (database.VirtualHost, error) {
	logger := log.FromContext(ctx)

	port, ok := database.AllocatePort(db)
	if !ok {
		return database.VirtualHost{}, fmt.Errorf("%w: ports %d-%d are all assigned", ErrNoPortAvailable, database.MinPort, database.MaxPort)
	}

	ip, err := p.ServerIP(ctx)
	if err != nil {
		return database.VirtualHost{}, err
	}

	req := &devopness.VirtualHostRequest{
		Type:          VirtualHostTypeIPBased,
		Name:          fmt.Sprintf("%s:%d", ip, port),
		ApplicationID: applicationID,
	}
	vh, err := p.platform.CreateVirtualHost(ctx, p.env.EnvironmentID, req)
	if err != nil {
		return database.VirtualHost{}, fmt.Errorf("%w: create virtual host %s: %w", ErrProvisioningFailed, req.Name, err)
	}

	res := database.VirtualHost{ID: vh.ID, Port: port, URL: p.resourceURL("virtual-hosts", vh.ID)}
	logger.Info("Created virtual host", "virtualHost", vh.ID, "name", req.Name)
	return res, nil
}

// DeleteApplication removes an application. Callers treat failures as
// non-fatal.
func (p *Provisioner) DeleteApplication(ctx context.Context, id int) error {
	if err := p.platform.DeleteApplication(ctx, id); err != nil {
		return fmt.Errorf("delete application %d: %w", id, err)
	}
	log.FromContext(ctx).Info("Deleted application", "application", id)
	return nil
}

// DeleteVirtualHost removes a virtual host. Callers treat failures as
// non-fatal.
func (p *Provisioner) DeleteVirtualHost(ctx context.Context, id int) error {
	if err := p.platform.DeleteVirtualHost(ctx, id); err != nil {
		return fmt.Errorf("delete virtual host %d: %w", id, err)
	}
	log.FromContext(ctx).Info("Deleted virtual host", "virtualHost", id)
	return nil
}

// GetServer reads the metadata of the preview server.
func (p *Provisioner) GetServer(ctx context.Context) (*devopness.Server, error) {
	server, err := p.platform.GetServer(ctx, p.env.ServerID)
	if err != nil {
		return nil, fmt.Errorf("%w: server %d: %w", ErrServerLookupFailed, p.env.ServerID, err)
	}
	return server, nil
}

// ServerIP returns the IP address of the preview server.
func (p *Provisioner) ServerIP(ctx context.Context) (string, error) {
	server, err := p.GetServer(ctx)
	if err != nil {
		return "", err
	}
	if server.IPAddress == "" {
		return "", fmt.Errorf("%w: server %d has no IP address", ErrServerLookupFailed, p.env.ServerID)
	}
	return server.IPAddress, nil
}
