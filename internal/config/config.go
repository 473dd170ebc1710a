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

package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"
)

// ErrMissingInput is returned when a required input is not set.
var ErrMissingInput = errors.New("missing required input")

// MissingInputError lists every required input that was not provided.
type MissingInputError struct {
	Names []string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingInput, strings.Join(e.Names, ", "))
}

// Unwrap allows errors.Is(err, ErrMissingInput).
func (e *MissingInputError) Unwrap() error {
	return ErrMissingInput
}

// Database backends.
const (
	BackendVariable  = "variable"
	BackendConfigMap = "configmap"
)

// Defaults for the optional settings.
const (
	DefaultWatchInterval     = 30 * time.Second
	DefaultWatchTimeout      = 30 * time.Minute
	DefaultWatchMaxDepth     = 8
	DefaultWatchMaxParallel  = 4
	DefaultWebhookAddr       = ":8080"
	DefaultWebhookQueueSize  = 64
	DefaultRequestsPerSecond = 5.0
)

// Config holds every setting of a pr-preview invocation.
type Config struct {
	Token         string `json:"token,omitempty"`
	Email         string `json:"email,omitempty"`
	Password      string `json:"password,omitempty"`
	APIURL        string `json:"apiUrl,omitempty"`
	AppURL        string `json:"appUrl,omitempty"`
	ProjectID     int    `json:"projectId,omitempty"`
	EnvironmentID int    `json:"environmentId,omitempty"`
	ServerID      int    `json:"serverId,omitempty"`
	CredentialID  int    `json:"credentialId,omitempty"`
	// DatabaseFileID is the platform variable holding the preview database.
	DatabaseFileID int    `json:"databaseFileId,omitempty"`
	Repository     string `json:"repository,omitempty"`

	Watch    WatchConfig    `json:"watch,omitempty"`
	Database DatabaseConfig `json:"database,omitempty"`
	Webhook  WebhookConfig  `json:"webhook,omitempty"`
	Platform PlatformConfig `json:"platform,omitempty"`
}

// WatchConfig tunes deployment polling.
type WatchConfig struct {
	Interval    metav1.Duration `json:"interval,omitempty"`
	Timeout     metav1.Duration `json:"timeout,omitempty"`
	MaxDepth    int             `json:"maxDepth,omitempty"`
	MaxParallel int             `json:"maxParallel,omitempty"`
}

// DatabaseConfig selects where the preview database lives.
type DatabaseConfig struct {
	Backend   string `json:"backend,omitempty"`
	Namespace string `json:"namespace,omitempty"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key,omitempty"`
}

// WebhookConfig configures serve mode.
type WebhookConfig struct {
	Addr      string `json:"addr,omitempty"`
	Secret    string `json:"secret,omitempty"`
	QueueSize int    `json:"queueSize,omitempty"`
}

// PlatformConfig configures the deployment platform client.
type PlatformConfig struct {
	RequestsPerSecond float64 `json:"requestsPerSecond,omitempty"`
}

// New returns a Config with defaults applied.
func New() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills unset optional settings.
func (c *Config) ApplyDefaults() {
	if c.Watch.Interval.Duration <= 0 {
		c.Watch.Interval.Duration = DefaultWatchInterval
	}
	if c.Watch.Timeout.Duration <= 0 {
		c.Watch.Timeout.Duration = DefaultWatchTimeout
	}
	if c.Watch.MaxDepth <= 0 {
		c.Watch.MaxDepth = DefaultWatchMaxDepth
	}
	if c.Watch.MaxParallel <= 0 {
		c.Watch.MaxParallel = DefaultWatchMaxParallel
	}
	if c.Database.Backend == "" {
		c.Database.Backend = BackendVariable
	}
	if c.Webhook.Addr == "" {
		c.Webhook.Addr = DefaultWebhookAddr
	}
	if c.Webhook.QueueSize <= 0 {
		c.Webhook.QueueSize = DefaultWebhookQueueSize
	}
	if c.Platform.RequestsPerSecond == 0 {
		c.Platform.RequestsPerSecond = DefaultRequestsPerSecond
	}
}

// LoadFile merges a YAML file into c. Keys absent from the file keep their
// current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	c.ApplyDefaults()
	return nil
}

// input describes one required setting and where it can be read from.
type input struct {
	name string
	str  *string
	num  *int
}

func (c *Config) inputs() []input {
	return []input{
		{name: "token", str: &c.Token},
		{name: "email", str: &c.Email},
		{name: "password", str: &c.Password},
		{name: "api_url", str: &c.APIURL},
		{name: "app_url", str: &c.AppURL},
		{name: "project_id", num: &c.ProjectID},
		{name: "environment_id", num: &c.EnvironmentID},
		{name: "server_id", num: &c.ServerID},
		{name: "credential_id", num: &c.CredentialID},
		{name: "database_file_id", num: &c.DatabaseFileID},
		{name: "repository", str: &c.Repository},
	}
}

// envName returns the GitHub Actions variable for an action input.
func envName(name string) string {
	return "INPUT_" + strings.ToUpper(name)
}

// flagName returns the command-line flag for an action input.
func flagName(name string) string {
	return strings.ReplaceAll(name, "_", "-")
}

// LoadEnv reads GitHub Actions inputs through lookup, usually os.LookupEnv.
// Empty values are ignored.
func (c *Config) LoadEnv(lookup func(string) (string, bool)) error {
	var errs []error
	for _, in := range c.inputs() {
		v, ok := lookup(envName(in.name))
		v = strings.TrimSpace(v)
		if !ok || v == "" {
			continue
		}
		if in.str != nil {
			*in.str = v
			continue
		}
		n, err := parseID(in.name, v)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*in.num = n
	}
	return errors.Join(errs...)
}

func parseID(name, v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("input %s must be a positive integer, got %q", name, v)
	}
	return n, nil
}

// BindFlags registers a flag for every setting on fs. Flags only override
// other sources when set explicitly, so bind them to a scratch Config and
// merge with ApplyFlags.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	for _, in := range c.inputs() {
		if in.str != nil {
			fs.StringVar(in.str, flagName(in.name), *in.str, fmt.Sprintf("Action input %s (env %s)", in.name, envName(in.name)))
		} else {
			fs.IntVar(in.num, flagName(in.name), *in.num, fmt.Sprintf("Action input %s (env %s)", in.name, envName(in.name)))
		}
	}
	fs.DurationVar(&c.Watch.Interval.Duration, "watch-interval", c.Watch.Interval.Duration, "Deployment poll interval")
	fs.DurationVar(&c.Watch.Timeout.Duration, "watch-timeout", c.Watch.Timeout.Duration, "Timeout for each watched action")
	fs.IntVar(&c.Watch.MaxDepth, "watch-max-depth", c.Watch.MaxDepth, "Maximum depth of the watched action tree")
	fs.IntVar(&c.Watch.MaxParallel, "watch-max-parallel", c.Watch.MaxParallel, "Child actions watched concurrently")
	fs.StringVar(&c.Database.Backend, "database-backend", c.Database.Backend, "Preview database backend (variable or configmap)")
	fs.StringVar(&c.Database.Namespace, "database-namespace", c.Database.Namespace, "Namespace of the database ConfigMap")
	fs.StringVar(&c.Database.Name, "database-name", c.Database.Name, "Name of the database ConfigMap")
	fs.StringVar(&c.Database.Key, "database-key", c.Database.Key, "Data key of the database ConfigMap")
	fs.StringVar(&c.Webhook.Addr, "webhook-addr", c.Webhook.Addr, "Listen address in serve mode")
	fs.StringVar(&c.Webhook.Secret, "webhook-secret", c.Webhook.Secret, "Webhook HMAC secret")
	fs.IntVar(&c.Webhook.QueueSize, "webhook-queue-size", c.Webhook.QueueSize, "Pending events accepted in serve mode")
	fs.Float64Var(&c.Platform.RequestsPerSecond, "platform-rps", c.Platform.RequestsPerSecond, "Platform API requests per second, negative disables throttling")
}

// ApplyFlags copies the flags that were set on fs from src into c.
func (c *Config) ApplyFlags(fs *pflag.FlagSet, src *Config) {
	dst := map[string]func(){}
	for i, in := range c.inputs() {
		from := src.inputs()[i]
		if in.str != nil {
			dst[flagName(in.name)] = func() { *in.str = *from.str }
		} else {
			dst[flagName(in.name)] = func() { *in.num = *from.num }
		}
	}
	dst["watch-interval"] = func() { c.Watch.Interval = src.Watch.Interval }
	dst["watch-timeout"] = func() { c.Watch.Timeout = src.Watch.Timeout }
	dst["watch-max-depth"] = func() { c.Watch.MaxDepth = src.Watch.MaxDepth }
	dst["watch-max-parallel"] = func() { c.Watch.MaxParallel = src.Watch.MaxParallel }
	dst["database-backend"] = func() { c.Database.Backend = src.Database.Backend }
	dst["database-namespace"] = func() { c.Database.Namespace = src.Database.Namespace }
	dst["database-name"] = func() { c.Database.Name = src.Database.Name }
	dst["database-key"] = func() { c.Database.Key = src.Database.Key }
	dst["webhook-addr"] = func() { c.Webhook.Addr = src.Webhook.Addr }
	dst["webhook-secret"] = func() { c.Webhook.Secret = src.Webhook.Secret }
	dst["webhook-queue-size"] = func() { c.Webhook.QueueSize = src.Webhook.QueueSize }
	dst["platform-rps"] = func() { c.Platform.RequestsPerSecond = src.Platform.RequestsPerSecond }

	fs.Visit(func(f *pflag.Flag) {
		if apply, ok := dst[f.Name]; ok {
			apply()
		}
	})
}

// Load builds the effective configuration: file, then environment, then the
// flags explicitly set on fs (bound to flags via BindFlags).
func Load(path string, lookup func(string) (string, bool), fs *pflag.FlagSet, flags *Config) (*Config, error) {
	c := New()
	if path != "" {
		if err := c.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := c.LoadEnv(lookup); err != nil {
		return nil, err
	}
	if fs != nil && flags != nil {
		c.ApplyFlags(fs, flags)
	}
	c.ApplyDefaults()
	return c, nil
}

// Validate reports every missing required input at once.
func (c *Config) Validate() error {
	var missing []string
	for _, in := range c.inputs() {
		if in.str != nil && strings.TrimSpace(*in.str) == "" {
			missing = append(missing, in.name)
		}
		if in.num != nil && *in.num <= 0 {
			missing = append(missing, in.name)
		}
	}
	if len(missing) > 0 {
		return &MissingInputError{Names: missing}
	}
	return c.validateOptional()
}

// ValidateLogin checks only the inputs the login command uses.
func (c *Config) ValidateLogin() error {
	var missing []string
	for name, v := range map[string]string{"email": c.Email, "password": c.Password, "api_url": c.APIURL} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &MissingInputError{Names: missing}
	}
	return nil
}

func (c *Config) validateOptional() error {
	switch c.Database.Backend {
	case BackendVariable:
	case BackendConfigMap:
		if c.Database.Namespace == "" || c.Database.Name == "" {
			return fmt.Errorf("database backend %q requires database.namespace and database.name", BackendConfigMap)
		}
	default:
		return fmt.Errorf("unknown database backend %q", c.Database.Backend)
	}
	return nil
}
