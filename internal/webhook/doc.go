// Copyright 2025 The Previewd Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package webhook receives GitHub pull request webhooks for PR previews.
//
// Deliveries must carry a valid X-Hub-Signature-256 header computed with the
// webhook secret; anything else is rejected with HTTP 401. Accepted
// pull_request events are queued and answered with HTTP 202. A single worker
// drains the queue, so events are handled one at a time and the preview
// database is only written by one handler of this process at once.
//
// A full queue answers HTTP 503 so GitHub records a failed delivery that can
// be redelivered. Requests are also rate-limited per repository with a token
// bucket; requests over the limit receive HTTP 429 Too Many Requests.
//
// The server also answers /healthz and, when configured, /metrics.
package webhook
