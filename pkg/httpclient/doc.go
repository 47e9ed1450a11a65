// Copyright 2025 Tom Barlow
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
// Package httpclient builds the HTTP client used to talk to the managed
// service.
//
// Clients never retry. A health probe is a single request: an answer
// means the service is up, a failure means it is not, and the caller
// decides what to do next.
//
// Every request is tagged with a User-Agent and logged at debug level
// with sensitive query parameters and credentials redacted:
//
//	client, err := httpclient.New(httpclient.Config{
//	    Timeout:   5 * time.Second,
//	    UserAgent: "sidekick/1.2.0",
//	    Logger:    logger,
//	})
package httpclient
