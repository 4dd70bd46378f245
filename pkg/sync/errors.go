/*
 * Copyright 2025 FTTH Labs.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package sync

import "errors"

var (
	errACSEndpointRequired  = errors.New("acs endpoint is required")
	errUnexpectedStatusCode = errors.New("unexpected status code")
	errFailedToFetchPage    = errors.New("failed to fetch device page")
	errFailedToListSource   = errors.New("failed to list source records")
)
