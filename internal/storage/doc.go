/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package storage implements local project persistence and the SQL page store.
// A project directory holds the canonical JSON manifest (visory.json), written
// transactionally with timestamped backups, and a disposable per-project SQLite
// index at <project>/.visory/index.sqlite for bubble text search and rendered
// page previews. PageStore keeps pages in sqlite or postgres for the service.
package storage
