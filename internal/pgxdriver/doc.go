// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pgxdriver builds the bounded pgx connection pool used by the
// PostgreSQL value store.
//
// The pool size is fixed at construction. When every connection is busy,
// Acquire queues until one frees up or the caller's context expires, so a
// per-call timeout turns pool exhaustion into a StoreUnavailable error
// instead of unbounded connection growth.
//
// Usage:
//
//	pool, err := pgxdriver.NewPool(ctx, cfg, tracer)
//	defer pool.Close()
package pgxdriver
