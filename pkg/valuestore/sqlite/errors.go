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
package sqlite

import (
	"errors"

	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/teradata-labs/qfleet/pkg/valuestore"
)

// classify maps SQLite result codes onto the store error taxonomy. Unknown
// failures are treated as transient so the caller keeps the write queued.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if classified := valuestore.ClassifyCommon(op, err); classified != nil {
		return classified
	}

	var sqliteErr *moderncsqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_CONSTRAINT, sqlite3.SQLITE_MISMATCH, sqlite3.SQLITE_TOOBIG:
			return valuestore.Constraint(op, "sqlite rejected the row", err)
		}
	}
	return valuestore.Unavailable(op, err)
}
