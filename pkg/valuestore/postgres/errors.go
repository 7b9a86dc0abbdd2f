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
package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/teradata-labs/qfleet/pkg/valuestore"
)

// classify maps PostgreSQL errors onto the store error taxonomy by SQLSTATE
// class. Unknown failures are treated as transient so the caller keeps the
// write queued.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if classified := valuestore.ClassifyCommon(op, err); classified != nil {
		return classified
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		case "22": // data exception
			return valuestore.Constraint(op, "invalid data: "+pgErr.Message, err)
		case "23": // integrity constraint violation
			return valuestore.Constraint(op, pgErr.ConstraintName+": "+pgErr.Message, err)
		}
	}
	return valuestore.Unavailable(op, err)
}
