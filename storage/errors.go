// Icalingua++ - A cross-platform QQ client.
// Copyright (C) 2022 Icalingua++ contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package storage

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrConnect means the database could not be opened or reached.
	ErrConnect = errors.New("failed to connect to database")
	// ErrMigration means a schema upgrade step failed.
	ErrMigration = errors.New("database migration failed")
	// ErrTranscode means a persisted payload could not be decoded back into
	// its canonical form.
	ErrTranscode = errors.New("malformed persisted record")
	// ErrDuplicateKey means an insert hit a unique constraint.
	ErrDuplicateKey = errors.New("duplicate key")
)

// isDuplicateKey recognizes unique constraint violations across the three
// supported drivers.
func isDuplicateKey(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY ||
			sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
