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
	"fmt"
	"regexp"
	"strings"

	"github.com/zkitefly/Icalingua-plus-plus/storage/upgrades"
)

type Dialect = upgrades.Dialect

const (
	SQLite   = upgrades.SQLite
	MySQL    = upgrades.MySQL
	Postgres = upgrades.Postgres
)

func parseDialect(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "sqlite":
		return SQLite, nil
	case "mysql":
		return MySQL, nil
	case "postgres", "postgresql":
		return Postgres, nil
	default:
		return 0, fmt.Errorf("unknown database type %q", name)
	}
}

func driverName(dialect Dialect) string {
	switch dialect {
	case SQLite:
		return "sqlite"
	case MySQL:
		return "mysql"
	default:
		return "postgres"
	}
}

var placeholderRegexp = regexp.MustCompile(`\$\d+`)

// mutateQuery rewrites $N placeholders into the ? form MySQL expects.
// Arguments are always passed in placeholder order and never repeated, so
// the rewrite can't reorder anything. Identifiers stay double-quoted on all
// dialects: the MySQL DSN pins sql_mode=ANSI_QUOTES.
func (db *Database) mutateQuery(query string) string {
	if db.Dialect == MySQL {
		return placeholderRegexp.ReplaceAllString(query, "?")
	}
	return query
}
