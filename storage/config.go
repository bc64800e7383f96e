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
	"os"
	"path/filepath"

	"github.com/go-sql-driver/mysql"
)

// Config selects a storage backend and carries its connection parameters.
// The sqlite shape only uses DataPath; the host-based shapes use the
// remaining fields. Port falls back to the backend's default when zero.
type Config struct {
	Type     string `yaml:"type"`
	DataPath string `yaml:"data_path,omitempty"`
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Database string `yaml:"database,omitempty"`
}

func (config *Config) validate(dialect Dialect) error {
	if dialect == SQLite {
		if config.DataPath == "" {
			return fmt.Errorf("data_path is required for sqlite")
		}
		return nil
	}
	if config.Host == "" || config.Username == "" || config.Database == "" {
		return fmt.Errorf("host, username and database are required for %s", dialect)
	}
	return nil
}

// dsn builds the driver connection string for the given account. The sqlite
// variant creates the databases directory on the way.
func (config *Config) dsn(dialect Dialect, account int64) (string, error) {
	switch dialect {
	case SQLite:
		dir := filepath.Join(config.DataPath, "databases")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
		file := filepath.Join(dir, fmt.Sprintf("icalingua.%d.db", account))
		return fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(wal)", file), nil
	case MySQL:
		port := config.Port
		if port == 0 {
			port = 3306
		}
		mysqlConfig := mysql.NewConfig()
		mysqlConfig.User = config.Username
		mysqlConfig.Passwd = config.Password
		mysqlConfig.Net = "tcp"
		mysqlConfig.Addr = fmt.Sprintf("%s:%d", config.Host, port)
		mysqlConfig.DBName = config.Database
		// ANSI_QUOTES makes MySQL accept the double-quoted identifiers used
		// throughout this package.
		mysqlConfig.Params = map[string]string{"sql_mode": "'ANSI_QUOTES'"}
		return mysqlConfig.FormatDSN(), nil
	default:
		port := config.Port
		if port == 0 {
			port = 5432
		}
		// The per-account schema keeps multiple accounts apart on a shared
		// server. It's created on connect if it doesn't exist yet.
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable options='-c search_path=%s'",
			config.Host, port, config.Username, config.Password, config.Database, accountSchema(account),
		), nil
	}
}

func accountSchema(account int64) string {
	return fmt.Sprintf("icalingua_%d", account)
}
