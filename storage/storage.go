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

// Package storage persists rooms, messages and the ignore list across
// interchangeable SQL backends: embedded SQLite, MySQL and PostgreSQL.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/zkitefly/Icalingua-plus-plus/storage/upgrades"
)

type Scannable interface {
	Scan(...any) error
}

// Database owns a single shared handle to one account's storage backend.
// Connect must succeed before any of the query structs is used.
type Database struct {
	conn    *sql.DB
	log     zerolog.Logger
	account int64

	Dialect Dialect

	Room        *RoomQuery
	Message     *MessageQuery
	IgnoredChat *IgnoredChatQuery

	tableCreate singleflight.Group
	knownTables sync.Map
}

// Open validates the config, opens the underlying handle and wires up the
// query structs. It doesn't touch the schema; call Connect for that.
func Open(config *Config, account int64, log zerolog.Logger) (*Database, error) {
	dialect, err := parseDialect(config.Type)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	if err = config.validate(dialect); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	dsn, err := config.dsn(dialect, account)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	conn, err := sql.Open(driverName(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	db := &Database{
		conn:    conn,
		log:     log,
		account: account,
		Dialect: dialect,
	}
	db.Room = &RoomQuery{
		db:  db,
		log: log.With().Str("db_section", "room").Logger(),
	}
	db.Message = &MessageQuery{
		db:  db,
		log: log.With().Str("db_section", "message").Logger(),
	}
	db.IgnoredChat = &IgnoredChatQuery{
		db:  db,
		log: log.With().Str("db_section", "ignored_chat").Logger(),
	}
	return db, nil
}

// Connect pings the backend, provisions the fixed tables and brings the
// schema to the latest version. A database without a version row is a fresh
// install: its tables were just created at the latest shape, so the version
// row is written as Latest directly. Exactly one version row exists once
// Connect returns.
func (db *Database) Connect(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrConnect, err)
	}
	if db.Dialect == Postgres {
		query := fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %q`, accountSchema(db.account))
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("%w: %v", ErrConnect, err)
		}
	}
	if err := db.createFixedTables(ctx); err != nil {
		return fmt.Errorf("failed to provision tables: %w", err)
	}
	version, ok, err := upgrades.GetVersion(ctx, db.conn)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if !ok {
		if err = upgrades.SetVersion(ctx, db.conn, upgrades.Latest); err != nil {
			return fmt.Errorf("%w: %v", ErrMigration, err)
		}
		return nil
	}
	if version != upgrades.Latest {
		if err = upgrades.Run(ctx, db.log, db.Dialect, db.conn, version); err != nil {
			return fmt.Errorf("%w: %v", ErrMigration, err)
		}
	}
	return nil
}

func (db *Database) Close() error {
	return db.conn.Close()
}

func (db *Database) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.conn.ExecContext(ctx, db.mutateQuery(query), args...)
}

func (db *Database) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.conn.QueryContext(ctx, db.mutateQuery(query), args...)
}

func (db *Database) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return db.conn.QueryRowContext(ctx, db.mutateQuery(query), args...)
}

const roomsTable = `CREATE TABLE IF NOT EXISTS "rooms" (
	"roomId"       VARCHAR(255) PRIMARY KEY,
	"roomName"     VARCHAR(255) NOT NULL,
	"avatar"       TEXT NOT NULL,
	"index"        INTEGER NOT NULL,
	"unreadCount"  INTEGER NOT NULL,
	"priority"     INTEGER NOT NULL,
	"utime"        BIGINT NOT NULL,
	"users"        TEXT NOT NULL,
	"lastMessage"  TEXT NOT NULL,
	"at"           TEXT,
	"autoDownload" BOOLEAN,
	"downloadPath" TEXT%s
)`

const ignoredChatsTable = `CREATE TABLE IF NOT EXISTS "ignoredChats" (
	"id"   BIGINT PRIMARY KEY,
	"name" VARCHAR(255) NOT NULL
)`

func (db *Database) createFixedTables(ctx context.Context) error {
	var registryTable, roomsIndex string
	switch db.Dialect {
	case SQLite:
		registryTable = `"id" INTEGER PRIMARY KEY AUTOINCREMENT`
	case MySQL:
		registryTable = `"id" INTEGER PRIMARY KEY AUTO_INCREMENT`
	case Postgres:
		registryTable = `"id" SERIAL PRIMARY KEY`
	}
	if db.Dialect == MySQL {
		// MySQL has no CREATE INDEX IF NOT EXISTS, so the index goes into
		// the table definition instead.
		roomsIndex = `,
	INDEX "rooms_utime_idx" ("utime")`
	}
	statements := []string{
		`CREATE TABLE IF NOT EXISTS "dbVersion" ("dbVersion" INTEGER PRIMARY KEY)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "msgTableName" (
	%s,
	"tableName" VARCHAR(255) NOT NULL
)`, registryTable),
		fmt.Sprintf(roomsTable, roomsIndex),
		ignoredChatsTable,
	}
	if db.Dialect != MySQL {
		statements = append(statements, `CREATE INDEX IF NOT EXISTS "rooms_utime_idx" ON "rooms" ("utime")`)
	}
	for _, statement := range statements {
		if _, err := db.conn.ExecContext(ctx, statement); err != nil {
			return err
		}
	}
	return nil
}
