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
	"context"
	"fmt"
)

// MsgTableName returns the message table name for a conversation. The sign
// of the ID is part of the name: group chats are negative, direct chats
// positive, so the two kinds can never collide.
func MsgTableName(roomID int64) string {
	return fmt.Sprintf("msg%d", roomID)
}

const msgTableDDL = `CREATE TABLE IF NOT EXISTS %q (
	"_id"          VARCHAR(255) PRIMARY KEY,
	"senderId"     VARCHAR(255) NOT NULL,
	"username"     VARCHAR(255) NOT NULL,
	"content"      TEXT,
	"code"         TEXT,
	"timestamp"    VARCHAR(255) NOT NULL,
	"date"         VARCHAR(255) NOT NULL,
	"role"         VARCHAR(255) NOT NULL,
	"file"         TEXT,
	"time"         BIGINT NOT NULL,
	"replyMessage" TEXT,
	"at"           TEXT,
	"deleted"      BOOLEAN,
	"system"       BOOLEAN,
	"reveal"       BOOLEAN,
	"flash"        BOOLEAN,
	"mirai"        TEXT,
	"title"        VARCHAR(24)
)`

// EnsureMsgTable lazily provisions the message table for a conversation and
// records it in the registry, table first. Repeated calls are no-ops;
// concurrent first calls for the same conversation are collapsed into one
// create through the singleflight group.
func (db *Database) EnsureMsgTable(ctx context.Context, roomID int64) error {
	table := MsgTableName(roomID)
	if _, ok := db.knownTables.Load(table); ok {
		return nil
	}
	_, err, _ := db.tableCreate.Do(table, func() (any, error) {
		return nil, db.createMsgTable(ctx, table)
	})
	if err != nil {
		return err
	}
	db.knownTables.Store(table, struct{}{})
	return nil
}

func (db *Database) createMsgTable(ctx context.Context, table string) error {
	var count int
	row := db.QueryRow(ctx, `SELECT COUNT(*) FROM "msgTableName" WHERE "tableName"=$1`, table)
	if err := row.Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	if _, err := db.Exec(ctx, fmt.Sprintf(msgTableDDL, table)); err != nil {
		return fmt.Errorf("failed to create message table %s: %w", table, err)
	}
	_, err := db.Exec(ctx, `INSERT INTO "msgTableName" ("tableName") VALUES ($1)`, table)
	if err != nil {
		return fmt.Errorf("failed to register message table %s: %w", table, err)
	}
	return nil
}
