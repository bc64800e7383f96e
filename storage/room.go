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
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/zkitefly/Icalingua-plus-plus/types"
)

type RoomQuery struct {
	db  *Database
	log zerolog.Logger
}

const roomColumns = `"roomId", "roomName", "avatar", "index", "unreadCount", "priority", "utime", "users", "lastMessage", "at", "autoDownload", "downloadPath"`

// Add inserts a room and makes sure its message table exists. Inserting a
// room ID that is already present fails with ErrDuplicateKey.
func (rq *RoomQuery) Add(ctx context.Context, room *types.Room) error {
	if room == nil {
		return nil
	}
	if err := rq.db.EnsureMsgTable(ctx, room.RoomID); err != nil {
		return err
	}
	flat, err := roomToPersisted(room)
	if err != nil {
		return err
	}
	_, err = rq.db.Exec(ctx,
		`INSERT INTO "rooms" (`+roomColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		flat.sqlVariables()...)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: room %d", ErrDuplicateKey, room.RoomID)
		}
		rq.log.Err(err).Int64("room_id", room.RoomID).Msg("Failed to insert room")
		return err
	}
	return nil
}

// Update patches only the fields set in the patch.
func (rq *RoomQuery) Update(ctx context.Context, roomID int64, patch *types.RoomPatch) error {
	assignments, values, err := roomPatchAssignments(patch)
	if err != nil {
		return err
	}
	if len(assignments) == 0 {
		return nil
	}
	values = append(values, strconv.FormatInt(roomID, 10))
	query := fmt.Sprintf(`UPDATE "rooms" SET %s WHERE "roomId"=$%d`, strings.Join(assignments, ", "), len(values))
	if _, err = rq.db.Exec(ctx, query, values...); err != nil {
		rq.log.Err(err).Int64("room_id", roomID).Msg("Failed to update room")
		return err
	}
	return nil
}

// Remove deletes the room row. The room's message table stays behind.
func (rq *RoomQuery) Remove(ctx context.Context, roomID int64) error {
	_, err := rq.db.Exec(ctx, `DELETE FROM "rooms" WHERE "roomId"=$1`, strconv.FormatInt(roomID, 10))
	if err != nil {
		rq.log.Err(err).Int64("room_id", roomID).Msg("Failed to delete room")
	}
	return err
}

// Get returns a single room, or nil without an error when it doesn't exist.
func (rq *RoomQuery) Get(ctx context.Context, roomID int64) (*types.Room, error) {
	row := rq.db.QueryRow(ctx, `SELECT `+roomColumns+` FROM "rooms" WHERE "roomId"=$1`, strconv.FormatInt(roomID, 10))
	room, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return room, err
}

// GetAll returns every room, newest activity first.
func (rq *RoomQuery) GetAll(ctx context.Context) ([]*types.Room, error) {
	return rq.getAll(ctx, `SELECT `+roomColumns+` FROM "rooms" ORDER BY "utime" DESC`)
}

// CountUnread counts the rooms with unread messages at or above the given
// priority.
func (rq *RoomQuery) CountUnread(ctx context.Context, minPriority int) (int, error) {
	row := rq.db.QueryRow(ctx, `SELECT COUNT(*) FROM "rooms" WHERE "unreadCount">0 AND "priority">=$1`, minPriority)
	var count int
	if err := row.Scan(&count); err != nil {
		rq.log.Err(err).Msg("Failed to count unread rooms")
		return 0, err
	}
	return count, nil
}

// FirstUnread returns the most recently active unread room at exactly the
// given priority, or nil when there is none. The result goes through the
// transcoder like every other read path.
func (rq *RoomQuery) FirstUnread(ctx context.Context, priority int) (*types.Room, error) {
	row := rq.db.QueryRow(ctx,
		`SELECT `+roomColumns+` FROM "rooms" WHERE "unreadCount">0 AND "priority"=$1 ORDER BY "utime" DESC LIMIT 1`,
		priority)
	room, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return room, err
}

func (rq *RoomQuery) getAll(ctx context.Context, query string, args ...any) ([]*types.Room, error) {
	rows, err := rq.db.Query(ctx, query, args...)
	if err != nil {
		rq.log.Err(err).Msg("Failed to query rooms")
		return nil, err
	}
	defer rows.Close()
	var rooms []*types.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if errors.Is(err, ErrTranscode) {
			// One corrupt payload shouldn't sink the whole result set.
			rq.log.Err(err).Msg("Skipping room with malformed persisted data")
			continue
		} else if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

func roomPatchAssignments(patch *types.RoomPatch) ([]string, []any, error) {
	var assignments []string
	var values []any
	add := func(column string, value any) {
		values = append(values, value)
		assignments = append(assignments, fmt.Sprintf("%q=$%d", column, len(values)))
	}
	if patch.RoomName != nil {
		add("roomName", *patch.RoomName)
	}
	if patch.Avatar != nil {
		add("avatar", *patch.Avatar)
	}
	if patch.Index != nil {
		add("index", *patch.Index)
	}
	if patch.UnreadCount != nil {
		add("unreadCount", *patch.UnreadCount)
	}
	if patch.Priority != nil {
		add("priority", *patch.Priority)
	}
	if patch.UTime != nil {
		add("utime", *patch.UTime)
	}
	if patch.Users != nil {
		users, err := marshalList("users", *patch.Users)
		if err != nil {
			return nil, nil, err
		}
		add("users", users)
	}
	if patch.LastMessage != nil {
		lastMessage, err := json.Marshal(patch.LastMessage)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: lastMessage field: %v", ErrTranscode, err)
		}
		add("lastMessage", string(lastMessage))
	}
	if patch.At != nil {
		at, err := marshalList("at", *patch.At)
		if err != nil {
			return nil, nil, err
		}
		add("at", at)
	}
	if patch.AutoDownload != nil {
		add("autoDownload", *patch.AutoDownload)
	}
	if patch.DownloadPath != nil {
		add("downloadPath", *patch.DownloadPath)
	}
	return assignments, values, nil
}
