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

	"github.com/rs/zerolog"

	"github.com/zkitefly/Icalingua-plus-plus/types"
)

// IgnoredChatQuery manages the user's ignore list. The schema is flat, so
// nothing here goes through the transcoder.
type IgnoredChatQuery struct {
	db  *Database
	log zerolog.Logger
}

func (icq *IgnoredChatQuery) GetAll(ctx context.Context) ([]*types.IgnoredChatInfo, error) {
	rows, err := icq.db.Query(ctx, `SELECT "id", "name" FROM "ignoredChats"`)
	if err != nil {
		icq.log.Err(err).Msg("Failed to query ignored chats")
		return nil, err
	}
	defer rows.Close()
	var chats []*types.IgnoredChatInfo
	for rows.Next() {
		var chat types.IgnoredChatInfo
		if err = rows.Scan(&chat.ID, &chat.Name); err != nil {
			return nil, err
		}
		chats = append(chats, &chat)
	}
	return chats, rows.Err()
}

func (icq *IgnoredChatQuery) IsIgnored(ctx context.Context, id int64) (bool, error) {
	var count int
	err := icq.db.QueryRow(ctx, `SELECT COUNT(*) FROM "ignoredChats" WHERE "id"=$1`, id).Scan(&count)
	if err != nil {
		icq.log.Err(err).Int64("chat_id", id).Msg("Failed to check ignored chat")
		return false, err
	}
	return count > 0, nil
}

// Add inserts an ignore-list entry. A repeated ID fails with
// ErrDuplicateKey.
func (icq *IgnoredChatQuery) Add(ctx context.Context, info *types.IgnoredChatInfo) error {
	_, err := icq.db.Exec(ctx, `INSERT INTO "ignoredChats" ("id", "name") VALUES ($1, $2)`, info.ID, info.Name)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: ignored chat %d", ErrDuplicateKey, info.ID)
		}
		icq.log.Err(err).Int64("chat_id", info.ID).Msg("Failed to insert ignored chat")
		return err
	}
	return nil
}

func (icq *IgnoredChatQuery) Remove(ctx context.Context, id int64) error {
	_, err := icq.db.Exec(ctx, `DELETE FROM "ignoredChats" WHERE "id"=$1`, id)
	if err != nil {
		icq.log.Err(err).Int64("chat_id", id).Msg("Failed to delete ignored chat")
	}
	return err
}
