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
	"slices"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/zkitefly/Icalingua-plus-plus/types"
)

type MessageQuery struct {
	db  *Database
	log zerolog.Logger
}

const messageColumns = `"_id", "senderId", "username", "content", "code", "timestamp", "date", "role", "file", "time", "replyMessage", "at", "deleted", "system", "reveal", "flash", "mirai", "title"`
const messageColumnCount = 18

// insertBatchSize caps how many messages go into one bulk INSERT.
const insertBatchSize = 200

// Add inserts a message into its conversation's table, creating the table
// first if needed. A repeated message ID fails with ErrDuplicateKey.
func (mq *MessageQuery) Add(ctx context.Context, roomID int64, message *types.Message) error {
	if message == nil {
		return nil
	}
	if err := mq.db.EnsureMsgTable(ctx, roomID); err != nil {
		return err
	}
	flat, err := messageToPersisted(message)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO %q (%s) VALUES (%s)`,
		MsgTableName(roomID), messageColumns, placeholderList(1, messageColumnCount))
	if _, err = mq.db.Exec(ctx, query, flat.sqlVariables()...); err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: message %s", ErrDuplicateKey, message.ID)
		}
		mq.log.Err(err).Int64("room_id", roomID).Str("message_id", message.ID).Msg("Failed to insert message")
		return err
	}
	return nil
}

// Update patches only the fields set in the patch. Unlike the other
// operations it doesn't create the conversation table: updates only target
// messages that are known to exist.
func (mq *MessageQuery) Update(ctx context.Context, roomID int64, messageID string, patch *types.MessagePatch) error {
	assignments, values, err := messagePatchAssignments(patch)
	if err != nil {
		return err
	}
	if len(assignments) == 0 {
		return nil
	}
	values = append(values, messageID)
	query := fmt.Sprintf(`UPDATE %q SET %s WHERE "_id"=$%d`,
		MsgTableName(roomID), strings.Join(assignments, ", "), len(values))
	if _, err = mq.db.Exec(ctx, query, values...); err != nil {
		mq.log.Err(err).Int64("room_id", roomID).Str("message_id", messageID).Msg("Failed to update message")
		return err
	}
	return nil
}

// Get returns a single message, or nil without an error when it doesn't
// exist.
func (mq *MessageQuery) Get(ctx context.Context, roomID int64, messageID string) (*types.Message, error) {
	if err := mq.db.EnsureMsgTable(ctx, roomID); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %q WHERE "_id"=$1`, messageColumns, MsgTableName(roomID))
	message, err := scanMessage(mq.db.QueryRow(ctx, query, messageID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return message, err
}

// FetchPage returns a window of messages. The window is selected newest
// first, then flipped so the returned page reads chronologically: the last
// element is the most recent message of the page.
func (mq *MessageQuery) FetchPage(ctx context.Context, roomID int64, skip, limit int) ([]*types.Message, error) {
	if err := mq.db.EnsureMsgTable(ctx, roomID); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %q ORDER BY "time" DESC LIMIT $1 OFFSET $2`,
		messageColumns, MsgTableName(roomID))
	rows, err := mq.db.Query(ctx, query, limit, skip)
	if err != nil {
		mq.log.Err(err).Int64("room_id", roomID).Msg("Failed to query messages")
		return nil, err
	}
	defer rows.Close()
	var messages []*types.Message
	for rows.Next() {
		message, err := scanMessage(rows)
		if errors.Is(err, ErrTranscode) {
			mq.log.Err(err).Int64("room_id", roomID).Msg("Skipping message with malformed persisted data")
			continue
		} else if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	slices.Reverse(messages)
	return messages, rows.Err()
}

// AddMany bulk-inserts messages in batches, skipping IDs that already exist
// instead of failing on them. Batches are dispatched concurrently; callers
// must not rely on ordering between them.
func (mq *MessageQuery) AddMany(ctx context.Context, roomID int64, messages []*types.Message) error {
	if len(messages) == 0 {
		return nil
	}
	if err := mq.db.EnsureMsgTable(ctx, roomID); err != nil {
		return err
	}
	flat := make([]*persistedMessage, 0, len(messages))
	for _, message := range messages {
		if message == nil {
			mq.log.Warn().Int64("room_id", roomID).Msg("Skipping nil message in bulk insert")
			continue
		}
		persisted, err := messageToPersisted(message)
		if err != nil {
			// One malformed message shouldn't sink the whole batch.
			mq.log.Err(err).Str("message_id", message.ID).Msg("Skipping message that failed to transcode")
			continue
		}
		flat = append(flat, persisted)
	}
	table := MsgTableName(roomID)
	var group errgroup.Group
	for start := 0; start < len(flat); start += insertBatchSize {
		batch := flat[start:min(start+insertBatchSize, len(flat))]
		group.Go(func() error {
			return mq.insertBatch(ctx, table, batch)
		})
	}
	return group.Wait()
}

func (mq *MessageQuery) insertBatch(ctx context.Context, table string, batch []*persistedMessage) error {
	valueStrings := make([]string, len(batch))
	values := make([]any, 0, len(batch)*messageColumnCount)
	for i, message := range batch {
		valueStrings[i] = "(" + placeholderList(i*messageColumnCount+1, messageColumnCount) + ")"
		values = append(values, message.sqlVariables()...)
	}
	var query string
	if mq.db.Dialect == MySQL {
		query = fmt.Sprintf(`INSERT IGNORE INTO %q (%s) VALUES %s`,
			table, messageColumns, strings.Join(valueStrings, ", "))
	} else {
		query = fmt.Sprintf(`INSERT INTO %q (%s) VALUES %s ON CONFLICT ("_id") DO NOTHING`,
			table, messageColumns, strings.Join(valueStrings, ", "))
	}
	if _, err := mq.db.Exec(ctx, query, values...); err != nil {
		mq.log.Err(err).Str("table", table).Int("batch_size", len(batch)).Msg("Failed to bulk insert messages")
		return err
	}
	return nil
}

func placeholderList(start, count int) string {
	parts := make([]string, count)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}

func messagePatchAssignments(patch *types.MessagePatch) ([]string, []any, error) {
	var assignments []string
	var values []any
	add := func(column string, value any) {
		values = append(values, value)
		assignments = append(assignments, fmt.Sprintf("%q=$%d", column, len(values)))
	}
	if patch.Username != nil {
		add("username", *patch.Username)
	}
	if patch.Content != nil {
		add("content", nullableString(*patch.Content))
	}
	if patch.Code != nil {
		add("code", nullableString(*patch.Code))
	}
	if patch.Timestamp != nil {
		add("timestamp", *patch.Timestamp)
	}
	if patch.Date != nil {
		add("date", *patch.Date)
	}
	if patch.Role != nil {
		add("role", *patch.Role)
	}
	if patch.File != nil {
		file, err := marshalNullable("file", patch.File)
		if err != nil {
			return nil, nil, err
		}
		add("file", file)
	}
	if patch.ReplyMessage != nil {
		replyMessage, err := marshalNullable("replyMessage", patch.ReplyMessage)
		if err != nil {
			return nil, nil, err
		}
		add("replyMessage", replyMessage)
	}
	if patch.At != nil {
		at, err := json.Marshal(*patch.At)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: at field: %v", ErrTranscode, err)
		}
		add("at", string(at))
	}
	if patch.Deleted != nil {
		add("deleted", *patch.Deleted)
	}
	if patch.System != nil {
		add("system", *patch.System)
	}
	if patch.Reveal != nil {
		add("reveal", *patch.Reveal)
	}
	if patch.Flash != nil {
		add("flash", *patch.Flash)
	}
	if patch.Mirai != nil {
		mirai, err := marshalNullable("mirai", patch.Mirai)
		if err != nil {
			return nil, nil, err
		}
		add("mirai", mirai)
	}
	if patch.Title != nil {
		title := *patch.Title
		if runes := []rune(title); len(runes) > titleLimit {
			title = string(runes[:titleLimit])
		}
		add("title", nullableString(title))
	}
	return assignments, values, nil
}
