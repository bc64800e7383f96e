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
	"database/sql"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
	"go.mau.fi/util/ptr"

	"github.com/zkitefly/Icalingua-plus-plus/types"
)

// The persisted structs are the flat row shapes as stored in a table.
// Nested structures live in JSON text columns, numeric identifiers in
// string columns: some drivers hand 64-bit integers back as strings, so
// they're stored as strings outright and parsed on read to keep precision.

type persistedRoom struct {
	RoomID       string
	RoomName     string
	Avatar       string
	Index        int
	UnreadCount  int
	Priority     int
	UTime        int64
	Users        string
	LastMessage  string
	At           sql.NullString
	AutoDownload sql.NullBool
	DownloadPath sql.NullString
}

func (room *persistedRoom) sqlVariables() []any {
	return []any{
		room.RoomID,
		room.RoomName,
		room.Avatar,
		room.Index,
		room.UnreadCount,
		room.Priority,
		room.UTime,
		room.Users,
		room.LastMessage,
		room.At,
		room.AutoDownload,
		room.DownloadPath,
	}
}

func roomToPersisted(room *types.Room) (*persistedRoom, error) {
	if room == nil {
		return nil, nil
	}
	users, err := marshalList("users", room.Users)
	if err != nil {
		return nil, err
	}
	at, err := marshalList("at", room.At)
	if err != nil {
		return nil, err
	}
	lastMessage, err := json.Marshal(&room.LastMessage)
	if err != nil {
		return nil, fmt.Errorf("%w: lastMessage field: %v", ErrTranscode, err)
	}
	return &persistedRoom{
		RoomID:       strconv.FormatInt(room.RoomID, 10),
		RoomName:     room.RoomName,
		Avatar:       room.Avatar,
		Index:        room.Index,
		UnreadCount:  room.UnreadCount,
		Priority:     room.Priority,
		UTime:        room.UTime,
		Users:        users,
		LastMessage:  string(lastMessage),
		At:           sql.NullString{String: at, Valid: true},
		AutoDownload: nullableBool(room.AutoDownload),
		DownloadPath: nullableString(room.DownloadPath),
	}, nil
}

func roomFromPersisted(row *persistedRoom) (*types.Room, error) {
	if row == nil {
		return nil, nil
	}
	roomID, err := strconv.ParseInt(row.RoomID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid room ID %q", ErrTranscode, row.RoomID)
	}
	room := &types.Room{
		RoomID:      roomID,
		RoomName:    row.RoomName,
		Avatar:      row.Avatar,
		Index:       row.Index,
		UnreadCount: row.UnreadCount,
		Priority:    row.Priority,
		UTime:       row.UTime,
		Users:       []types.User{},
		At:          []types.At{},
		// Stored as NULL before the download path existed; absent means
		// the default (empty) path.
		DownloadPath: row.DownloadPath.String,
	}
	if err = json.Unmarshal([]byte(row.Users), &room.Users); err != nil {
		return nil, fmt.Errorf("%w: users field: %v", ErrTranscode, err)
	}
	if room.Users == nil {
		room.Users = []types.User{}
	}
	if err = json.Unmarshal([]byte(row.LastMessage), &room.LastMessage); err != nil {
		return nil, fmt.Errorf("%w: lastMessage field: %v", ErrTranscode, err)
	}
	if row.At.Valid && row.At.String != "" {
		if err = json.Unmarshal([]byte(row.At.String), &room.At); err != nil {
			return nil, fmt.Errorf("%w: at field: %v", ErrTranscode, err)
		}
		if room.At == nil {
			room.At = []types.At{}
		}
	}
	if row.AutoDownload.Valid {
		room.AutoDownload = ptr.Ptr(row.AutoDownload.Bool)
	}
	return room, nil
}

func scanRoom(row Scannable) (*types.Room, error) {
	var flat persistedRoom
	err := row.Scan(
		&flat.RoomID,
		&flat.RoomName,
		&flat.Avatar,
		&flat.Index,
		&flat.UnreadCount,
		&flat.Priority,
		&flat.UTime,
		&flat.Users,
		&flat.LastMessage,
		&flat.At,
		&flat.AutoDownload,
		&flat.DownloadPath,
	)
	if err != nil {
		return nil, err
	}
	return roomFromPersisted(&flat)
}

type persistedMessage struct {
	ID           string
	SenderID     string
	Username     string
	Content      sql.NullString
	Code         sql.NullString
	Timestamp    string
	Date         string
	Role         string
	File         sql.NullString
	Time         int64
	ReplyMessage sql.NullString
	At           sql.NullString
	Deleted      sql.NullBool
	System       sql.NullBool
	Reveal       sql.NullBool
	Flash        sql.NullBool
	Mirai        sql.NullString
	Title        sql.NullString
}

func (message *persistedMessage) sqlVariables() []any {
	return []any{
		message.ID,
		message.SenderID,
		message.Username,
		message.Content,
		message.Code,
		message.Timestamp,
		message.Date,
		message.Role,
		message.File,
		message.Time,
		message.ReplyMessage,
		message.At,
		message.Deleted,
		message.System,
		message.Reveal,
		message.Flash,
		message.Mirai,
		message.Title,
	}
}

// titleLimit matches the title column width.
const titleLimit = 24

func messageToPersisted(message *types.Message) (*persistedMessage, error) {
	if message == nil {
		return nil, nil
	}
	file, err := marshalNullable("file", message.File)
	if err != nil {
		return nil, err
	}
	replyMessage, err := marshalNullable("replyMessage", message.ReplyMessage)
	if err != nil {
		return nil, err
	}
	mirai, err := marshalNullable("mirai", message.Mirai)
	if err != nil {
		return nil, err
	}
	var at sql.NullString
	if message.At != nil {
		raw, err := json.Marshal(message.At)
		if err != nil {
			return nil, fmt.Errorf("%w: at field: %v", ErrTranscode, err)
		}
		at = sql.NullString{String: string(raw), Valid: true}
	}
	title := message.Title
	if runes := []rune(title); len(runes) > titleLimit {
		title = string(runes[:titleLimit])
	}
	return &persistedMessage{
		ID:           message.ID,
		SenderID:     strconv.FormatInt(message.SenderID, 10),
		Username:     message.Username,
		Content:      nullableString(message.Content),
		Code:         nullableString(message.Code),
		Timestamp:    message.Timestamp,
		Date:         message.Date,
		Role:         message.Role,
		File:         file,
		Time:         message.Time,
		ReplyMessage: replyMessage,
		At:           at,
		Deleted:      nullableBool(message.Deleted),
		System:       nullableBool(message.System),
		Reveal:       nullableBool(message.Reveal),
		Flash:        nullableBool(message.Flash),
		Mirai:        mirai,
		Title:        nullableString(title),
	}, nil
}

func messageFromPersisted(row *persistedMessage) (*types.Message, error) {
	if row == nil {
		return nil, nil
	}
	senderID, err := strconv.ParseInt(row.SenderID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid sender ID %q", ErrTranscode, row.SenderID)
	}
	message := &types.Message{
		ID:        row.ID,
		SenderID:  senderID,
		Username:  row.Username,
		Content:   row.Content.String,
		Code:      row.Code.String,
		Timestamp: row.Timestamp,
		Date:      row.Date,
		Role:      row.Role,
		Time:      row.Time,
		Title:     row.Title.String,
	}
	if message.File, err = unmarshalNullable[types.MessageFile]("file", row.File); err != nil {
		return nil, err
	}
	if message.ReplyMessage, err = unmarshalNullable[types.ReplyMessage]("replyMessage", row.ReplyMessage); err != nil {
		return nil, err
	}
	if message.Mirai, err = unmarshalNullable[types.Mirai]("mirai", row.Mirai); err != nil {
		return nil, err
	}
	if row.At.Valid && row.At.String != "" {
		if err = json.Unmarshal([]byte(row.At.String), &message.At); err != nil {
			return nil, fmt.Errorf("%w: at field: %v", ErrTranscode, err)
		}
	}
	if row.Deleted.Valid {
		message.Deleted = ptr.Ptr(row.Deleted.Bool)
	}
	if row.System.Valid {
		message.System = ptr.Ptr(row.System.Bool)
	}
	if row.Reveal.Valid {
		message.Reveal = ptr.Ptr(row.Reveal.Bool)
	}
	if row.Flash.Valid {
		message.Flash = ptr.Ptr(row.Flash.Bool)
	}
	return message, nil
}

func scanMessage(row Scannable) (*types.Message, error) {
	var flat persistedMessage
	err := row.Scan(
		&flat.ID,
		&flat.SenderID,
		&flat.Username,
		&flat.Content,
		&flat.Code,
		&flat.Timestamp,
		&flat.Date,
		&flat.Role,
		&flat.File,
		&flat.Time,
		&flat.ReplyMessage,
		&flat.At,
		&flat.Deleted,
		&flat.System,
		&flat.Reveal,
		&flat.Flash,
		&flat.Mirai,
		&flat.Title,
	)
	if err != nil {
		return nil, err
	}
	return messageFromPersisted(&flat)
}

// marshalList serializes a slice field, normalizing nil to an empty list so
// the persisted form is always a JSON array.
func marshalList[T any](field string, list []T) (string, error) {
	if list == nil {
		list = []T{}
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("%w: %s field: %v", ErrTranscode, field, err)
	}
	return string(raw), nil
}

func marshalNullable[T any](field string, value *T) (sql.NullString, error) {
	if value == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("%w: %s field: %v", ErrTranscode, field, err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func unmarshalNullable[T any](field string, raw sql.NullString) (*T, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var value T
	if err := json.Unmarshal([]byte(raw.String), &value); err != nil {
		return nil, fmt.Errorf("%w: %s field: %v", ErrTranscode, field, err)
	}
	return &value, nil
}

func nullableString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func nullableBool(value *bool) sql.NullBool {
	if value == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *value, Valid: true}
}
