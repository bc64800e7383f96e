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

// Package types contains the canonical in-memory records shared between the
// chat protocol layer and the storage layer.
package types

// User is one participant of a room.
type User struct {
	ID       int64  `json:"_id"`
	Username string `json:"username"`
}

// At marks a mention of a specific user.
type At struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// LastMessage is the embedded summary of the most recent message in a room.
type LastMessage struct {
	Content   string `json:"content,omitempty"`
	Username  string `json:"username,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Room is one conversation summary. Negative room IDs are group chats,
// positive ones are direct chats.
type Room struct {
	RoomID       int64
	RoomName     string
	Avatar       string
	Index        int
	UnreadCount  int
	Priority     int
	UTime        int64
	Users        []User
	LastMessage  LastMessage
	At           []At
	AutoDownload *bool
	DownloadPath string
}

// RoomPatch carries the fields a room update may change. Nil fields are
// left untouched.
type RoomPatch struct {
	RoomName     *string
	Avatar       *string
	Index        *int
	UnreadCount  *int
	Priority     *int
	UTime        *int64
	Users        *[]User
	LastMessage  *LastMessage
	At           *[]At
	AutoDownload *bool
	DownloadPath *string
}
