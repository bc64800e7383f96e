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

package types

import "encoding/json"

// MessageFile describes an attachment of a message.
type MessageFile struct {
	Type string `json:"type,omitempty"`
	URL  string `json:"url,omitempty"`
	Size int64  `json:"size,omitempty"`
	Name string `json:"name,omitempty"`
	FID  string `json:"fid,omitempty"`
}

// ReplyMessage is the embedded reference to the message being replied to.
type ReplyMessage struct {
	ID       string        `json:"_id"`
	Username string        `json:"username"`
	Content  string        `json:"content"`
	Files    []MessageFile `json:"files,omitempty"`
}

// Mirai carries a protocol-specific extension payload. The payload itself
// is opaque to the storage layer.
type Mirai struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Message is one chat message. ID is unique within its conversation.
// Time is the epoch timestamp used for ordering; Timestamp and Date are
// preformatted display strings.
type Message struct {
	ID           string
	SenderID     int64
	Username     string
	Content      string
	Code         string
	Timestamp    string
	Date         string
	Role         string
	File         *MessageFile
	Time         int64
	ReplyMessage *ReplyMessage
	At           []At
	Deleted      *bool
	System       *bool
	Reveal       *bool
	Flash        *bool
	Mirai        *Mirai
	Title        string
}

// MessagePatch carries the fields a message update may change, usually on
// recall or edit events. Nil fields are left untouched.
type MessagePatch struct {
	Username     *string
	Content      *string
	Code         *string
	Timestamp    *string
	Date         *string
	Role         *string
	File         *MessageFile
	ReplyMessage *ReplyMessage
	At           *[]At
	Deleted      *bool
	System       *bool
	Reveal       *bool
	Flash        *bool
	Mirai        *Mirai
	Title        *string
}
