package storage

import (
	"database/sql"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/util/ptr"

	"github.com/zkitefly/Icalingua-plus-plus/types"
)

func TestRoomTranscode_RoundTrip(t *testing.T) {
	room := &types.Room{
		RoomID:      -987654321,
		RoomName:    "test group",
		Avatar:      "https://example.com/avatar.png",
		Index:       2,
		UnreadCount: 5,
		Priority:    3,
		UTime:       1645000000000,
		Users: []types.User{
			{ID: 10001, Username: "alice"},
			{ID: 10002, Username: "bob"},
		},
		LastMessage:  types.LastMessage{Content: "hello", Username: "alice", Timestamp: "12:34"},
		At:           []types.At{{ID: 10001, Text: "@alice"}},
		AutoDownload: ptr.Ptr(true),
		DownloadPath: "/home/user/downloads",
	}

	flat, err := roomToPersisted(room)
	require.NoError(t, err)
	assert.Equal(t, "-987654321", flat.RoomID)

	back, err := roomFromPersisted(flat)
	require.NoError(t, err)
	assert.Equal(t, room, back)
}

func TestRoomTranscode_EmptyNestedFields(t *testing.T) {
	room := &types.Room{RoomID: 114514, RoomName: "minimal", UTime: 1000}

	flat, err := roomToPersisted(room)
	require.NoError(t, err)
	assert.Equal(t, "[]", flat.Users)
	assert.Equal(t, "{}", flat.LastMessage)
	assert.False(t, flat.AutoDownload.Valid)
	assert.False(t, flat.DownloadPath.Valid)

	back, err := roomFromPersisted(flat)
	require.NoError(t, err)
	assert.Equal(t, []types.User{}, back.Users)
	assert.Equal(t, []types.At{}, back.At)
	assert.Equal(t, types.LastMessage{}, back.LastMessage)
	assert.Nil(t, back.AutoDownload)
	assert.Equal(t, "", back.DownloadPath)
}

func TestRoomTranscode_Nil(t *testing.T) {
	flat, err := roomToPersisted(nil)
	require.NoError(t, err)
	assert.Nil(t, flat)

	room, err := roomFromPersisted(nil)
	require.NoError(t, err)
	assert.Nil(t, room)
}

func TestRoomTranscode_Malformed(t *testing.T) {
	_, err := roomFromPersisted(&persistedRoom{RoomID: "not-a-number", Users: "[]", LastMessage: "{}"})
	require.ErrorIs(t, err, ErrTranscode)

	_, err = roomFromPersisted(&persistedRoom{RoomID: "1", Users: "{broken", LastMessage: "{}"})
	require.ErrorIs(t, err, ErrTranscode)

	_, err = roomFromPersisted(&persistedRoom{RoomID: "1", Users: "[]", LastMessage: "<html>"})
	require.ErrorIs(t, err, ErrTranscode)
}

func TestMessageTranscode_RoundTrip(t *testing.T) {
	message := &types.Message{
		ID:        "msg-roundtrip",
		SenderID:  9007199254740993, // above 2^53, the reason IDs persist as strings
		Username:  "bob",
		Content:   "hello there",
		Code:      "some code",
		Timestamp: "12:00:00",
		Date:      "2022/02/22",
		Role:      "member",
		File: &types.MessageFile{
			Type: "image/png",
			URL:  "https://example.com/image.png",
			Size: 2048,
			Name: "image.png",
		},
		Time: 1645500000000,
		ReplyMessage: &types.ReplyMessage{
			ID:       "msg-original",
			Username: "alice",
			Content:  "original",
		},
		At:      []types.At{{ID: 10001, Text: "@alice"}},
		Deleted: ptr.Ptr(false),
		Flash:   ptr.Ptr(true),
		Mirai:   &types.Mirai{Type: "forward", Data: json.RawMessage(`{"resId":"abc"}`)},
		Title:   "群主",
	}

	flat, err := messageToPersisted(message)
	require.NoError(t, err)
	assert.Equal(t, "9007199254740993", flat.SenderID)

	back, err := messageFromPersisted(flat)
	require.NoError(t, err)
	assert.Equal(t, message, back)
}

func TestMessageTranscode_MinimalRoundTrip(t *testing.T) {
	message := &types.Message{
		ID:        "msg-minimal",
		SenderID:  10001,
		Username:  "alice",
		Timestamp: "12:00",
		Date:      "2022/01/01",
		Role:      "member",
		Time:      1000,
	}

	flat, err := messageToPersisted(message)
	require.NoError(t, err)
	assert.False(t, flat.Content.Valid)
	assert.False(t, flat.File.Valid)
	assert.False(t, flat.Deleted.Valid)

	back, err := messageFromPersisted(flat)
	require.NoError(t, err)
	assert.Equal(t, message, back)
}

func TestMessageTranscode_Nil(t *testing.T) {
	flat, err := messageToPersisted(nil)
	require.NoError(t, err)
	assert.Nil(t, flat)

	message, err := messageFromPersisted(nil)
	require.NoError(t, err)
	assert.Nil(t, message)
}

func TestMessageTranscode_Malformed(t *testing.T) {
	_, err := messageFromPersisted(&persistedMessage{ID: "x", SenderID: "ten"})
	require.ErrorIs(t, err, ErrTranscode)

	_, err = messageFromPersisted(&persistedMessage{
		ID:       "x",
		SenderID: "1",
		File:     sql.NullString{String: "{broken", Valid: true},
	})
	require.ErrorIs(t, err, ErrTranscode)
}

func TestMessageTranscode_TitleTruncation(t *testing.T) {
	message := &types.Message{
		ID:        "msg-title",
		SenderID:  1,
		Username:  "alice",
		Timestamp: "12:00",
		Date:      "2022/01/01",
		Role:      "member",
		Time:      1,
		Title:     strings.Repeat("长", 30),
	}

	flat, err := messageToPersisted(message)
	require.NoError(t, err)
	assert.Equal(t, 24, len([]rune(flat.Title.String)))
}
