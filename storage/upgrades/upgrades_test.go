package upgrades

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	_ "modernc.org/sqlite"
)

func openTestDatabase(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func execAll(t *testing.T, db *sql.DB, statements ...string) {
	t.Helper()
	for _, statement := range statements {
		_, err := db.Exec(statement)
		require.NoError(t, err)
	}
}

// openV0Database builds a database the way version 0 of the schema shaped
// it: no mention markers, no download settings, no mirai or title columns,
// and room member lists stored as bare arrays of account numbers.
func openV0Database(t *testing.T) *sql.DB {
	db := openTestDatabase(t)
	execAll(t, db,
		`CREATE TABLE "dbVersion" ("dbVersion" INTEGER PRIMARY KEY)`,
		`CREATE TABLE "msgTableName" ("id" INTEGER PRIMARY KEY AUTOINCREMENT, "tableName" VARCHAR(255) NOT NULL)`,
		`CREATE TABLE "rooms" (
			"roomId"      VARCHAR(255) PRIMARY KEY,
			"roomName"    VARCHAR(255) NOT NULL,
			"avatar"      TEXT NOT NULL,
			"index"       INTEGER NOT NULL,
			"unreadCount" INTEGER NOT NULL,
			"priority"    INTEGER NOT NULL,
			"utime"       BIGINT NOT NULL,
			"users"       TEXT NOT NULL,
			"lastMessage" TEXT NOT NULL
		)`,
		`CREATE TABLE "ignoredChats" ("id" BIGINT PRIMARY KEY, "name" VARCHAR(255) NOT NULL)`,
		`CREATE TABLE "msg114514" (
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
			"replyMessage" TEXT
		)`,
		`INSERT INTO "msgTableName" ("tableName") VALUES ('msg114514')`,
		`INSERT INTO "dbVersion" ("dbVersion") VALUES (0)`,
		`INSERT INTO "rooms" VALUES ('114514', 'test', '', 0, 0, 0, 1000, '[10001,10002]', '{}')`,
	)
	return db
}

func TestRun_FromV0(t *testing.T) {
	db := openV0Database(t)
	ctx := context.Background()

	require.NoError(t, Run(ctx, zerolog.Nop(), SQLite, db, 0))

	version, ok, err := GetVersion(ctx, db)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Latest, version)

	var at, autoDownload, downloadPath sql.NullString
	err = db.QueryRow(`SELECT "at", "autoDownload", "downloadPath" FROM "rooms" LIMIT 1`).
		Scan(&at, &autoDownload, &downloadPath)
	require.NoError(t, err)

	// the message table grew its columns too; the table is empty so only
	// the column resolution is being checked here
	err = db.QueryRow(`SELECT "at", "mirai", "title" FROM "msg114514" LIMIT 1`).
		Scan(&at, &at, &at)
	require.ErrorIs(t, err, sql.ErrNoRows)

	var users string
	require.NoError(t, db.QueryRow(`SELECT "users" FROM "rooms" WHERE "roomId"='114514'`).Scan(&users))
	parsed := gjson.Parse(users)
	require.True(t, parsed.IsArray())
	require.Len(t, parsed.Array(), 2)
	assert.EqualValues(t, 10001, parsed.Get("0._id").Int())
	assert.Equal(t, "10001", parsed.Get("0.username").String())
	assert.EqualValues(t, 10002, parsed.Get("1._id").Int())
}

func TestRun_FromV3(t *testing.T) {
	db := openV0Database(t)
	ctx := context.Background()

	// bring the shape up to v3 by hand, with users already structured
	execAll(t, db,
		`ALTER TABLE "rooms" ADD COLUMN "at" TEXT`,
		`ALTER TABLE "rooms" ADD COLUMN "autoDownload" BOOLEAN`,
		`ALTER TABLE "rooms" ADD COLUMN "downloadPath" TEXT`,
		`ALTER TABLE "msg114514" ADD COLUMN "at" TEXT`,
		`ALTER TABLE "msg114514" ADD COLUMN "mirai" TEXT`,
		`UPDATE "rooms" SET "users"='[{"_id":10001,"username":"alice"}]'`,
		`UPDATE "dbVersion" SET "dbVersion"=3`,
	)

	require.NoError(t, Run(ctx, zerolog.Nop(), SQLite, db, 3))

	version, _, err := GetVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, Latest, version)

	// already-structured member lists stay untouched
	var users string
	require.NoError(t, db.QueryRow(`SELECT "users" FROM "rooms"`).Scan(&users))
	assert.Equal(t, `[{"_id":10001,"username":"alice"}]`, users)

	var title sql.NullString
	err = db.QueryRow(`SELECT "title" FROM "msg114514" LIMIT 1`).Scan(&title)
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestRun_EachStartVersion(t *testing.T) {
	original := upgrades
	t.Cleanup(func() {
		upgrades = original
	})

	for from := 0; from < Latest; from++ {
		t.Run(fmt.Sprintf("FromV%d", from), func(t *testing.T) {
			var applied []int
			for i := range upgrades {
				fn := original[i].fn
				index := i
				upgrades[i].fn = func(ctx context.Context, tx *sql.Tx, uctx Context) error {
					applied = append(applied, index)
					return fn(ctx, tx, uctx)
				}
			}

			db := openV0Database(t)
			ctx := context.Background()
			require.NoError(t, SetVersion(ctx, db, from))

			require.NoError(t, Run(ctx, zerolog.Nop(), SQLite, db, from))

			// only the steps after the start version run, once each, in order
			expected := make([]int, 0, Latest-from)
			for i := from; i < Latest; i++ {
				expected = append(expected, i)
			}
			assert.Equal(t, expected, applied)

			version, ok, err := GetVersion(ctx, db)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, Latest, version)
		})
	}
}

func TestRun_FailureKeepsVersion(t *testing.T) {
	db := openV0Database(t)
	ctx := context.Background()

	_, err := db.Exec(`DROP TABLE "rooms"`)
	require.NoError(t, err)

	require.Error(t, Run(ctx, zerolog.Nop(), SQLite, db, 0))

	version, ok, err := GetVersion(ctx, db)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, version)
}

func TestRun_NewerThanLatest(t *testing.T) {
	db := openV0Database(t)
	err := Run(context.Background(), zerolog.Nop(), SQLite, db, Latest+1)
	require.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestRun_NegativeVersion(t *testing.T) {
	db := openV0Database(t)
	err := Run(context.Background(), zerolog.Nop(), SQLite, db, -3)
	require.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestSetVersion_ReplacesRow(t *testing.T) {
	db := openV0Database(t)
	ctx := context.Background()

	require.NoError(t, SetVersion(ctx, db, 3))
	require.NoError(t, SetVersion(ctx, db, Latest))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM "dbVersion"`).Scan(&count))
	assert.Equal(t, 1, count)

	version, ok, err := GetVersion(ctx, db)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Latest, version)
}
