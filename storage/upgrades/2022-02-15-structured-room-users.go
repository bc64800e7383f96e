package upgrades

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

type legacyUserList struct {
	roomID string
	users  string
}

// Early versions stored room member lists as bare arrays of account numbers.
// Rewrite them into the structured participant objects the client uses now.
func init() {
	upgrades[4] = upgrade{"Convert room member lists to structured objects", func(ctx context.Context, tx *sql.Tx, upgradeCtx Context) error {
		updates, err := collectLegacyUserLists(ctx, tx)
		if err != nil {
			return err
		}
		query := fmt.Sprintf(`UPDATE "rooms" SET "users"=%s WHERE "roomId"=%s`,
			placeholder(upgradeCtx.Dialect, 1), placeholder(upgradeCtx.Dialect, 2))
		for _, update := range updates {
			if _, err = tx.ExecContext(ctx, query, update.users, update.roomID); err != nil {
				return err
			}
		}
		return nil
	}}
}

func collectLegacyUserLists(ctx context.Context, tx *sql.Tx) ([]legacyUserList, error) {
	rows, err := tx.QueryContext(ctx, `SELECT "roomId", "users" FROM "rooms"`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var updates []legacyUserList
	for rows.Next() {
		var roomID, users string
		if err = rows.Scan(&roomID, &users); err != nil {
			return nil, err
		}
		if !gjson.Valid(users) {
			continue
		}
		parsed := gjson.Parse(users)
		if !parsed.IsArray() {
			continue
		}
		members := parsed.Array()
		if len(members) == 0 || members[0].IsObject() {
			// Already in the structured shape, nothing to rewrite.
			continue
		}
		rebuilt := "[]"
		for i, member := range members {
			rebuilt, err = sjson.Set(rebuilt, strconv.Itoa(i), map[string]any{
				"_id":      member.Int(),
				"username": member.String(),
			})
			if err != nil {
				return nil, err
			}
		}
		updates = append(updates, legacyUserList{roomID: roomID, users: rebuilt})
	}
	return updates, rows.Err()
}
