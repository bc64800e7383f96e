package upgrades

import (
	"context"
	"database/sql"
)

func init() {
	upgrades[1] = upgrade{"Add per-room auto download settings", func(ctx context.Context, tx *sql.Tx, _ Context) error {
		if err := addColumn(ctx, tx, "rooms", `"autoDownload" BOOLEAN`); err != nil {
			return err
		}
		return addColumn(ctx, tx, "rooms", `"downloadPath" TEXT`)
	}}
}
