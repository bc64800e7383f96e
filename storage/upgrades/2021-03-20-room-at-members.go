package upgrades

import (
	"context"
	"database/sql"
)

func init() {
	upgrades[0] = upgrade{"Add mention markers to rooms and messages", func(ctx context.Context, tx *sql.Tx, _ Context) error {
		if err := addColumn(ctx, tx, "rooms", `"at" TEXT`); err != nil {
			return err
		}
		tables, err := listMsgTables(ctx, tx)
		if err != nil {
			return err
		}
		for _, table := range tables {
			if err = addColumn(ctx, tx, table, `"at" TEXT`); err != nil {
				return err
			}
		}
		return nil
	}}
}
