package upgrades

import (
	"context"
	"database/sql"
)

func init() {
	upgrades[3] = upgrade{"Add title labels to messages", func(ctx context.Context, tx *sql.Tx, _ Context) error {
		tables, err := listMsgTables(ctx, tx)
		if err != nil {
			return err
		}
		for _, table := range tables {
			if err = addColumn(ctx, tx, table, `"title" VARCHAR(24)`); err != nil {
				return err
			}
		}
		return nil
	}}
}
