package upgrades

import (
	"context"
	"database/sql"
)

func init() {
	upgrades[2] = upgrade{"Add mirai extension payload to messages", func(ctx context.Context, tx *sql.Tx, _ Context) error {
		tables, err := listMsgTables(ctx, tx)
		if err != nil {
			return err
		}
		for _, table := range tables {
			if err = addColumn(ctx, tx, table, `"mirai" TEXT`); err != nil {
				return err
			}
		}
		return nil
	}}
}
