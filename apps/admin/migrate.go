package main

import (
	"github.com/shuleapp/shule/storage/database"
)

// migrate hands the command straight to goose; `migrate status`,
// `migrate up`, `migrate down`, `migrate up-to VERSION` etc.
func (cli *commandLine) migrate(args []string) error {
	return database.MigrateCommand(cli.db, args[0], args[1:]...)
}
