package main

import "context"

// migrate runs a goose command on postgres; mongo only supports "up", which ensures its indexes.
func (cli *commandLine) migrate(ctx context.Context, command string, args ...string) error {
	return cli.stores.Migrate(ctx, command, args...)
}
