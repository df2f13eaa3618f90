package db

import "embed"

// Migrations holds the embedded schema migration files. The migrate runner
// reads them through an iofs source driver.
//
//go:embed migrations/*.sql
var Migrations embed.FS
