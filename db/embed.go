// Package db carries the SQL schema migrations for the stories database.
package db

import "embed"

// Migrations holds migrations/*.up.sql and their matching down files.
//
//go:embed migrations/*.sql
var Migrations embed.FS
