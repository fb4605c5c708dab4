// Package migrations holds the schema for the patients store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
