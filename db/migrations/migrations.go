// Package migrations embeds the goose SQL migrations so binaries can apply
// the schema without shipping the directory alongside them.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
