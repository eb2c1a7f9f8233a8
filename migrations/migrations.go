// Package migrations embeds the goose SQL migrations so binaries can run
// them without a checkout of this repository.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
