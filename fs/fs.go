package appfs

import "embed"

// FS holds the SQL migrations and the email templates.
//
//go:embed migrations/*.sql all:assets
var FS embed.FS
