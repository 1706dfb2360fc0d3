package appfs

import "embed"

// FS embeds non-Go assets needed at runtime (goose migrations).
//go:embed migrations
var FS embed.FS
