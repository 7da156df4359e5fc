// Package scripts embeds the Risor scripts that render generated artifacts.
package scripts

import "embed"

//go:embed emit/*.risor
var FS embed.FS
