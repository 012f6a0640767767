// ABOUTME: Embeds HTML templates and help markdown into the binary using go:embed
// ABOUTME: Provides templateFS and helpFS for loading at runtime

package setup

import "embed"

//go:embed templates/*.html
var templateFS embed.FS

//go:embed docs/*.md
var helpFS embed.FS
