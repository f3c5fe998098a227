// Package web bundles the HTML views and browser assets into the binaries.
package web

import "embed"

var (
	// Templates holds layouts, partials and pages below templates/.
	//go:embed templates/layouts templates/partials templates/pages
	Templates embed.FS

	// Static holds stylesheets and images served under /static/.
	//go:embed static
	Static embed.FS
)
