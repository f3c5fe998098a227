package app

import (
	"log/slog"
	"mime"
)

// Types served from /static and the upload store that minimal base images
// may not know about.
var assetTypes = [][2]string{
	{".css", "text/css; charset=utf-8"},
	{".svg", "image/svg+xml"},
	{".webp", "image/webp"},
}

func init() {
	for _, t := range assetTypes {
		if mime.TypeByExtension(t[0]) != "" {
			continue
		}
		if err := mime.AddExtensionType(t[0], t[1]); err != nil {
			slog.Default().Warn("register mime type", slog.String("ext", t[0]), slog.Any("error", err))
		}
	}
}
