package clip

import (
	"context"
	"log/slog"
	"unicode/utf8"
)

// previewLen caps the text shown for an item at debug level.
const previewLen = 120

// LogItems logs a host clipboard transfer at INFO (direction and mime types)
// and DEBUG (text preview, or byte size for binary items).
func LogItems(event string, items []Item, args ...any) {
	mimes := make([]string, len(items))
	for i, it := range items {
		mimes[i] = it.Mime
	}
	slog.Info(event, append(args, "types", mimes)...)
	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	for _, it := range items {
		if it.Mime == MimeText {
			slog.Debug("clipboard item", "mime", it.Mime, "preview", preview(it.Data))
		} else {
			slog.Debug("clipboard item", "mime", it.Mime, "size_bytes", len(it.Data))
		}
	}
}

func preview(data []byte) string {
	if len(data) <= previewLen {
		return string(data)
	}
	cut := previewLen
	for cut > 0 && !utf8.RuneStart(data[cut]) {
		cut--
	}
	return string(data[:cut]) + "…"
}
