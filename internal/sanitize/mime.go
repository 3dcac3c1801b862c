package sanitize

import (
	"path/filepath"
	"strings"

	"github.com/wailsapp/mimetype"
)

// DefaultMimeType is reported for unrecognized extensions.
const DefaultMimeType = "application/octet-stream"

var mimeByExtension = map[string]string{
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".mkv":  "video/x-matroska",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// extensionByMime is the reverse table used for declared media types.
var extensionByMime = map[string]string{
	"video/mp4":        ".mp4",
	"video/webm":       ".webm",
	"video/quicktime":  ".mov",
	"video/x-msvideo":  ".avi",
	"video/avi":        ".avi",
	"video/x-matroska": ".mkv",
	"audio/mpeg":       ".mp3",
	"audio/mp3":        ".mp3",
	"audio/wav":        ".wav",
	"audio/x-wav":      ".wav",
	"audio/wave":       ".wav",
	"audio/ogg":        ".ogg",
	"image/png":        ".png",
	"image/jpeg":       ".jpg",
	"image/gif":        ".gif",
	"image/webp":       ".webp",
}

// MimeTypeForExtension maps an output extension to its media type.
func MimeTypeForExtension(ext string) string {
	if mime, ok := mimeByExtension[NormalizeExtension(ext)]; ok {
		return mime
	}
	return DefaultMimeType
}

// NormalizeExtension lower-cases a token and ensures a leading dot. Tokens
// that are not plain alphanumerics yield "".
func NormalizeExtension(token string) string {
	ext := strings.ToLower(strings.TrimSpace(token))
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" || len(ext) > 8 {
		return ""
	}
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return "." + ext
}

// inputExtension derives the staging extension from the file name, then the
// declared media type, then the content itself.
func inputExtension(name, mediaType string, data []byte) string {
	if ext := NormalizeExtension(filepath.Ext(name)); ext != "" {
		return ext
	}

	declared, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(mediaType)), ";")
	if ext, ok := extensionByMime[strings.TrimSpace(declared)]; ok {
		return ext
	}

	if len(data) > 0 {
		detected := mimetype.Detect(data)
		if ext, ok := extensionByMime[detected.String()]; ok {
			return ext
		}
		for m := detected; m != nil; m = m.Parent() {
			if ext := NormalizeExtension(m.Extension()); ext != "" {
				return ext
			}
		}
	}
	return ".bin"
}

// outputExtension applies the override token when it is valid.
func outputExtension(inputExt, override string) string {
	if ext := NormalizeExtension(override); ext != "" {
		return ext
	}
	return inputExt
}

// suggestedName builds the download name for a result.
func suggestedName(sourceName string, mode string, ext string) string {
	base := filepath.Base(strings.TrimSpace(sourceName))
	stem := strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
	if stem == "" || stem == "." || stem == string(filepath.Separator) {
		stem = "media"
	}
	if mode == "" {
		mode = "sanitized"
	}
	return stem + "-" + mode + ext
}
