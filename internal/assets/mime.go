package assets

import (
	"net/http"
	"strings"
)

// DetectMIME sniffs the content type from the first bytes of an upload.
func DetectMIME(data []byte) string {
	if len(data) > 512 {
		data = data[:512]
	}
	return http.DetectContentType(data)
}

func IsImageMIME(mimeType string) bool {
	return strings.HasPrefix(cleanMIME(mimeType), "image/")
}

func IsVideoMIME(mimeType string) bool {
	return strings.HasPrefix(cleanMIME(mimeType), "video/")
}

// ExtensionFor returns the file extension used for stored objects of the
// given content type, or "" when none is known.
func ExtensionFor(mimeType string) string {
	switch cleanMIME(mimeType) {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	case "image/svg+xml":
		return ".svg"
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	case "audio/mpeg":
		return ".mp3"
	case "application/pdf":
		return ".pdf"
	default:
		return ""
	}
}

func cleanMIME(mimeType string) string {
	cleaned := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(cleaned, ';'); i >= 0 {
		cleaned = strings.TrimSpace(cleaned[:i])
	}
	return cleaned
}
