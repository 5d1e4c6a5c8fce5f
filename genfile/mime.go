package genfile

import (
	"io"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// UnknownExt is used when neither the declared name nor the content tells the extension.
const UnknownExt = "unknown"

type mimeExt struct {
	mime string
	ext  string
}

// mimeTable maps content types to extensions. Lookup walks it in order.
var mimeTable = []mimeExt{
	{"application/json", "json"},
	{"text/plain", "txt"},
	{"text/html", "html"},
	{"text/css", "css"},
	{"application/javascript", "js"},
	{"text/javascript", "js"},
	{"image/jpeg", "jpg"},
	{"image/png", "png"},
	{"image/gif", "gif"},
	{"image/webp", "webp"},
	{"image/svg+xml", "svg"},
	{"application/pdf", "pdf"},
	{"application/xml", "xml"},
	{"text/xml", "xml"},
	{"application/zip", "zip"},
	{"application/gzip", "gz"},
	{"application/x-gzip", "gz"},
	{"application/x-tar", "tar"},
	{"application/x-7z-compressed", "7z"},
	{"application/vnd.rar", "rar"},
	{"application/x-rar-compressed", "rar"},
	{"audio/mpeg", "mp3"},
	{"audio/mp4", "m4a"},
	{"audio/x-m4a", "m4a"},
	{"audio/wav", "wav"},
	{"audio/x-wav", "wav"},
	{"video/quicktime", "mov"},
	{"video/mp4", "mp4"},
	{"video/webm", "webm"},
	{"video/x-msvideo", "avi"},
}

// ExtFromMimeType resolves a Content-Type value, parameters allowed, to an extension.
func ExtFromMimeType(contentType string) (string, bool) {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}
	mt = strings.ToLower(mt)
	for _, m := range mimeTable {
		if m.mime == mt {
			return m.ext, true
		}
	}
	return "", false
}

// DetectExt sniffs r and returns the first table extension along the detected type's parent chain.
func DetectExt(r io.Reader) string {
	detected, err := mimetype.DetectReader(r)
	if err != nil {
		return UnknownExt
	}
	return extOfDetected(detected)
}

// DetectFileExt sniffs the file at path.
func DetectFileExt(path string) string {
	detected, err := mimetype.DetectFile(path)
	if err != nil {
		return UnknownExt
	}
	return extOfDetected(detected)
}

func extOfDetected(detected *mimetype.MIME) string {
	for m := detected; m != nil; m = m.Parent() {
		// Is also matches the aliases of m
		for _, e := range mimeTable {
			if m.Is(e.mime) {
				return e.ext
			}
		}
	}
	return UnknownExt
}

// ContentType returns the MIME type for an extension, defaulting to application/octet-stream.
func ContentType(ext string) string {
	if ext != "" {
		if t := mime.TypeByExtension("." + ext); t != "" {
			return t
		}
		for _, m := range mimeTable {
			if m.ext == ext {
				return m.mime
			}
		}
	}
	return "application/octet-stream"
}
