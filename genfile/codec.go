// Package genfile names, inspects and stages the files attached to posts.
//
// A stored file name carries the original upload name and an optional
// caller-supplied meta string, so both survive without a database lookup:
//
//	[<metaStr>_metaStr--]<uuid>--originalFileName_<payload>[.<ext>]
//
// The payload is the original file name in unpadded URL-safe base64.
// The trailing extension is only present when the original name had none
// and the content was sniffed at staging time.
package genfile

import (
	"encoding/base64"
	"errors"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	OriginalNameMarker = "--originalFileName_"
	MetaStrMarker      = "_metaStr--"
)

// Extension classes.
const (
	ExtTypeImg   = "img"
	ExtTypeVideo = "video"
	ExtTypeAudio = "audio"
	ExtTypeEtc   = "etc"
)

const (
	// maxStoredNameLen is the usual file system limit for one path element.
	maxStoredNameLen = 255
	// sniffedExtReserve leaves room for ".<ext>" appended after sniffing.
	sniffedExtReserve = 8
	uuidLen           = 36
	maxMetaStrLen     = 64
	// MaxExtLen bounds the extensions kept in generated file records.
	MaxExtLen = 20
)

var ErrInvalidMetaStr = errors.New("metaStr must be at most 64 bytes without path separators or name markers")

var payloadEncoding = base64.RawURLEncoding

// Encode returns a fresh, unique stored file name for originalFileName.
func Encode(originalFileName, metaStr string) (string, error) {
	if err := ValidateMetaStr(metaStr); err != nil {
		return "", err
	}
	originalFileName = FitOriginalFileName(originalFileName, metaStr)
	name := uuid.NewString() + OriginalNameMarker + payloadEncoding.EncodeToString([]byte(originalFileName))
	if metaStr != "" {
		name = metaStr + MetaStrMarker + name
	}
	return name, nil
}

// ValidateMetaStr rejects meta strings that would make a stored name ambiguous.
func ValidateMetaStr(metaStr string) error {
	if metaStr == "" {
		return nil
	}
	if len(metaStr) > maxMetaStrLen {
		return ErrInvalidMetaStr
	}
	if strings.ContainsAny(metaStr, `/\`) || strings.ContainsRune(metaStr, 0) {
		return ErrInvalidMetaStr
	}
	if strings.Contains(metaStr, MetaStrMarker) || strings.Contains(metaStr+MetaStrMarker, OriginalNameMarker) {
		return ErrInvalidMetaStr
	}
	return nil
}

// FitOriginalFileName shortens the stem of name so that its stored name stays
// within maxStoredNameLen bytes. The extension survives unless it alone is too long.
func FitOriginalFileName(name, metaStr string) string {
	room := maxStoredNameLen - sniffedExtReserve - uuidLen - len(OriginalNameMarker)
	if metaStr != "" {
		room -= len(metaStr) + len(MetaStrMarker)
	}
	limit := payloadEncoding.DecodedLen(room)
	if limit < 1 || len(name) <= limit {
		return name
	}
	ext := ""
	if dot := strings.LastIndexByte(name, '.'); dot >= 0 && len(name)-dot < limit {
		ext = name[dot:]
	}
	return truncateUTF8(name[:len(name)-len(ext)], limit-len(ext)) + ext
}

func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// withSniffedExt appends the extension detected from content to a stored name.
func withSniffedExt(storedName, ext string) string {
	return storedName + "." + ext
}

// splitStored returns the payload and sniff suffix of a stored base name.
func splitStored(base string) (payload, sniffed string, ok bool) {
	idx := strings.Index(base, OriginalNameMarker)
	if idx < 0 {
		return "", "", false
	}
	payload = base[idx+len(OriginalNameMarker):]
	if dot := strings.IndexByte(payload, '.'); dot >= 0 {
		payload, sniffed = payload[:dot], payload[dot+1:]
	}
	return payload, sniffed, true
}

// OriginalFileName recovers the upload name from a stored path.
// Paths without the marker, or with an undecodable payload, yield the base name as is.
func OriginalFileName(path string) string {
	base := filepath.Base(path)
	payload, _, ok := splitStored(base)
	if !ok {
		return base
	}
	b, err := payloadEncoding.DecodeString(payload)
	if err != nil {
		return base
	}
	return string(b)
}

// MetaStr returns the meta string encoded in a stored path, or "".
func MetaStr(path string) string {
	base := filepath.Base(path)
	idx := strings.Index(base, OriginalNameMarker)
	if idx < 0 {
		idx = len(base)
	}
	if m := strings.Index(base[:idx], MetaStrMarker); m >= 0 {
		return base[:m]
	}
	return ""
}

// FileExt returns the lower-cased extension of the original file name,
// falling back to the sniffed suffix of the stored name.
func FileExt(path string) string {
	if ext := extOf(OriginalFileName(path)); ext != "" {
		return ext
	}
	if _, sniffed, ok := splitStored(filepath.Base(path)); ok {
		return strings.ToLower(sniffed)
	}
	return ""
}

func extOf(name string) string {
	dot := strings.LastIndexByte(name, '.')
	if dot < 0 {
		return ""
	}
	return strings.ToLower(name[dot+1:])
}

// WithNewExt replaces the extension of fileName, or appends one when absent.
func WithNewExt(fileName, ext string) string {
	if dot := strings.LastIndexByte(fileName, '.'); dot >= 0 {
		return fileName[:dot+1] + ext
	}
	return fileName + "." + ext
}

// ExtTypeCode classifies an extension.
func ExtTypeCode(ext string) string {
	switch ext {
	case "jpeg", "jpg", "gif", "png", "svg", "webp":
		return ExtTypeImg
	case "mp4", "avi", "mov":
		return ExtTypeVideo
	case "mp3", "m4a":
		return ExtTypeAudio
	default:
		return ExtTypeEtc
	}
}

// ExtType2Code normalizes an extension for subclass grouping.
func ExtType2Code(ext string) string {
	if ext == "jpeg" {
		return "jpg"
	}
	return ext
}
