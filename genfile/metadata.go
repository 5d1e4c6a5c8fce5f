package genfile

import (
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/cppla/aiblog/utils"
)

// Field is one key=value pair of file metadata.
type Field struct {
	Key   string
	Value string
}

// Metadata keeps fields in extraction order.
type Metadata []Field

// String renders the fields as key=value pairs joined by '&'.
func (m Metadata) String() string {
	parts := make([]string, 0, len(m))
	for _, f := range m {
		parts = append(parts, f.Key+"="+f.Value)
	}
	return strings.Join(parts, "&")
}

// Get returns the value stored under key.
func (m Metadata) Get(key string) (string, bool) {
	for _, f := range m {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// ExtractMetadata reads descriptive fields from the file at path.
// Only images yield fields (width, height); any failure is logged and yields none.
func ExtractMetadata(path string) Metadata {
	if ExtTypeCode(FileExt(path)) != ExtTypeImg {
		return Metadata{}
	}

	f, err := os.Open(path)
	if err != nil {
		utils.Logger.Warn("metadata: open failed", zap.String("path", path), zap.Error(err))
		return Metadata{}
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		utils.Logger.Warn("metadata: unsupported image", zap.String("path", path), zap.Error(err))
		return Metadata{}
	}
	utils.Logger.Debug("metadata: image header read", zap.String("format", format), zap.Int("width", cfg.Width), zap.Int("height", cfg.Height))

	return Metadata{
		{Key: "width", Value: strconv.Itoa(cfg.Width)},
		{Key: "height", Value: strconv.Itoa(cfg.Height)},
	}
}

// MetadataString combines extracted metadata with the meta string carried by the stored name.
func MetadataString(md Metadata, metaStr string) string {
	s := md.String()
	if metaStr == "" {
		return s
	}
	if s == "" {
		return metaStr
	}
	return s + "&" + metaStr
}
