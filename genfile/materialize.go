package genfile

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cppla/aiblog/utils"
)

// sniffLen matches the number of bytes mimetype inspects by default.
const sniffLen = 3072

var ErrTooLarge = errors.New("file exceeds the upload size limit")

// Materializer writes uploads and remote files into a staging directory
// under names produced by Encode.
type Materializer struct {
	dir      string
	maxBytes int64
	client   *http.Client
}

// NewMaterializer creates a Materializer staging into dir. maxBytes <= 0 disables the size check.
func NewMaterializer(dir string, maxBytes int64) *Materializer {
	return &Materializer{
		dir:      dir,
		maxBytes: maxBytes,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

// WithHTTPClient replaces the client used by Download.
func (m *Materializer) WithHTTPClient(c *http.Client) *Materializer {
	m.client = c
	return m
}

// Dir returns the staging directory.
func (m *Materializer) Dir() string {
	return m.dir
}

// Stage copies r into the staging directory and returns the staged path.
// An empty stream stages nothing and returns "".
func (m *Materializer) Stage(r io.Reader, originalFileName, metaStr string) (string, error) {
	br := bufio.NewReaderSize(r, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return "", err
	}
	if len(head) == 0 {
		return "", nil
	}

	if err := ValidateMetaStr(metaStr); err != nil {
		return "", err
	}
	originalFileName = FitOriginalFileName(cleanOriginalName(originalFileName), metaStr)
	name, err := Encode(originalFileName, metaStr)
	if err != nil {
		return "", err
	}
	if extOf(originalFileName) == "" {
		name = withSniffedExt(name, DetectExt(bytes.NewReader(head)))
	}

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(m.dir, name)
	if err := m.write(dst, br); err != nil {
		return "", err
	}
	utils.Logger.Debug("genfile staged", zap.String("path", dst), zap.String("original", originalFileName))
	return dst, nil
}

// StageMultipart stages an uploaded multipart file. Empty files are skipped.
func (m *Materializer) StageMultipart(fh *multipart.FileHeader, metaStr string) (string, error) {
	if fh == nil || fh.Size == 0 {
		return "", nil
	}
	if m.maxBytes > 0 && fh.Size > m.maxBytes {
		return "", ErrTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()
	return m.Stage(f, fh.Filename, metaStr)
}

func (m *Materializer) write(dst string, r io.Reader) error {
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	src := r
	if m.maxBytes > 0 {
		src = &io.LimitedReader{R: r, N: m.maxBytes + 1}
	}
	written, err := io.Copy(out, src)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil && m.maxBytes > 0 && written > m.maxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(dst)
		return err
	}
	return nil
}

// Download fetches rawURL into the staging directory, following redirects.
// The extension comes from Content-Type, then from sniffing the body.
// With unique set the result is an encoded name whose original name is the
// URL's file name; otherwise the URL's file name is kept as is.
func (m *Materializer) Download(ctx context.Context, rawURL string, unique bool) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("download %s: unexpected status %s", rawURL, resp.Status)
	}

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", err
	}
	tmp := filepath.Join(m.dir, uuid.NewString()+".tmp")
	if err := m.write(tmp, resp.Body); err != nil {
		return "", err
	}

	ext, ok := ExtFromMimeType(resp.Header.Get("Content-Type"))
	if !ok {
		ext = DetectFileExt(tmp)
	}

	base := fileStemFromURL(rawURL)
	var name string
	if unique {
		if name, err = Encode(base+"."+ext, ""); err != nil {
			_ = os.Remove(tmp)
			return "", err
		}
	} else {
		name = base + "." + ext
	}

	dst := filepath.Join(m.dir, name)
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	utils.Logger.Debug("genfile downloaded", zap.String("url", rawURL), zap.String("path", dst))
	return dst, nil
}

func cleanOriginalName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = path.Base(name)
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	return name
}

func fileStemFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "download"
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" || base == "" {
		return "download"
	}
	if dot := strings.LastIndexByte(base, '.'); dot > 0 {
		base = base[:dot]
	}
	return base
}
