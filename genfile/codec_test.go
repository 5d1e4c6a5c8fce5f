package genfile

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRoundTrip(t *testing.T) {
	names := []string{
		"report.pdf",
		"보고서 v2.final.PDF",
		"with space & ampersand.png",
		"noext",
		"--originalFileName_tricky.txt",
	}
	for _, name := range names {
		for _, metaStr := range []string{"", "width=100", "caption=a_b-c"} {
			stored, err := Encode(name, metaStr)
			require.NoError(t, err)
			assert.NotContains(t, stored, "/")

			path := filepath.Join("/var/tmp/stage", stored)
			assert.Equal(t, name, OriginalFileName(path), "name %q meta %q", name, metaStr)
			assert.Equal(t, metaStr, MetaStr(path), "name %q meta %q", name, metaStr)
		}
	}
}

func TestEncodeIsUnique(t *testing.T) {
	a, err := Encode("same.png", "")
	require.NoError(t, err)
	b, err := Encode("same.png", "")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestEncodeRejectsAmbiguousMetaStr(t *testing.T) {
	for _, metaStr := range []string{"a/b", `a\b`, "x_metaStr--y", "--originalFileName"} {
		_, err := Encode("a.png", metaStr)
		assert.ErrorIs(t, err, ErrInvalidMetaStr, metaStr)
	}
}

func TestOriginalFileNameWithoutMarker(t *testing.T) {
	assert.Equal(t, "plain.txt", OriginalFileName("/tmp/x/plain.txt"))
	assert.Equal(t, "", MetaStr("/tmp/x/plain.txt"))
}

func TestOriginalFileNameUndecodablePayload(t *testing.T) {
	base := "abc" + OriginalNameMarker + "!!!"
	assert.Equal(t, base, OriginalFileName("/tmp/"+base))
}

func TestFileExt(t *testing.T) {
	stored, err := Encode("Photo.JPG", "")
	require.NoError(t, err)
	assert.Equal(t, "jpg", FileExt(stored))

	stored, err = Encode("archive.tar.gz", "")
	require.NoError(t, err)
	assert.Equal(t, "gz", FileExt(stored))

	stored, err = Encode("noext", "")
	require.NoError(t, err)
	assert.Equal(t, "", FileExt(stored))
	assert.Equal(t, "png", FileExt(withSniffedExt(stored, "png")))
	assert.Equal(t, "noext", OriginalFileName(withSniffedExt(stored, "png")))

	assert.Equal(t, "txt", FileExt("/plain/notes.txt"))
}

func TestWithNewExt(t *testing.T) {
	assert.Equal(t, "abc.jpg", WithNewExt("abc.png", "jpg"))
	assert.Equal(t, "abc.gif", WithNewExt("abc", "gif"))
	assert.Equal(t, "a.b.d", WithNewExt("a.b.c", "d"))
	assert.Equal(t, "abc.png", WithNewExt("abc.png", "png"))
}

func TestExtTypeCode(t *testing.T) {
	cases := map[string]string{
		"jpeg": ExtTypeImg, "jpg": ExtTypeImg, "gif": ExtTypeImg, "png": ExtTypeImg,
		"svg": ExtTypeImg, "webp": ExtTypeImg,
		"mp4": ExtTypeVideo, "avi": ExtTypeVideo, "mov": ExtTypeVideo,
		"mp3": ExtTypeAudio, "m4a": ExtTypeAudio,
		"pdf": ExtTypeEtc, "": ExtTypeEtc, "unknown": ExtTypeEtc, "webm": ExtTypeEtc,
	}
	for ext, want := range cases {
		assert.Equal(t, want, ExtTypeCode(ext), ext)
	}
}

func TestExtType2Code(t *testing.T) {
	assert.Equal(t, "jpg", ExtType2Code("jpeg"))
	assert.Equal(t, "jpg", ExtType2Code("jpg"))
	assert.Equal(t, "png", ExtType2Code("png"))
	assert.Equal(t, "", ExtType2Code(""))
}

func TestMetaStrStopsAtFirstMarker(t *testing.T) {
	stored, err := Encode("x.png", "k=v")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored, "k=v"+MetaStrMarker))
	assert.Equal(t, "k=v", MetaStr(stored))
}

func TestFitOriginalFileName(t *testing.T) {
	assert.Equal(t, "a.txt", FitOriginalFileName("a.txt", ""))

	long := strings.Repeat("x", 300) + ".jpeg"
	fit := FitOriginalFileName(long, "")
	assert.True(t, strings.HasSuffix(fit, ".jpeg"))
	stored, err := Encode(long, "")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(stored)+sniffedExtReserve, 255)
	assert.Equal(t, fit, OriginalFileName(stored))

	// an extension that fills the budget is cut with the rest
	hugeExt := "a." + strings.Repeat("e", 300)
	fit = FitOriginalFileName(hugeExt, "")
	assert.True(t, strings.HasPrefix(fit, "a.e"))
	stored, err = Encode(hugeExt, "")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(stored)+sniffedExtReserve, 255)
}
