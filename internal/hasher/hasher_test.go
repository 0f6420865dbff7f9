package hasher

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintKnownDigest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "abc.jpg")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	digest, err := Fingerprint(path)
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", digest)
}

func TestFingerprintIgnoresPathAndMtime(t *testing.T) {
	dir := t.TempDir()
	content := bytes.Repeat([]byte{0xFF, 0xD8, 0x01}, 5000) // größer als ein Block
	a := filepath.Join(dir, "a.jpg")
	b := filepath.Join(dir, "nested", "B.JPG")
	require.NoError(t, os.MkdirAll(filepath.Dir(b), 0o755))
	require.NoError(t, os.WriteFile(a, content, 0o644))
	require.NoError(t, os.WriteFile(b, content, 0o644))
	require.NoError(t, os.Chtimes(b, time.Unix(0, 0), time.Unix(0, 0)))

	da, err := Fingerprint(a)
	require.NoError(t, err)
	db, err := Fingerprint(b)
	require.NoError(t, err)
	assert.Equal(t, da, db)
	assert.Len(t, da, 64)

	readerDigest, err := FingerprintReader(bytes.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, da, readerDigest)
}

func TestFingerprintDifferentContent(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.png")
	b := filepath.Join(dir, "b.png")
	require.NoError(t, os.WriteFile(a, []byte("one"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("two"), 0o644))

	da, err := Fingerprint(a)
	require.NoError(t, err)
	db, err := Fingerprint(b)
	require.NoError(t, err)
	assert.NotEqual(t, da, db)
}

func TestFingerprintMissingFile(t *testing.T) {
	_, err := Fingerprint(filepath.Join(t.TempDir(), "missing.jpg"))
	assert.ErrorIs(t, err, ErrNotFound)
}

// chunkRecorder merkt sich die größte angeforderte Blockgröße. WriteTo darf
// nicht benutzt werden, sonst greift die Blockgröße nicht.
type chunkRecorder struct {
	r        *bytes.Reader
	maxChunk int
	writeTo  bool
}

func (c *chunkRecorder) Read(p []byte) (int, error) {
	if len(p) > c.maxChunk {
		c.maxChunk = len(p)
	}
	return c.r.Read(p)
}

func (c *chunkRecorder) WriteTo(w io.Writer) (int64, error) {
	c.writeTo = true
	return c.r.WriteTo(w)
}

func TestFingerprintReaderUsesChunkSize(t *testing.T) {
	content := bytes.Repeat([]byte{0x42}, 3*ChunkSize+17)
	rec := &chunkRecorder{r: bytes.NewReader(content)}

	digest, err := FingerprintReader(rec)
	require.NoError(t, err)

	sum := sha256.Sum256(content)
	assert.Equal(t, hex.EncodeToString(sum[:]), digest)
	assert.False(t, rec.writeTo)
	assert.Equal(t, ChunkSize, rec.maxChunk)
}
