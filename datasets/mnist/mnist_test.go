package mnist

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lstmvision/classifier/datasets"
)

func writeGz(t *testing.T, dir, name string, payload []byte) {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write(payload)
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0o644))
}

func imagesPayload(count int, pixel func(i, y, x int) byte) []byte {
	buf := make([]byte, 16+count*ImgSize*ImgSize)
	binary.BigEndian.PutUint32(buf, imagesMagic)
	binary.BigEndian.PutUint32(buf[4:], uint32(count))
	binary.BigEndian.PutUint32(buf[8:], ImgSize)
	binary.BigEndian.PutUint32(buf[12:], ImgSize)
	for i := 0; i < count; i++ {
		base := 16 + i*ImgSize*ImgSize
		for y := 0; y < ImgSize; y++ {
			for x := 0; x < ImgSize; x++ {
				buf[base+y*ImgSize+x] = pixel(i, y, x)
			}
		}
	}
	return buf
}

func labelsPayload(labels ...byte) []byte {
	buf := make([]byte, 8+len(labels))
	binary.BigEndian.PutUint32(buf, labelsMagic)
	binary.BigEndian.PutUint32(buf[4:], uint32(len(labels)))
	copy(buf[8:], labels)
	return buf
}

func writeDataset(t *testing.T, dir string) {
	t.Helper()
	pixel := func(i, y, x int) byte {
		if y == x {
			return 255
		}
		return 0
	}
	writeGz(t, dir, trainSetImg, imagesPayload(3, pixel))
	writeGz(t, dir, trainSetVal, labelsPayload(5, 0, 9))
	writeGz(t, dir, testSetImg, imagesPayload(2, pixel))
	writeGz(t, dir, testSetVal, labelsPayload(1, 7))
}

func TestLoadSyntheticDataset(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir)

	train, test, err := load([]string{dir}, false)
	require.NoError(t, err)
	require.Equal(t, 3, train.Len())
	require.Equal(t, 2, test.Len())
	assert.Equal(t, NumClasses, train.Classes)
	assert.Equal(t, []int{5, 0, 9}, labelsOf(t, train.Samples))
	assert.Equal(t, []int{1, 7}, labelsOf(t, test.Samples))

	// 28 rows of 28 normalized pixels: 255 -> 1, 0 -> -1
	seq := train.Samples[0].Seq
	require.Len(t, seq, ImgSize)
	require.Len(t, seq[0], ImgSize)
	assert.Equal(t, float32(1), seq[3][3])
	assert.Equal(t, float32(-1), seq[3][4])
}

func labelsOf(t *testing.T, samples []datasets.Sample) []int {
	t.Helper()
	out := make([]int, len(samples))
	for i, s := range samples {
		out[i] = s.Label
	}
	return out
}

func TestLoadRejectsBadDigest(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir)

	_, _, err := load([]string{dir}, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hash")
}

func TestLoadRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir)
	bad := imagesPayload(1, func(i, y, x int) byte { return 0 })
	binary.BigEndian.PutUint32(bad, 0xdeadbeef)
	writeGz(t, dir, trainSetImg, bad)

	_, _, err := load([]string{dir}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "magic")
}

func TestLoadRejectsCountMismatch(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir)
	writeGz(t, dir, trainSetVal, labelsPayload(5, 0)) // 2 labels, 3 images

	_, _, err := load([]string{dir}, false)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	dir := t.TempDir()
	_, _, err := load([]string{dir}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestMissingFilesReportsAll(t *testing.T) {
	dir := t.TempDir()
	assert.Len(t, missingFiles([]string{dir}), 4)

	writeDataset(t, dir)
	assert.Empty(t, missingFiles([]string{dir}))
}
