// Package mnist loads the MNIST handwritten digit dataset as labeled
// float32 sequences: each image is a 28-step sequence of 28 features,
// normalized to mean 0.5, std 0.5.
package mnist

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/lstmvision/classifier/datasets"
)

// ImgSize is the image edge length; images are square.
const ImgSize = 28

// NumClasses is the number of digit classes.
const NumClasses = 10

const tmpDirectory = `/tmp/mnist/`

const (
	testSetImg  = "t10k-images-idx3-ubyte.gz"
	testSetVal  = "t10k-labels-idx1-ubyte.gz"
	trainSetImg = "train-images-idx3-ubyte.gz"
	trainSetVal = "train-labels-idx1-ubyte.gz"
)

var digests = map[string]string{
	testSetImg:  "8d422c7b0a1c1c79245a5bcf07fe86e33eeafee792b84584aec276f5a2dbc4e6",
	testSetVal:  "f7ae60f92e00ec6debd23a6088c31dbd2371eca3ffa0defaefb259924204aec6",
	trainSetImg: "440fcabf73cc546fa21475e81ea370265605f56be210a4024d2ca8f203523609",
	trainSetVal: "3552534a0a558bbed6aed32b30c495cca23d567ec52cac8be1a0730e8010255c",
}

const (
	imagesMagic = 0x00000803
	labelsMagic = 0x00000801
)

func searchDirectories(dir string) []string {
	if dir != "" {
		return []string{dir}
	}
	dirs := []string{tmpDirectory}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".cache", "mnist")+string(os.PathSeparator))
	}
	return dirs
}

// Load returns the train and test sets. Files are looked up in dir (or
// the default cache directories when dir is empty) and, when download
// is set, fetched over HTTP into the first directory if missing.
func Load(dir string, download bool) (train, test datasets.Set, err error) {
	dirs := searchDirectories(dir)

	if download {
		if err = fetchMissing(dirs[0], missingFiles(dirs)); err != nil {
			return train, test, err
		}
	}

	return load(dirs, true)
}

func missingFiles(dirs []string) (names []string) {
	for name := range digests {
		if locate(dirs, name) == "" {
			names = append(names, name)
		}
	}
	return
}

func locate(dirs []string, name string) string {
	for _, d := range dirs {
		p := filepath.Join(d, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func load(dirs []string, verify bool) (train, test datasets.Set, err error) {
	trainImgs, err := readImages(dirs, trainSetImg, verify)
	if err != nil {
		return train, test, err
	}
	trainLabels, err := readLabels(dirs, trainSetVal, verify)
	if err != nil {
		return train, test, err
	}
	testImgs, err := readImages(dirs, testSetImg, verify)
	if err != nil {
		return train, test, err
	}
	testLabels, err := readLabels(dirs, testSetVal, verify)
	if err != nil {
		return train, test, err
	}

	train, err = makeSet(trainImgs, trainLabels)
	if err != nil {
		return train, test, errors.Wrap(err, trainSetImg)
	}
	test, err = makeSet(testImgs, testLabels)
	if err != nil {
		return train, test, errors.Wrap(err, testSetImg)
	}
	return train, test, nil
}

func makeSet(imgs [][][]float32, labels []byte) (datasets.Set, error) {
	if len(imgs) != len(labels) {
		return datasets.Set{}, errors.Errorf("%d images but %d labels", len(imgs), len(labels))
	}
	set := datasets.Set{Classes: NumClasses, Samples: make([]datasets.Sample, len(imgs))}
	for i := range imgs {
		if int(labels[i]) >= NumClasses {
			return datasets.Set{}, errors.Errorf("label %d out of range at sample %d", labels[i], i)
		}
		set.Samples[i] = datasets.Sample{Seq: imgs[i], Label: int(labels[i])}
	}
	return set, nil
}

func readFile(dirs []string, name string, verify bool) ([]byte, error) {
	path := locate(dirs, name)
	if path == "" {
		return nil, errors.Errorf("file '%s' not found under %v", name, dirs)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read '%s'", path)
	}
	if verify {
		sum := fmt.Sprintf("%x", sha256.Sum256(raw))
		if sum != digests[name] {
			return nil, errors.Errorf("file hash for file '%s' is incorrect", path)
		}
	}
	gz, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrapf(err, "gunzip '%s'", path)
	}
	defer gz.Close()
	data, err := io.ReadAll(gz)
	if err != nil {
		return nil, errors.Wrapf(err, "gunzip '%s'", path)
	}
	return data, nil
}

func readImages(dirs []string, name string, verify bool) ([][][]float32, error) {
	data, err := readFile(dirs, name, verify)
	if err != nil {
		return nil, err
	}
	if len(data) < 16 {
		return nil, errors.Errorf("'%s': truncated header", name)
	}
	if magic := binary.BigEndian.Uint32(data); magic != imagesMagic {
		return nil, errors.Errorf("'%s': bad magic %#x", name, magic)
	}
	count := int(binary.BigEndian.Uint32(data[4:]))
	rows := int(binary.BigEndian.Uint32(data[8:]))
	cols := int(binary.BigEndian.Uint32(data[12:]))
	if rows != ImgSize || cols != ImgSize {
		return nil, errors.Errorf("'%s': %dx%d images, want %dx%d", name, rows, cols, ImgSize, ImgSize)
	}
	body := data[16:]
	if len(body) != count*rows*cols {
		return nil, errors.Errorf("'%s': %d bytes of pixels, want %d", name, len(body), count*rows*cols)
	}

	imgs := make([][][]float32, count)
	for i := 0; i < count; i++ {
		seq := make([][]float32, rows)
		base := i * rows * cols
		for y := 0; y < rows; y++ {
			row := make([]float32, cols)
			for x := 0; x < cols; x++ {
				row[x] = (float32(body[base+y*cols+x])/255 - 0.5) / 0.5
			}
			seq[y] = row
		}
		imgs[i] = seq
	}
	return imgs, nil
}

func readLabels(dirs []string, name string, verify bool) ([]byte, error) {
	data, err := readFile(dirs, name, verify)
	if err != nil {
		return nil, err
	}
	if len(data) < 8 {
		return nil, errors.Errorf("'%s': truncated header", name)
	}
	if magic := binary.BigEndian.Uint32(data); magic != labelsMagic {
		return nil, errors.Errorf("'%s': bad magic %#x", name, magic)
	}
	count := int(binary.BigEndian.Uint32(data[4:]))
	body := data[8:]
	if len(body) != count {
		return nil, errors.Errorf("'%s': %d labels, want %d", name, len(body), count)
	}
	return body, nil
}
