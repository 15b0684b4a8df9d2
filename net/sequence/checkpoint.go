package sequence

import (
	"compress/lzw"
	"encoding/gob"
	"io"
	"os"

	"github.com/pkg/errors"
)

// Arch describes the classifier architecture stored in a checkpoint so
// inference can rebuild the identical network.
type Arch struct {
	InputSize      int
	SequenceLength int
	HiddenSize     int
	NumLayers      int
	NumClasses     int
	Bidirectional  bool
	Dropout        float64
}

// Checkpoint is the serialized training state: weights in Params()
// order plus the optimizer moments, mirroring what the trainer needs to
// resume (model state and optimizer state).
type Checkpoint struct {
	Arch    Arch
	Epoch   int
	Step    int
	ValLoss float64

	Weights [][]float32
	AdamM   [][]float32
	AdamV   [][]float32
}

// Snapshot copies the network weights into the checkpoint.
func (n *Network) Snapshot(cp *Checkpoint) {
	params := n.Params()
	cp.Weights = make([][]float32, len(params))
	for i, p := range params {
		w := make([]float32, len(p.Value))
		copy(w, p.Value)
		cp.Weights[i] = w
	}
}

// Restore copies checkpoint weights back into the network.
func (n *Network) Restore(cp *Checkpoint) error {
	params := n.Params()
	if len(cp.Weights) != len(params) {
		return errors.Errorf("checkpoint has %d tensors, network has %d", len(cp.Weights), len(params))
	}
	for i, p := range params {
		if len(cp.Weights[i]) != len(p.Value) {
			return errors.Errorf("checkpoint tensor %d (%s) has %d elements, want %d",
				i, p.Name, len(cp.Weights[i]), len(p.Value))
		}
		copy(p.Value, cp.Weights[i])
	}
	return nil
}

// WriteCompressedCheckpointToFile writes the checkpoint to a lzw file.
func WriteCompressedCheckpointToFile(name string, cp *Checkpoint) error {
	file, err := os.Create(name)
	if err != nil {
		return errors.Wrap(err, "create checkpoint")
	}
	err = WriteCompressedCheckpoint(file, cp)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	return err
}

// WriteCompressedCheckpoint writes the checkpoint to a writer.
func WriteCompressedCheckpoint(w io.Writer, cp *Checkpoint) error {
	lw := lzw.NewWriter(w, lzw.LSB, 8)
	if err := gob.NewEncoder(lw).Encode(cp); err != nil {
		return errors.Wrap(err, "encode checkpoint")
	}
	return lw.Close()
}

// ReadCompressedCheckpointFromFile reads a checkpoint from a lzw file.
func ReadCompressedCheckpointFromFile(name string) (*Checkpoint, error) {
	file, err := os.Open(name)
	if err != nil {
		return nil, errors.Wrap(err, "open checkpoint")
	}
	defer file.Close()
	return ReadCompressedCheckpoint(file)
}

// ReadCompressedCheckpoint reads a checkpoint from a reader.
func ReadCompressedCheckpoint(r io.Reader) (*Checkpoint, error) {
	lr := lzw.NewReader(r, lzw.LSB, 8)
	defer lr.Close()
	var cp Checkpoint
	if err := gob.NewDecoder(lr).Decode(&cp); err != nil {
		return nil, errors.Wrap(err, "decode checkpoint")
	}
	return &cp, nil
}
