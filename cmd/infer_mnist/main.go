package main

import (
	"fmt"
	"math/rand"
	"os"
	"runtime"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/lstmvision/classifier/datasets/mnist"
	"github.com/lstmvision/classifier/evaluate"
	"github.com/lstmvision/classifier/layer/linear"
	"github.com/lstmvision/classifier/layer/lstm"
	"github.com/lstmvision/classifier/net/sequence"
	"github.com/lstmvision/classifier/report"
)

func main() {
	model := flag.String("model", "", "trained checkpoint file (.pt.gz)")
	dataDir := flag.String("data_dir", "", "MNIST cache directory")
	workers := flag.Int("num_workers", 0, "concurrent workers, 0 means NumCPU")
	useAMP := flag.Bool("use_amp", false, "classify with mixed precision forward")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Sugar()

	if *model == "" {
		fmt.Fprintln(os.Stderr, "usage: infer_mnist --model <checkpoint.pt.gz>")
		os.Exit(2)
	}
	if *workers <= 0 {
		*workers = runtime.NumCPU()
	}

	cp, err := sequence.ReadCompressedCheckpointFromFile(*model)
	if err != nil {
		log.Fatalf("load checkpoint: %v", err)
	}
	net := buildNetwork(cp.Arch, rand.New(rand.NewSource(0)))
	if err := net.Restore(cp); err != nil {
		log.Fatalf("restore checkpoint: %v", err)
	}
	log.Infof("loaded %s (epoch %d, val loss %.4f, %d parameters)",
		*model, cp.Epoch, cp.ValLoss, net.NumParams())

	_, testSet, err := mnist.Load(*dataDir, true)
	if err != nil {
		log.Fatalf("load MNIST: %v", err)
	}

	correct, total := evaluate.CheckAccuracy(log, net, testSet, *workers, *useAMP, "Test")
	confusion := evaluate.ConfusionMatrix(net, testSet, *workers, *useAMP)
	fmt.Println(report.AccuracyTable(evaluate.PerClassAccuracy(confusion), correct, total))
}

// buildNetwork assembles the classifier recorded in a checkpoint.
// Dropout is inert at inference, so only the learnable layers are
// rebuilt; checkpoints carry no dropout tensors.
func buildNetwork(arch sequence.Arch, rng *rand.Rand) *sequence.Network {
	var net sequence.Network
	in := arch.InputSize
	for l := 0; l < arch.NumLayers; l++ {
		net.AddLayer(lstm.MustNew(in, arch.HiddenSize, arch.Bidirectional, rng))
		in = arch.HiddenSize
		if arch.Bidirectional {
			in *= 2
		}
	}
	net.AddLayer(linear.MustNew(in, arch.NumClasses, rng))
	return &net
}
