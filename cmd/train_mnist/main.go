package main

import (
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/lstmvision/classifier/datasets/mnist"
	"github.com/lstmvision/classifier/evaluate"
	"github.com/lstmvision/classifier/history"
	"github.com/lstmvision/classifier/learning"
	"github.com/lstmvision/classifier/learning/amp"
	"github.com/lstmvision/classifier/net/sequence"
	"github.com/lstmvision/classifier/options"
	"github.com/lstmvision/classifier/report"
	"github.com/lstmvision/classifier/trainer"
)

func main() {
	opts, err := options.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Sugar()
	log.Infof("%s", opts)

	seed := int64(opts.SeedNumber)
	if opts.SeedNumber < 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	workers := opts.NumWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	fullTrain, testSet, err := mnist.Load(opts.DataDir, true)
	if err != nil {
		log.Fatalf("load MNIST: %v", err)
	}
	trainSet, valSet := fullTrain.Split(opts.TrainSplit, rng)
	log.Infof("We have %d, %d, %d MNIST numbers to train, validate and test our LSTM with.",
		trainSet.Len(), valSet.Len(), testSet.Len())

	arch := sequence.Arch{
		InputSize:      opts.InputSize,
		SequenceLength: opts.SequenceLength,
		HiddenSize:     opts.HiddenSize,
		NumLayers:      opts.NumLayers,
		NumClasses:     mnist.NumClasses,
		Bidirectional:  opts.Bidirectional,
		Dropout:        opts.Dropout,
	}
	net := buildNetwork(arch, rng)
	fmt.Println(report.Summary(net, opts.SequenceLength, opts.InputSize))

	h := &learning.HyperParameters{
		LearningRate:   float32(opts.LearningRate),
		Beta1:          float32(opts.Beta1),
		Beta2:          float32(opts.Beta2),
		Eps:            float32(opts.Eps),
		WeightDecay:    float32(opts.WeightDecay),
		MaxNorm:        float32(opts.MaxNorm),
		LabelSmoothing: float32(opts.LabelSmoothing),
		GradAccumSteps: opts.NumGradAccumSteps,
	}
	if opts.MetricsLog != "" {
		h.SetLogger(opts.MetricsLog)
	}
	opt := learning.NewAdam(h, net.Params())

	if opts.LoadingPath != "" {
		cp, err := sequence.ReadCompressedCheckpointFromFile(opts.LoadingPath)
		if err != nil {
			log.Fatalf("load checkpoint: %v", err)
		}
		if err := net.Restore(cp); err != nil {
			log.Fatalf("restore checkpoint: %v", err)
		}
		if !opt.SetState(cp.AdamM, cp.AdamV, cp.Step) {
			log.Fatalf("checkpoint optimizer state does not match the network")
		}
		log.Infof("resumed from %s (epoch %d, val loss %.4f)", opts.LoadingPath, cp.Epoch, cp.ValLoss)
	}

	scaler := amp.NewScaler(opts.UseAMP)

	var hist *history.Store
	var runID string
	if opts.HistoryDB != "" {
		hist, err = history.Open(opts.HistoryDB)
		if err != nil {
			log.Fatalf("open history: %v", err)
		}
		defer hist.Close()
		runID, err = hist.BeginRun(opts.String())
		if err != nil {
			log.Fatalf("record run: %v", err)
		}
	}

	cfg := trainer.Config{
		NumEpochs:       opts.NumEpochs,
		BatchSize:       opts.BatchSize,
		Workers:         workers,
		FreqOutputTrain: opts.FreqOutputTrain,
		FreqOutputVal:   opts.FreqOutputVal,
		SavingPath:      opts.SavingPath,
		Seed:            seed,
	}
	if hist != nil {
		cfg.EpochHook = func(epoch int, trainLoss, valLoss, trainAcc, valAcc float64) {
			e := history.Epoch{Epoch: epoch, TrainLoss: trainLoss, ValLoss: valLoss, TrainAcc: trainAcc, ValAcc: valAcc}
			if err := hist.RecordEpoch(runID, e); err != nil {
				log.Warnf("record epoch: %v", err)
			}
		}
	}

	res, err := trainer.TrainAndValidate(log, net, arch, h, opt, scaler, trainSet, valSet, cfg)
	if err != nil {
		log.Fatalf("training: %v", err)
	}
	if res.SkippedSteps > 0 {
		log.Infof("amp scaler skipped %d overflowing step(s)", res.SkippedSteps)
	}

	// final evaluation runs on the checkpoint with the lowest val loss
	if res.CheckpointFile != "" {
		cp, err := sequence.ReadCompressedCheckpointFromFile(res.CheckpointFile)
		if err != nil {
			log.Fatalf("reload best checkpoint: %v", err)
		}
		if err := net.Restore(cp); err != nil {
			log.Fatalf("restore best checkpoint: %v", err)
		}
		log.Infof("evaluating best checkpoint %s (epoch %d, val loss %.4f)",
			res.CheckpointFile, cp.Epoch, cp.ValLoss)
	}

	trainCorrect, trainTotal := evaluate.CheckAccuracy(log, net, trainSet, workers, opts.UseAMP, "Train")
	testCorrect, testTotal := evaluate.CheckAccuracy(log, net, testSet, workers, opts.UseAMP, "Test")
	confusion := evaluate.ConfusionMatrix(net, testSet, workers, opts.UseAMP)
	fmt.Println(report.AccuracyTable(evaluate.PerClassAccuracy(confusion), testCorrect, testTotal))

	metrics := report.Metrics{
		TrainLosses: res.TrainLosses,
		ValLosses:   res.ValLosses,
		TrainAccs:   res.TrainAccs,
		ValAccs:     res.ValAccs,
	}
	if err := report.WriteTex(opts.TexFilePath, metrics, confusion); err != nil {
		log.Fatalf("write artifact: %v", err)
	}
	log.Infof("wrote %s", opts.TexFilePath)

	if hist != nil {
		if err := hist.FinishRun(runID,
			float64(trainCorrect)/float64(trainTotal),
			float64(testCorrect)/float64(testTotal)); err != nil {
			log.Warnf("finish run: %v", err)
		}
	}
}
