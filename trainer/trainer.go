package trainer

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/lstmvision/classifier/datasets"
	"github.com/lstmvision/classifier/layer"
	"github.com/lstmvision/classifier/learning"
	"github.com/lstmvision/classifier/learning/amp"
	"github.com/lstmvision/classifier/net/sequence"
	"github.com/lstmvision/classifier/parallel"
	"github.com/lstmvision/classifier/tensor"
)

// Config controls the epoch loop.
type Config struct {
	NumEpochs int
	BatchSize int
	Workers   int // concurrent batch chunks, 0 means NumCPU

	FreqOutputTrain int // progress line every N train batches
	FreqOutputVal   int // progress line every N val batches

	SavingPath string
	Seed       int64

	// EpochHook, when set, observes the metrics of every finished
	// epoch (history store, external loggers).
	EpochHook func(epoch int, trainLoss, valLoss, trainAcc, valAcc float64)
}

// Result collects the per-epoch metrics and the best checkpoint.
type Result struct {
	TrainLosses []float64
	ValLosses   []float64
	TrainAccs   []float64
	ValAccs     []float64

	BestValLoss    float64
	BestEpoch      int
	CheckpointFile string
	SkippedSteps   int // optimizer steps skipped by the amp scaler
}

type chunkStats struct {
	sumLoss float64
	correct int
	grads   map[*layer.Param][]float32
}

// TrainAndValidate runs the training epochs with a validation pass
// after each one. The checkpoint with the lowest validation loss is
// written under cfg.SavingPath together with the optimizer state.
func TrainAndValidate(
	log *zap.SugaredLogger,
	net *sequence.Network,
	arch sequence.Arch,
	h *learning.HyperParameters,
	opt *learning.Adam,
	scaler *amp.Scaler,
	train, val datasets.Set,
	cfg Config,
) (*Result, error) {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	accumSteps := h.GradAccumSteps
	if accumSteps <= 0 {
		accumSteps = 1
	}
	if val.Len() == 0 {
		return nil, errors.New("validation set is empty; lower train_split")
	}
	if cfg.SavingPath != "" {
		if err := os.MkdirAll(cfg.SavingPath, 0755); err != nil {
			return nil, errors.Wrap(err, "create saving path")
		}
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	res := &Result{BestValLoss: math.Inf(1), BestEpoch: -1}
	timestamp := time.Now().Format("02p01p2006_15p04p05")
	cpName := fmt.Sprintf("lstm_best_cp_%s.pt.gz", timestamp)

	started := StartTimer()
	for epoch := 0; epoch < cfg.NumEpochs; epoch++ {
		t0 := time.Now()
		train.Shuffle(rng)

		var sumLoss float64
		var correct int
		accum := make(map[*layer.Param][]float32)
		accumulated := 0

		for b := 0; b*cfg.BatchSize < train.Len(); b++ {
			lo := b * cfg.BatchSize
			hi := lo + cfg.BatchSize
			if hi > train.Len() {
				hi = train.Len()
			}
			batch := train.Samples[lo:hi]
			denom := float32(len(batch) * accumSteps)

			chunks := parallel.Chunks(len(batch), workers)
			stats := make([]chunkStats, len(chunks))
			parallel.ForEach(len(chunks), workers, func(ci int) {
				ctx := layer.NewCtx(true, scaler.Enabled(),
					cfg.Seed+int64(epoch)<<40+int64(b)<<20+int64(ci))
				st := &stats[ci]
				for idx := chunks[ci].Lo; idx < chunks[ci].Hi; idx++ {
					s := batch[idx]
					out := net.Forward(ctx, s.Seq)
					loss, dlogits := learning.CrossEntropy(out[0], s.Label, h.LabelSmoothing)
					st.sumLoss += float64(loss)
					if argmax(out[0]) == s.Label {
						st.correct++
					}
					tensor.Scale(scaler.Scale()/denom, dlogits)
					net.Backward(ctx, [][]float32{dlogits})
				}
				st.grads = ctx.Grads()
			})

			var batchLoss float64
			for i := range stats {
				sumLoss += stats[i].sumLoss
				batchLoss += stats[i].sumLoss
				correct += stats[i].correct
				mergeGrads(accum, stats[i].grads)
			}
			accumulated++

			if accumulated == accumSteps {
				res.SkippedSteps += applyStep(opt, scaler, accum)
				accum = make(map[*layer.Param][]float32)
				accumulated = 0
			}

			if cfg.FreqOutputTrain > 0 && b%cfg.FreqOutputTrain == 0 {
				log.Infof("Train epoch: %d [%05d / %d (%05.2f %%)]\tTrain loss: %.4f\tRuntime: %.3f s",
					epoch, lo, train.Len(), 100*float64(lo)/float64(train.Len()),
					batchLoss/float64(len(batch)), time.Since(t0).Seconds())
			}
		}
		if accumulated > 0 {
			res.SkippedSteps += applyStep(opt, scaler, accum)
		}

		valLoss, valCorrect := validate(log, net, scaler, val, cfg, workers, h.LabelSmoothing, epoch, t0)

		trainLoss := sumLoss / float64(train.Len())
		trainAcc := float64(correct) / float64(train.Len())
		valAcc := float64(valCorrect) / float64(val.Len())
		res.TrainLosses = append(res.TrainLosses, trainLoss)
		res.ValLosses = append(res.ValLosses, valLoss)
		res.TrainAccs = append(res.TrainAccs, trainAcc)
		res.ValAccs = append(res.ValAccs, valAcc)

		log.Infof("Epoch %02d: %.2f sec ...\nAveraged train loss: %.4f\tTrain acc: %.2f %%\nAveraged val loss: %.4f\tVal acc: %.2f %%",
			epoch, time.Since(t0).Seconds(), trainLoss, 100*trainAcc, valLoss, 100*valAcc)
		h.Logf("epoch %d train_loss %.6f val_loss %.6f train_acc %.4f val_acc %.4f",
			epoch, trainLoss, valLoss, trainAcc, valAcc)
		if cfg.EpochHook != nil {
			cfg.EpochHook(epoch, trainLoss, valLoss, trainAcc, valAcc)
		}

		if valLoss < res.BestValLoss {
			res.BestValLoss = valLoss
			res.BestEpoch = epoch
			file := filepath.Join(cfg.SavingPath, cpName)
			if err := saveCheckpoint(net, arch, opt, epoch, valLoss, file); err != nil {
				return nil, err
			}
			res.CheckpointFile = file
		}
	}
	EndTimerAndLog(log, started, fmt.Sprintf("Training %d epoch(s)", cfg.NumEpochs))

	return res, nil
}

// validate runs a forward-only pass over the validation set.
func validate(log *zap.SugaredLogger, net *sequence.Network, scaler *amp.Scaler,
	val datasets.Set, cfg Config, workers int, smoothing float32, epoch int, t0 time.Time) (float64, int) {

	var sumLoss float64
	var correct int
	for b := 0; b*cfg.BatchSize < val.Len(); b++ {
		lo := b * cfg.BatchSize
		hi := lo + cfg.BatchSize
		if hi > val.Len() {
			hi = val.Len()
		}
		batch := val.Samples[lo:hi]

		chunks := parallel.Chunks(len(batch), workers)
		stats := make([]chunkStats, len(chunks))
		parallel.ForEach(len(chunks), workers, func(ci int) {
			ctx := layer.NewCtx(false, scaler.Enabled(), 0)
			st := &stats[ci]
			for idx := chunks[ci].Lo; idx < chunks[ci].Hi; idx++ {
				s := batch[idx]
				out := net.Forward(ctx, s.Seq)
				loss, _ := learning.CrossEntropy(out[0], s.Label, smoothing)
				st.sumLoss += float64(loss)
				if argmax(out[0]) == s.Label {
					st.correct++
				}
			}
		})

		var batchLoss float64
		for i := range stats {
			sumLoss += stats[i].sumLoss
			batchLoss += stats[i].sumLoss
			correct += stats[i].correct
		}
		if cfg.FreqOutputVal > 0 && b%cfg.FreqOutputVal == 0 {
			log.Infof("Val epoch: %d [%05d / %d (%05.2f %%)]\t\tVal loss: %.4f\tRuntime: %.3f s",
				epoch, lo, val.Len(), 100*float64(lo)/float64(val.Len()),
				batchLoss/float64(len(batch)), time.Since(t0).Seconds())
		}
	}
	return sumLoss / float64(val.Len()), correct
}

// applyStep unscales the accumulated gradients and steps the optimizer
// unless the scaler found an overflow. Returns 1 when the step was
// skipped.
func applyStep(opt *learning.Adam, scaler *amp.Scaler, grads map[*layer.Param][]float32) int {
	finite := scaler.Unscale(grads)
	skipped := 0
	if finite {
		opt.Step(grads)
	} else {
		skipped = 1
	}
	scaler.Update(finite)
	return skipped
}

func saveCheckpoint(net *sequence.Network, arch sequence.Arch, opt *learning.Adam,
	epoch int, valLoss float64, file string) error {

	m, v, step := opt.State()
	cp := &sequence.Checkpoint{
		Arch:    arch,
		Epoch:   epoch,
		Step:    step,
		ValLoss: valLoss,
		AdamM:   m,
		AdamV:   v,
	}
	net.Snapshot(cp)
	return sequence.WriteCompressedCheckpointToFile(file, cp)
}

func mergeGrads(dst, src map[*layer.Param][]float32) {
	for p, g := range src {
		if d, ok := dst[p]; ok {
			tensor.Axpy(1, g, d)
		} else {
			dst[p] = g
		}
	}
}

func argmax(x []float32) int {
	best := 0
	for j := 1; j < len(x); j++ {
		if x[j] > x[best] {
			best = j
		}
	}
	return best
}
