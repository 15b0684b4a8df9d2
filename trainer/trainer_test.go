package trainer

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/lstmvision/classifier/datasets"
	"github.com/lstmvision/classifier/layer"
	"github.com/lstmvision/classifier/layer/linear"
	"github.com/lstmvision/classifier/layer/lstm"
	"github.com/lstmvision/classifier/learning"
	"github.com/lstmvision/classifier/learning/amp"
	"github.com/lstmvision/classifier/net/sequence"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// toySet builds a trivially separable two-class problem: class 0 is a
// constant sequence lit on feature 0, class 1 on feature 1.
func toySet(perClass int) datasets.Set {
	set := datasets.Set{Classes: 2}
	for c := 0; c < 2; c++ {
		row := make([]float32, 3)
		row[c] = 1
		seq := [][]float32{row, row, row, row}
		for i := 0; i < perClass; i++ {
			set.Samples = append(set.Samples, datasets.Sample{Seq: seq, Label: c})
		}
	}
	return set
}

func toyNetwork(seed int64) (*sequence.Network, sequence.Arch) {
	rng := rand.New(rand.NewSource(seed))
	var net sequence.Network
	net.AddLayer(lstm.MustNew(3, 8, false, rng))
	net.AddLayer(linear.MustNew(8, 2, rng))
	arch := sequence.Arch{InputSize: 3, SequenceLength: 4, HiddenSize: 8, NumLayers: 1, NumClasses: 2}
	return &net, arch
}

func hyper() *learning.HyperParameters {
	return &learning.HyperParameters{
		LearningRate: 0.05,
		Beta1:        0.9,
		Beta2:        0.999,
		Eps:          1e-8,
	}
}

func TestTrainAndValidateOverfitsToyProblem(t *testing.T) {
	net, arch := toyNetwork(1)
	h := hyper()
	opt := learning.NewAdam(h, net.Params())

	cfg := Config{
		NumEpochs:  30,
		BatchSize:  8,
		Workers:    2,
		SavingPath: t.TempDir(),
		Seed:       1,
	}
	res, err := TrainAndValidate(zap.NewNop().Sugar(), net, arch, h, opt,
		amp.NewScaler(false), toySet(8), toySet(4), cfg)
	require.NoError(t, err)

	require.Len(t, res.TrainLosses, 30)
	require.Len(t, res.ValLosses, 30)
	require.Len(t, res.ValAccs, 30)

	assert.Less(t, res.TrainLosses[29], res.TrainLosses[0])
	assert.GreaterOrEqual(t, res.ValAccs[29], 0.9)
	assert.GreaterOrEqual(t, res.BestEpoch, 0)
	assert.Equal(t, res.BestValLoss, minOf(res.ValLosses))
	assert.Zero(t, res.SkippedSteps)

	// best checkpoint is on disk, restorable, and carries the state
	require.NotEmpty(t, res.CheckpointFile)
	cp, err := sequence.ReadCompressedCheckpointFromFile(res.CheckpointFile)
	require.NoError(t, err)
	assert.Equal(t, arch, cp.Arch)
	assert.Equal(t, res.BestEpoch, cp.Epoch)
	assert.Positive(t, cp.Step)
	require.NoError(t, net.Restore(cp))

	fresh := learning.NewAdam(h, net.Params())
	assert.True(t, fresh.SetState(cp.AdamM, cp.AdamV, cp.Step))
}

func TestTrainAndValidateWithAMP(t *testing.T) {
	net, arch := toyNetwork(2)
	h := hyper()
	opt := learning.NewAdam(h, net.Params())

	cfg := Config{
		NumEpochs:  5,
		BatchSize:  4,
		Workers:    2,
		SavingPath: t.TempDir(),
		Seed:       2,
	}
	res, err := TrainAndValidate(zap.NewNop().Sugar(), net, arch, h, opt,
		amp.NewScaler(true), toySet(4), toySet(2), cfg)
	require.NoError(t, err)

	for _, l := range res.TrainLosses {
		assert.False(t, math.IsNaN(l) || math.IsInf(l, 0))
	}
	for _, l := range res.ValLosses {
		assert.False(t, math.IsNaN(l) || math.IsInf(l, 0))
	}
}

func TestTrainAndValidateGradAccum(t *testing.T) {
	net, arch := toyNetwork(3)
	h := hyper()
	h.GradAccumSteps = 2
	h.MaxNorm = 1
	opt := learning.NewAdam(h, net.Params())

	cfg := Config{
		NumEpochs:  4,
		BatchSize:  4,
		Workers:    3,
		SavingPath: t.TempDir(),
		Seed:       3,
	}
	// 16 samples, batch 4, accumulation 2: two optimizer steps per epoch
	res, err := TrainAndValidate(zap.NewNop().Sugar(), net, arch, h, opt,
		amp.NewScaler(false), toySet(8), toySet(2), cfg)
	require.NoError(t, err)
	require.Len(t, res.TrainLosses, 4)
	assert.Equal(t, 8, opt.StepCount())
}

func TestTrainAndValidateEpochHook(t *testing.T) {
	net, arch := toyNetwork(4)
	h := hyper()
	opt := learning.NewAdam(h, net.Params())

	var epochs []int
	cfg := Config{
		NumEpochs:  3,
		BatchSize:  8,
		Workers:    1,
		SavingPath: t.TempDir(),
		Seed:       4,
		EpochHook: func(epoch int, trainLoss, valLoss, trainAcc, valAcc float64) {
			epochs = append(epochs, epoch)
			assert.False(t, math.IsNaN(trainLoss))
			assert.False(t, math.IsNaN(valLoss))
		},
	}
	_, err := TrainAndValidate(zap.NewNop().Sugar(), net, arch, h, opt,
		amp.NewScaler(false), toySet(4), toySet(2), cfg)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, epochs)
}

func TestTrainAndValidateZeroEpochs(t *testing.T) {
	net, arch := toyNetwork(5)
	h := hyper()
	opt := learning.NewAdam(h, net.Params())

	res, err := TrainAndValidate(zap.NewNop().Sugar(), net, arch, h, opt,
		amp.NewScaler(false), toySet(2), toySet(1), Config{BatchSize: 2, SavingPath: t.TempDir()})
	require.NoError(t, err)
	assert.Empty(t, res.TrainLosses)
	assert.Empty(t, res.CheckpointFile)
	assert.Equal(t, -1, res.BestEpoch)
	assert.Zero(t, opt.StepCount())
}

func TestApplyStepSkipsOverflowWithoutAdvancingAdam(t *testing.T) {
	net, _ := toyNetwork(6)
	h := hyper()
	opt := learning.NewAdam(h, net.Params())
	scaler := amp.NewScaler(true)

	p := net.Params()[0]
	before := append([]float32(nil), p.Value...)

	grads := map[*layer.Param][]float32{p: make([]float32, p.Size())}
	grads[p][0] = float32(math.Inf(1))
	skipped := applyStep(opt, scaler, grads)

	assert.Equal(t, 1, skipped)
	assert.Zero(t, opt.StepCount())
	assert.Equal(t, before, p.Value)
	assert.Equal(t, float32(32768), scaler.Scale(), "overflow backs the scale off")

	// a finite step afterwards applies normally
	finite := map[*layer.Param][]float32{p: make([]float32, p.Size())}
	for i := range finite[p] {
		finite[p][i] = 0.1
	}
	assert.Zero(t, applyStep(opt, scaler, finite))
	assert.Equal(t, 1, opt.StepCount())
	assert.NotEqual(t, before, p.Value)
}

func TestValidateDoesNotMutateWeights(t *testing.T) {
	net, _ := toyNetwork(7)
	h := hyper()

	var before [][]float32
	for _, p := range net.Params() {
		before = append(before, append([]float32(nil), p.Value...))
	}

	cfg := Config{BatchSize: 4}
	loss, correct := validate(zap.NewNop().Sugar(), net, amp.NewScaler(false),
		toySet(4), cfg, 2, h.LabelSmoothing, 0, time.Now())
	assert.False(t, math.IsNaN(loss))
	assert.GreaterOrEqual(t, correct, 0)

	for i, p := range net.Params() {
		assert.Equalf(t, before[i], p.Value, "param %s changed during validation", p.Name)
	}
}

func TestTrainAndValidateRejectsEmptyValidationSet(t *testing.T) {
	net, arch := toyNetwork(8)
	h := hyper()
	opt := learning.NewAdam(h, net.Params())

	_, err := TrainAndValidate(zap.NewNop().Sugar(), net, arch, h, opt,
		amp.NewScaler(false), toySet(4), datasets.Set{Classes: 2},
		Config{NumEpochs: 1, BatchSize: 4, SavingPath: t.TempDir()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation set is empty")
}

func TestMergeGrads(t *testing.T) {
	p := layer.NewParam("p", 2, 1)
	q := layer.NewParam("q", 1, 1)

	dst := map[*layer.Param][]float32{p: {1, 2}}
	mergeGrads(dst, map[*layer.Param][]float32{p: {10, 20}, q: {5}})
	assert.Equal(t, []float32{11, 22}, dst[p])
	assert.Equal(t, []float32{5}, dst[q])
}

func TestArgmax(t *testing.T) {
	assert.Equal(t, 0, argmax([]float32{3, 1, 2}))
	assert.Equal(t, 2, argmax([]float32{-5, -2, -1}))
	assert.Equal(t, 0, argmax([]float32{1, 1}))
}

func minOf(xs []float64) float64 {
	m := math.Inf(1)
	for _, x := range xs {
		if x < m {
			m = x
		}
	}
	return m
}
