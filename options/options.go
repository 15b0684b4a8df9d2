// Package options implements the training command line: the TrainOptions
// flag set with an optional YAML config file that explicit flags
// override.
package options

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// TrainOptions carries every knob of a training run.
type TrainOptions struct {
	Bidirectional bool   `yaml:"bidirectional"`
	NumEpochs     int    `yaml:"num_epochs"`
	SeedNumber    int    `yaml:"seed_number"`
	TexFilePath   string `yaml:"tex__file_path"`
	UseAMP        bool   `yaml:"use_amp"`

	InputSize      int `yaml:"input_size"`
	ChannelsImg    int `yaml:"channels_img"`
	SequenceLength int `yaml:"sequence_length"`
	NumLayers      int `yaml:"num_layers"`
	HiddenSize     int `yaml:"hidden_size"`
	BatchSize      int `yaml:"batch_size"`

	LearningRate   float64 `yaml:"learning_rate"`
	Beta1          float64 `yaml:"beta_1"`
	Beta2          float64 `yaml:"beta_2"`
	Eps            float64 `yaml:"eps"`
	WeightDecay    float64 `yaml:"weight_decay"`
	Dropout        float64 `yaml:"dropout"`
	LabelSmoothing float64 `yaml:"label_smoothing"`
	MaxNorm        float64 `yaml:"max_norm"`

	NumGradAccumSteps int `yaml:"num_grad_accum_steps"`
	NumWorkers        int `yaml:"num_workers"`
	TrainSplit        int `yaml:"train_split"`

	SavingPath  string `yaml:"saving_path"`
	LoadingPath string `yaml:"loading_path"`
	DataDir     string `yaml:"data_dir"`
	HistoryDB   string `yaml:"history_db"`
	MetricsLog  string `yaml:"metrics_log"`

	FreqOutputTrain int `yaml:"freq_output__train"`
	FreqOutputVal   int `yaml:"freq_output__val"`

	Config string `yaml:"-"`
}

// Defaults returns the built-in option values.
func Defaults() TrainOptions {
	return TrainOptions{
		NumEpochs:       1,
		SeedNumber:      0,
		TexFilePath:     "out/out.tex",
		InputSize:       28,
		ChannelsImg:     1,
		SequenceLength:  28,
		NumLayers:       2,
		HiddenSize:      128,
		BatchSize:       64,
		LearningRate:    1e-4,
		Beta1:           0.9,
		Beta2:           0.999,
		Eps:             1e-8,
		TrainSplit:      50000,
		SavingPath:      "out",
		FreqOutputTrain: 10,
		FreqOutputVal:   5,
	}
}

func bind(fs *flag.FlagSet, o *TrainOptions) {
	fs.BoolVar(&o.Bidirectional, "bidirectional", o.Bidirectional, "scan input sequences in both directions")
	fs.IntVar(&o.NumEpochs, "num_epochs", o.NumEpochs, "number of training epochs")
	fs.IntVar(&o.SeedNumber, "seed_number", o.SeedNumber, "rng seed; negative disables seeding")
	fs.StringVar(&o.TexFilePath, "tex__file_path", o.TexFilePath, "path of the generated LaTeX artifact")
	fs.BoolVar(&o.UseAMP, "use_amp", o.UseAMP, "enable automatic mixed precision")

	fs.IntVar(&o.InputSize, "input_size", o.InputSize, "features per timestep (image width)")
	fs.IntVar(&o.ChannelsImg, "channels_img", o.ChannelsImg, "image channels")
	fs.IntVar(&o.SequenceLength, "sequence_length", o.SequenceLength, "timesteps per sample (image height)")
	fs.IntVar(&o.NumLayers, "num_layers", o.NumLayers, "stacked LSTM layers")
	fs.IntVar(&o.HiddenSize, "hidden_size", o.HiddenSize, "hidden units per direction")
	fs.IntVar(&o.BatchSize, "batch_size", o.BatchSize, "samples per batch")

	fs.Float64Var(&o.LearningRate, "learning_rate", o.LearningRate, "Adam learning rate")
	fs.Float64Var(&o.Beta1, "beta_1", o.Beta1, "Adam beta1")
	fs.Float64Var(&o.Beta2, "beta_2", o.Beta2, "Adam beta2")
	fs.Float64Var(&o.Eps, "eps", o.Eps, "Adam epsilon")
	fs.Float64Var(&o.WeightDecay, "weight_decay", o.WeightDecay, "decoupled weight decay")
	fs.Float64Var(&o.Dropout, "dropout", o.Dropout, "dropout rate between stacked layers")
	fs.Float64Var(&o.LabelSmoothing, "label_smoothing", o.LabelSmoothing, "cross entropy label smoothing")
	fs.Float64Var(&o.MaxNorm, "max_norm", o.MaxNorm, "gradient norm clip, 0 disables")

	fs.IntVar(&o.NumGradAccumSteps, "num_grad_accum_steps", o.NumGradAccumSteps, "batches accumulated per optimizer step")
	fs.IntVar(&o.NumWorkers, "num_workers", o.NumWorkers, "concurrent workers, 0 means NumCPU")
	fs.IntVar(&o.TrainSplit, "train_split", o.TrainSplit, "samples of the train set kept for training, rest validates")

	fs.StringVar(&o.SavingPath, "saving_path", o.SavingPath, "directory for checkpoints")
	fs.StringVar(&o.LoadingPath, "loading_path", o.LoadingPath, "checkpoint to resume from")
	fs.StringVar(&o.DataDir, "data_dir", o.DataDir, "MNIST cache directory")
	fs.StringVar(&o.HistoryDB, "history_db", o.HistoryDB, "sqlite run history database, empty disables")
	fs.StringVar(&o.MetricsLog, "metrics_log", o.MetricsLog, "file receiving per-epoch metric lines")

	fs.IntVar(&o.FreqOutputTrain, "freq_output__train", o.FreqOutputTrain, "train progress line every N batches")
	fs.IntVar(&o.FreqOutputVal, "freq_output__val", o.FreqOutputVal, "val progress line every N batches")

	fs.StringVar(&o.Config, "config", o.Config, "YAML config file; explicit flags override it")
}

// Parse builds TrainOptions from the argument list. When --config names
// a YAML file its values replace the defaults first, then any flag
// given explicitly wins.
func Parse(args []string) (*TrainOptions, error) {
	o := Defaults()
	fs := flag.NewFlagSet("train_mnist", flag.ContinueOnError)
	bind(fs, &o)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if o.Config != "" {
		cfg := Defaults()
		raw, err := os.ReadFile(o.Config)
		if err != nil {
			return nil, errors.Wrap(err, "read config")
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, errors.Wrap(err, "parse config")
		}
		// replay explicit flags on top of the file values
		cfg.Config = o.Config
		fs2 := flag.NewFlagSet("train_mnist", flag.ContinueOnError)
		bind(fs2, &cfg)
		if err := fs2.Parse(args); err != nil {
			return nil, err
		}
		o = cfg
	}

	if err := o.Validate(); err != nil {
		return nil, err
	}
	return &o, nil
}

// Validate rejects option values the pipeline cannot run with.
func (o *TrainOptions) Validate() error {
	switch {
	case o.NumEpochs < 0:
		return errors.New("num_epochs must not be negative")
	case o.InputSize <= 0 || o.SequenceLength <= 0:
		return errors.New("input_size and sequence_length must be positive")
	case o.ChannelsImg != 1:
		return errors.New("channels_img: only single channel input is supported")
	case o.NumLayers <= 0:
		return errors.New("num_layers must be positive")
	case o.HiddenSize <= 0:
		return errors.New("hidden_size must be positive")
	case o.BatchSize <= 0:
		return errors.New("batch_size must be positive")
	case o.LearningRate <= 0:
		return errors.New("learning_rate must be positive")
	case o.Dropout < 0 || o.Dropout >= 1:
		return errors.New("dropout must be in [0, 1)")
	case o.LabelSmoothing < 0 || o.LabelSmoothing >= 1:
		return errors.New("label_smoothing must be in [0, 1)")
	case o.MaxNorm < 0:
		return errors.New("max_norm must not be negative")
	case o.TrainSplit <= 0:
		return errors.New("train_split must be positive")
	}
	return nil
}

// String prints the options the way the launcher logs them.
func (o *TrainOptions) String() string {
	return fmt.Sprintf("%+v", *o)
}
