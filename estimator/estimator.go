// Package estimator is the fit/predict entry point: it turns a flat
// configuration into a model spec, a worker pool and a coordinator run, and
// hands back a fitted predictor.
package estimator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/absmach/cohort/coordinator"
	"github.com/absmach/cohort/pkg/dataset"
	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/fl"
	"github.com/absmach/cohort/pkg/model"
	"github.com/absmach/cohort/pkg/model/dense"
	"github.com/absmach/cohort/pkg/storage"
	"github.com/absmach/cohort/predictor"
	"github.com/absmach/cohort/worker"
)

const (
	VerbosityQuiet = iota
	VerbosityInfo
	VerbosityDebug
)

type Config struct {
	FeatureColumn string     `toml:"feature_column" json:"feature_column,omitempty"`
	LabelColumn   string     `toml:"label_column"   json:"label_column,omitempty"`
	Mode          model.Mode `toml:"mode"           json:"mode,omitempty"`
	// NumClasses of zero means the number of distinct labels in the dataset.
	NumClasses int `toml:"num_classes" json:"num_classes,omitempty"`

	Engine string `toml:"engine" json:"engine,omitempty"`
	// Architecture is passed to the engine as is. When empty and the engine
	// is dense, Hidden is encoded instead.
	Architecture []byte  `toml:"architecture"  json:"architecture,omitempty"`
	Hidden       []int   `toml:"hidden"        json:"hidden,omitempty"`
	LearningRate float64 `toml:"learning_rate" json:"learning_rate,omitempty"`
	L2           float64 `toml:"l2"            json:"l2,omitempty"`

	NumWorkers         int                     `toml:"num_workers"          json:"num_workers,omitempty"`
	Epochs             int                     `toml:"epochs"               json:"epochs,omitempty"`
	Rounds             int                     `toml:"rounds"               json:"rounds,omitempty"`
	BatchSize          int                     `toml:"batch_size"           json:"batch_size,omitempty"`
	ValidationFraction float64                 `toml:"validation_fraction"  json:"validation_fraction,omitempty"`
	Verbosity          int                     `toml:"verbosity"            json:"verbosity,omitempty"`
	Policy             fl.Policy               `toml:"policy"               json:"policy,omitempty"`
	Decay              float64                 `toml:"decay"                json:"decay,omitempty"`
	CollectMode        coordinator.CollectMode `toml:"collect_mode"         json:"collect_mode,omitempty"`
	QuorumFraction     float64                 `toml:"quorum_fraction"      json:"quorum_fraction,omitempty"`
	RetryLimit         int                     `toml:"retry_limit"          json:"retry_limit,omitempty"`
	RetryInterval      time.Duration           `toml:"retry_interval"       json:"retry_interval,omitempty"`
	RoundTimeout       time.Duration           `toml:"round_timeout"        json:"round_timeout,omitempty"`
	CancelMode         coordinator.CancelMode  `toml:"cancel_mode"          json:"cancel_mode,omitempty"`
	Shuffle            bool                    `toml:"shuffle"              json:"shuffle,omitempty"`
	ReshuffleEachRound bool                    `toml:"reshuffle_each_round" json:"reshuffle_each_round,omitempty"`
	Parallelism        int                     `toml:"parallelism"          json:"parallelism,omitempty"`
	Seed               uint64                  `toml:"seed"                 json:"seed,omitempty"`
}

func DefaultConfig() Config {
	cc := coordinator.DefaultConfig()

	return Config{
		FeatureColumn:      dataset.DefFeatureColumn,
		LabelColumn:        dataset.DefLabelColumn,
		Mode:               model.Categorical,
		Engine:             dense.Name,
		LearningRate:       0.05,
		NumWorkers:         cc.NumWorkers,
		Epochs:             cc.Epochs,
		Rounds:             cc.Rounds,
		BatchSize:          cc.BatchSize,
		ValidationFraction: cc.ValidationFraction,
		Verbosity:          VerbosityInfo,
		Policy:             cc.Policy,
		Decay:              cc.Decay,
		CollectMode:        cc.CollectMode,
		QuorumFraction:     cc.QuorumFraction,
		RetryLimit:         cc.RetryLimit,
		RetryInterval:      cc.RetryInterval,
		RoundTimeout:       cc.RoundTimeout,
		CancelMode:         cc.CancelMode,
		Shuffle:            cc.Shuffle,
		Seed:               cc.Seed,
	}
}

// Coordinator returns the coordinator settings carried by c.
func (c Config) Coordinator() coordinator.Config {
	return coordinator.Config{
		NumWorkers:         c.NumWorkers,
		Epochs:             c.Epochs,
		Rounds:             c.Rounds,
		BatchSize:          c.BatchSize,
		ValidationFraction: c.ValidationFraction,
		Policy:             c.Policy,
		Decay:              c.Decay,
		CollectMode:        c.CollectMode,
		QuorumFraction:     c.QuorumFraction,
		RetryLimit:         c.RetryLimit,
		RetryInterval:      c.RetryInterval,
		RoundTimeout:       c.RoundTimeout,
		CancelMode:         c.CancelMode,
		Shuffle:            c.Shuffle,
		ReshuffleEachRound: c.ReshuffleEachRound,
		Parallelism:        c.Parallelism,
		Seed:               c.Seed,
	}
}

func (c Config) Validate() error {
	if c.Verbosity < VerbosityQuiet || c.Verbosity > VerbosityDebug {
		return fmt.Errorf("%w: verbosity must be 0, 1 or 2, got %d", pkgerrors.ErrInvalidConfiguration, c.Verbosity)
	}
	if c.NumClasses < 0 {
		return fmt.Errorf("%w: num_classes must not be negative", pkgerrors.ErrInvalidConfiguration)
	}
	if c.LearningRate < 0 || c.L2 < 0 {
		return fmt.Errorf("%w: learning_rate and l2 must not be negative", pkgerrors.ErrInvalidConfiguration)
	}

	return c.Coordinator().Validate()
}

// Spec builds the model spec for ds.
func (c Config) Spec(ds dataset.Dataset) (model.Spec, error) {
	spec := model.Spec{
		FormatVersion: model.FormatVersion,
		Engine:        c.Engine,
		Architecture:  append([]byte(nil), c.Architecture...),
		Optimizer:     model.OptimizerSGD,
		Mode:          c.Mode,
		InputDim:      ds.NumFeatures(),
		Hyperparams:   map[string]float64{},
	}
	if spec.Engine == "" {
		spec.Engine = dense.Name
	}
	if spec.Mode == "" {
		spec.Mode = model.Categorical
	}
	if len(spec.Architecture) == 0 && spec.Engine == dense.Name {
		spec.Architecture = dense.EncodeArchitecture(c.Hidden...)
	}
	if c.LearningRate > 0 {
		spec.Hyperparams[model.HyperLearningRate] = c.LearningRate
	}
	if c.L2 > 0 {
		spec.Hyperparams[model.HyperL2] = c.L2
	}

	switch spec.Mode {
	case model.Regression:
		spec.Loss = model.LossMSE
		spec.NumClasses = 1
	default:
		spec.Loss = model.LossCrossEntropy
		spec.NumClasses = c.NumClasses
		if spec.NumClasses == 0 {
			spec.NumClasses = ds.NumLabels()
		}
	}

	return spec, spec.Validate()
}

type Option func(*Estimator)

// WithPool trains on pool instead of an in-process pool of NumWorkers.
func WithPool(pool *worker.Pool) Option {
	return func(e *Estimator) {
		e.pool = pool
	}
}

func WithHistory(h storage.History) Option {
	return func(e *Estimator) {
		e.history = h
	}
}

// WithLogger overrides the logger derived from Verbosity.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Estimator) {
		e.logger = logger
	}
}

func WithRoundHook(fn coordinator.RoundHook) Option {
	return func(e *Estimator) {
		e.hooks = append(e.hooks, fn)
	}
}

func WithFitID(id string) Option {
	return func(e *Estimator) {
		e.fitID = id
	}
}

type Estimator struct {
	cfg     Config
	pool    *worker.Pool
	history storage.History
	logger  *slog.Logger
	hooks   []coordinator.RoundHook
	fitID   string
}

func New(cfg Config, opts ...Option) *Estimator {
	e := &Estimator{cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: Level(cfg.Verbosity)}))
	}

	return e
}

// Level maps a verbosity of 0, 1 or 2 to a log level.
func Level(verbosity int) slog.Level {
	switch {
	case verbosity <= VerbosityQuiet:
		return slog.LevelWarn
	case verbosity == VerbosityInfo:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// Fit trains on ds and returns a predictor over the last published
// parameters. A gracefully cancelled fit still yields a predictor.
func (e *Estimator) Fit(ctx context.Context, ds dataset.Dataset) (*predictor.Predictor, error) {
	p, _, err := e.FitResult(ctx, ds)

	return p, err
}

// FitResult is Fit that also returns the coordinator result with the round
// history.
func (e *Estimator) FitResult(ctx context.Context, ds dataset.Dataset) (*predictor.Predictor, coordinator.Result, error) {
	if err := e.cfg.Validate(); err != nil {
		return nil, coordinator.Result{}, err
	}
	if ds == nil || ds.Len() == 0 {
		return nil, coordinator.Result{}, fmt.Errorf("%w: dataset is empty", pkgerrors.ErrInvalidConfiguration)
	}
	if err := e.checkColumns(ds); err != nil {
		return nil, coordinator.Result{}, err
	}
	spec, err := e.cfg.Spec(ds)
	if err != nil {
		return nil, coordinator.Result{}, err
	}

	pool := e.pool
	if pool == nil {
		if pool, err = worker.NewLocalPool(e.cfg.NumWorkers); err != nil {
			return nil, coordinator.Result{}, err
		}
	}

	opts := []coordinator.Option{coordinator.WithLogger(e.logger)}
	if e.history != nil {
		opts = append(opts, coordinator.WithHistory(e.history))
	}
	if e.fitID != "" {
		opts = append(opts, coordinator.WithFitID(e.fitID))
	}
	for _, hook := range e.hooks {
		opts = append(opts, coordinator.WithRoundHook(hook))
	}

	res, err := coordinator.New(e.cfg.Coordinator(), spec, pool, opts...).Fit(ctx, ds)
	if err != nil {
		return nil, res, err
	}
	p, err := predictor.New(spec, res.Params)
	if err != nil {
		return nil, res, err
	}

	return p, res, nil
}

func (e *Estimator) checkColumns(ds dataset.Dataset) error {
	want := [2]string{e.cfg.FeatureColumn, e.cfg.LabelColumn}
	if want[0] == "" {
		want[0] = dataset.DefFeatureColumn
	}
	if want[1] == "" {
		want[1] = dataset.DefLabelColumn
	}
	feature, label := ds.Columns()
	if feature != want[0] || label != want[1] {
		return fmt.Errorf("%w: dataset columns (%q, %q) do not match configured (%q, %q)",
			pkgerrors.ErrInvalidConfiguration, feature, label, want[0], want[1])
	}

	return nil
}
