package transform

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Outcome labels for Recorder observations.
const (
	OutcomeApplied = "applied"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// DefaultMissingValues are the cell markers treated as missing: the NA
// spellings spreadsheet and CSV exporters commonly write.
var DefaultMissingValues = []string{
	"", "#N/A", "#N/A N/A", "#NA", "-1.#IND", "-1.#QNAN", "-NaN", "-nan",
	"1.#IND", "1.#QNAN", "<NA>", "N/A", "NA", "NULL", "NaN", "None",
	"n/a", "nan", "null",
}

// Recorder observes the outcome of each dispatched operation.
type Recorder interface {
	ObserveOperation(op OperationType, outcome string, d time.Duration)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRecorder attaches an operation Recorder.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// WithMissingValues replaces the set of cell markers normalized to "".
func WithMissingValues(tokens []string) Option {
	return func(d *Dispatcher) {
		d.missing = make(map[string]struct{}, len(tokens))
		for _, tok := range tokens {
			d.missing[tok] = struct{}{}
		}
	}
}

// Dispatcher applies an operation list to one table. A Dispatcher holds no
// per-table state and may be shared by goroutines working on different tables.
type Dispatcher struct {
	logger   *slog.Logger
	recorder Recorder
	missing  map[string]struct{}
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{logger: logger}
	WithMissingValues(DefaultMissingValues)(d)
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Stats counts what happened during a dispatch run.
type Stats struct {
	Applied int
	Skipped int
}

// Clean normalizes the raw table, applies ops in order and finalizes the
// result. logger may be nil to use the Dispatcher's logger.
func (d *Dispatcher) Clean(header []string, rows [][]string, ops []Operation, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = d.logger
	}

	t := d.Normalize(header, rows)
	stats, err := d.Dispatch(t, ops, logger)
	if err != nil {
		return nil, err
	}

	res, err := Finalize(t, logger)
	if err != nil {
		return nil, err
	}
	res.Stats = stats
	return res, nil
}

// Normalize builds the working table: ragged rows are padded to the widest row
// and missing-value markers in cells and header become "".
func (d *Dispatcher) Normalize(header []string, rows [][]string) *Table {
	m := NewMatrix(rows)
	for r := 0; r < m.Rows(); r++ {
		for c := 0; c < m.Cols(); c++ {
			if _, ok := d.missing[m.Get(r, c)]; ok {
				m.Set(r, c, "")
			}
		}
	}

	h := make([]string, len(header))
	for i, name := range header {
		if _, ok := d.missing[name]; !ok {
			h[i] = name
		}
	}
	return &Table{Header: h, Matrix: m}
}

// Dispatch applies ops to t in order. Unknown operation types are logged and
// skipped; the first failing recognized operation stops the run and is
// returned as a *HandlerError.
func (d *Dispatcher) Dispatch(t *Table, ops []Operation, logger *slog.Logger) (Stats, error) {
	if logger == nil {
		logger = d.logger
	}

	var stats Stats
	for _, op := range ops {
		start := time.Now()
		err := d.apply(t, op, logger)
		elapsed := time.Since(start)

		switch {
		case errors.Is(err, errUnknownOperation):
			stats.Skipped++
			d.observe(op.Type, OutcomeSkipped, elapsed)
			logger.Warn("unknown operation skipped",
				slog.String("operation_type", string(op.Type)),
				slog.Int("position", op.Index))
		case err != nil:
			d.observe(op.Type, OutcomeFailed, elapsed)
			logger.Error("operation failed",
				slog.String("operation_type", string(op.Type)),
				slog.Int("position", op.Index),
				slog.Int("item", op.Item),
				slog.Any("error", err))
			return stats, &HandlerError{Op: op.Type, Position: op.Index, Item: op.Item, Err: err}
		default:
			stats.Applied++
			d.observe(op.Type, OutcomeApplied, elapsed)
			logger.Info("operation applied",
				slog.String("operation_type", string(op.Type)),
				slog.Int("position", op.Index),
				slog.Int("rows", t.Matrix.Rows()),
				slog.Int("cols", t.Matrix.Cols()),
				slog.Int("header_len", len(t.Header)))
		}
	}
	return stats, nil
}

var errUnknownOperation = errors.New("unknown operation")

func (d *Dispatcher) apply(t *Table, op Operation, logger *slog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	if op.Err != nil {
		return op.Err
	}
	if op.Params == nil {
		if op.Type.Known() {
			return fmt.Errorf("missing parameters for %s", op.Type)
		}
		return errUnknownOperation
	}

	log := logger.With(slog.String("operation_type", string(op.Type)))
	switch p := op.Params.(type) {
	case RegexReplace:
		return applyRegexReplace(p, t, log)
	case DeleteRows:
		return applyDeleteRows(p, t, log)
	case DeleteCols:
		return applyDeleteCols(p, t, log)
	case InsertColumn:
		return applyInsertColumn(p, t, log)
	case MapColumn:
		return applyMapColumn(p, t, log)
	case MergeRows:
		return applyMergeRows(p, t, log)
	case MergeCols:
		return applyMergeCols(p, t, log)
	case SplitCols:
		return applySplitCols(p, t, log)
	case CopyItem:
		return applyCopyItem(p, t, log)
	default:
		return errUnknownOperation
	}
}

func (d *Dispatcher) observe(op OperationType, outcome string, elapsed time.Duration) {
	if d.recorder != nil {
		d.recorder.ObserveOperation(op, outcome, elapsed)
	}
}
