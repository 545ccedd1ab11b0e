// Package transfer moves datasets between object storage and the warehouse.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"k8s.io/klog/v2"

	"github.com/SusheelSathyaraj/CloudDataManager/database"
	"github.com/SusheelSathyaraj/CloudDataManager/frame"
	"github.com/SusheelSathyaraj/CloudDataManager/monitoring"
	"github.com/SusheelSathyaraj/CloudDataManager/storage"
	"github.com/SusheelSathyaraj/CloudDataManager/validation"
)

// direction of a transfer
type Mode string

const (
	// LoadMode reads objects from a bucket into a warehouse table
	LoadMode Mode = "load"
	// ExportMode writes the result of a query to an object
	ExportMode Mode = "export"
)

var ErrNothingToLoad = errors.New("no objects to load")

// Config describes one transfer
type Config struct {
	Mode   Mode
	Bucket string

	// Objects are loaded in order, or the single export target
	Objects []string
	// Prefix lists the objects to load when Objects is empty
	Prefix string
	Format storage.Format

	Table     string
	Query     string
	IfExists  string
	BatchSize int

	// ValidateData cleans column names before loading and checks the table
	// row count afterwards
	ValidateData bool
}

// ObjectStore is the part of the storage client a transfer needs
type ObjectStore interface {
	ListObjects(ctx context.Context, bucket, prefix string, limit int) ([]string, error)
	ReadFrame(ctx context.Context, name, bucket string, format storage.Format) (*frame.Frame, error)
	WriteFrame(ctx context.Context, df *frame.Frame, name, bucket string, format storage.Format) error
}

var _ ObjectStore = (*storage.Client)(nil)

// Engine runs transfers between a store and a warehouse
type Engine struct {
	Config    Config
	Store     ObjectStore
	Warehouse database.Warehouse
	Validator *validation.LoadValidator
}

// Result of a transfer
type Result struct {
	Success          bool
	Mode             Mode
	ObjectsProcessed int
	TotalRows        int64
	Duration         time.Duration
	PreValidation    *validation.ValidationResult
	PostValidation   *validation.ValidationResult
	Errors           []string
	StartTime        time.Time
	EndTime          time.Time
}

func NewEngine(cfg Config, store ObjectStore, warehouse database.Warehouse) *Engine {
	return &Engine{
		Config:    cfg,
		Store:     store,
		Warehouse: warehouse,
		Validator: validation.NewLoadValidator(warehouse),
	}
}

// Execute runs the configured transfer. The returned result is never nil.
func (e *Engine) Execute(ctx context.Context) (*Result, error) {
	result := &Result{
		Mode:      e.Config.Mode,
		StartTime: time.Now(),
		Errors:    make([]string, 0),
	}

	var err error
	switch e.Config.Mode {
	case LoadMode:
		err = e.load(ctx, result)
	case ExportMode:
		err = e.export(ctx, result)
	default:
		err = fmt.Errorf("unsupported transfer mode %q", e.Config.Mode)
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		klog.ErrorS(err, "Transfer failed", "mode", e.Config.Mode, "duration", result.Duration)
		return result, err
	}
	result.Success = true
	klog.InfoS("Transfer completed", "mode", e.Config.Mode, "objects", result.ObjectsProcessed,
		"rows", result.TotalRows, "duration", monitoring.FormatDuration(result.Duration))
	return result, nil
}

func (e *Engine) objects(ctx context.Context) ([]string, error) {
	if len(e.Config.Objects) > 0 {
		return e.Config.Objects, nil
	}
	if e.Config.Prefix == "" {
		return nil, ErrNothingToLoad
	}
	names, err := e.Store.ListObjects(ctx, e.Config.Bucket, e.Config.Prefix, 0)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", e.Config.Prefix, err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w under prefix %q", ErrNothingToLoad, e.Config.Prefix)
	}
	return names, nil
}

// load writes every object into the table. IfExists applies to the first
// object only; later objects append to what it created.
func (e *Engine) load(ctx context.Context, result *Result) error {
	if e.Config.Table == "" {
		return errors.New("load needs a target table")
	}
	names, err := e.objects(ctx)
	if err != nil {
		return err
	}

	var baseline int64
	if e.Config.ValidateData && e.Config.IfExists != database.IfExistsReplace {
		pre := e.Validator.PreLoad(ctx, e.Config.Table)
		result.PreValidation = &pre
		if !pre.IsValid {
			return fmt.Errorf("pre-load validation failed: %s", pre.ErrorMessage)
		}
		baseline = pre.RowCount
	}

	tracker := monitoring.NewProgressTracker("load "+e.Config.Table, 0, 0)
	stop := tracker.StartProgressMonitor(10 * time.Second)
	defer stop()

	ifExists := e.Config.IfExists
	for _, name := range names {
		tracker.SetCurrentTask(name)
		df, err := e.Store.ReadFrame(ctx, name, e.Config.Bucket, e.Config.Format)
		if err != nil {
			tracker.AddError(err)
			return fmt.Errorf("reading %s: %w", name, err)
		}
		if e.Config.ValidateData {
			if df, err = validation.ValidateDataFrame(df); err != nil {
				return fmt.Errorf("validating %s: %w", name, err)
			}
		}

		n, err := e.Warehouse.WriteDataFrame(ctx, df, e.Config.Table, database.WriteOptions{
			IfExists:  ifExists,
			BatchSize: e.Config.BatchSize,
			Progress:  tracker,
		})
		if err != nil {
			return fmt.Errorf("loading %s into %s: %w", name, e.Config.Table, err)
		}
		ifExists = database.IfExistsAppend

		result.ObjectsProcessed++
		result.TotalRows += n
		klog.V(1).InfoS("Loaded object", "object", name, "table", e.Config.Table, "rows", n)
	}
	tracker.LogFinalSummary()

	if e.Config.ValidateData {
		post := e.Validator.VerifyLoad(ctx, e.Config.Table, baseline+result.TotalRows)
		result.PostValidation = &post
		if !post.IsValid {
			return fmt.Errorf("post-load validation failed: %s", post.ErrorMessage)
		}
	}
	return nil
}

func (e *Engine) export(ctx context.Context, result *Result) error {
	if e.Config.Query == "" {
		return errors.New("export needs a query")
	}
	if len(e.Config.Objects) != 1 {
		return fmt.Errorf("export needs exactly one target object, got %d", len(e.Config.Objects))
	}
	name := e.Config.Objects[0]

	df, err := e.Warehouse.ReadSQL(ctx, e.Config.Query)
	if err != nil {
		return err
	}
	if err := e.Store.WriteFrame(ctx, df, name, e.Config.Bucket, e.Config.Format); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}

	result.ObjectsProcessed = 1
	result.TotalRows = int64(df.Len())
	klog.V(1).InfoS("Exported query", "object", name, "rows", df.Len())
	return nil
}
