package writer

import (
	"fmt"
	"io"
	"sync"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/traceflow/traceflow/internal/model"
)

// ParquetWriter writes annotated trace events to Parquet using Apache
// Arrow. One row per event; grouping annotations become nullable columns
// so ungrouped events survive the export.
type ParquetWriter struct {
	cfg    Config
	output io.Writer

	allocator memory.Allocator
	schema    *arrow.Schema
	writer    *pqarrow.FileWriter

	// Arrow builders for each column
	timelineIDBuilder *array.Int64Builder
	timelineBuilder   *array.StringBuilder
	nameBuilder       *array.StringBuilder
	typeBuilder       *array.StringBuilder
	startBuilder      *array.Int64Builder
	durBuilder        *array.Int64Builder
	groupIDBuilder    *array.Int64Builder
	groupNameBuilder  *array.StringBuilder
	eagerBuilder      *array.BooleanBuilder
	selectedBuilder   *array.StringBuilder

	mu               sync.Mutex
	rowCount         int
	totalRowsWritten int64
	closed           bool
}

// eventSchema returns the Arrow schema for annotated events.
func eventSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "timeline_id", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
		{Name: "timeline", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "name", Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: "type", Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: "start_ns", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
		{Name: "dur_ns", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
		{Name: "group_id", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: "group_name", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "is_eager", Type: arrow.FixedWidthTypes.Boolean, Nullable: false},
		{Name: "selected_group_ids", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
}

// NewParquetWriter creates a new Parquet writer.
func NewParquetWriter(output io.Writer, cfg Config) (*ParquetWriter, error) {
	allocator := memory.NewGoAllocator()
	schema := eventSchema()

	var codec compress.Compression
	switch cfg.Compression {
	case CompressionSnappy:
		codec = compress.Codecs.Snappy
	case CompressionGzip:
		codec = compress.Codecs.Gzip
	case CompressionZstd:
		codec = compress.Codecs.Zstd
	case CompressionLZ4:
		codec = compress.Codecs.Lz4
	default:
		codec = compress.Codecs.Uncompressed
	}

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(codec),
		parquet.WithDictionaryDefault(true),
		parquet.WithDataPageSize(1024*1024), // 1MB
	)
	arrowProps := pqarrow.NewArrowWriterProperties(
		pqarrow.WithStoreSchema(),
	)

	writer, err := pqarrow.NewFileWriter(schema, output, writerProps, arrowProps)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	pw := &ParquetWriter{
		cfg:               cfg,
		output:            output,
		allocator:         allocator,
		schema:            schema,
		writer:            writer,
		timelineIDBuilder: array.NewInt64Builder(allocator),
		timelineBuilder:   array.NewStringBuilder(allocator),
		nameBuilder:       array.NewStringBuilder(allocator),
		typeBuilder:       array.NewStringBuilder(allocator),
		startBuilder:      array.NewInt64Builder(allocator),
		durBuilder:        array.NewInt64Builder(allocator),
		groupIDBuilder:    array.NewInt64Builder(allocator),
		groupNameBuilder:  array.NewStringBuilder(allocator),
		eagerBuilder:      array.NewBooleanBuilder(allocator),
		selectedBuilder:   array.NewStringBuilder(allocator),
	}
	return pw, nil
}

// WriteTrace writes every event of the trace, timeline by timeline.
func (w *ParquetWriter) WriteTrace(trace *model.Trace) error {
	for _, tl := range trace.SortedTimelines() {
		for _, ev := range tl.Events {
			if err := w.WriteEvent(tl, ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteEvent writes a single event row.
func (w *ParquetWriter) WriteEvent(tl *model.Timeline, ev *model.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.appendEvent(tl, ev)
	w.rowCount++

	if w.rowCount >= w.cfg.BatchSize {
		return w.flushBatch()
	}
	return nil
}

// appendEvent adds an event to the Arrow builders.
func (w *ParquetWriter) appendEvent(tl *model.Timeline, ev *model.Event) {
	w.timelineIDBuilder.Append(tl.ID)
	if tl.Name != "" {
		w.timelineBuilder.Append(tl.Name)
	} else {
		w.timelineBuilder.AppendNull()
	}
	w.nameBuilder.Append(ev.Name)
	w.typeBuilder.Append(ev.Type.String())
	w.startBuilder.Append(ev.StartNs)
	w.durBuilder.Append(ev.DurationNs)

	if v, ok := ev.Stat(model.StatTypeGroupID); ok {
		w.groupIDBuilder.Append(v.Int)
	} else {
		w.groupIDBuilder.AppendNull()
	}
	if v, ok := ev.Stat(model.StatTypeGroupName); ok {
		w.groupNameBuilder.Append(v.Str)
	} else {
		w.groupNameBuilder.AppendNull()
	}
	_, eager := ev.Stat(model.StatTypeIsEager)
	w.eagerBuilder.Append(eager)
	if v, ok := ev.Stat(model.StatTypeSelectedGroupIDs); ok {
		w.selectedBuilder.Append(v.Str)
	} else {
		w.selectedBuilder.AppendNull()
	}
}

// flushBatch writes the current batch to Parquet. Caller holds the lock.
func (w *ParquetWriter) flushBatch() error {
	if w.rowCount == 0 {
		return nil
	}

	arrays := []arrow.Array{
		w.timelineIDBuilder.NewArray(),
		w.timelineBuilder.NewArray(),
		w.nameBuilder.NewArray(),
		w.typeBuilder.NewArray(),
		w.startBuilder.NewArray(),
		w.durBuilder.NewArray(),
		w.groupIDBuilder.NewArray(),
		w.groupNameBuilder.NewArray(),
		w.eagerBuilder.NewArray(),
		w.selectedBuilder.NewArray(),
	}
	defer func() {
		for _, a := range arrays {
			a.Release()
		}
	}()

	batch := array.NewRecord(w.schema, arrays, int64(w.rowCount))
	defer batch.Release()

	if err := w.writer.Write(batch); err != nil {
		return fmt.Errorf("failed to write record batch: %w", err)
	}

	w.totalRowsWritten += int64(w.rowCount)
	w.rowCount = 0
	return nil
}

// Flush flushes any buffered data.
func (w *ParquetWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushBatch()
}

// Close flushes remaining data and closes the writer.
func (w *ParquetWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	if err := w.flushBatch(); err != nil {
		return err
	}
	if err := w.writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}

	w.timelineIDBuilder.Release()
	w.timelineBuilder.Release()
	w.nameBuilder.Release()
	w.typeBuilder.Release()
	w.startBuilder.Release()
	w.durBuilder.Release()
	w.groupIDBuilder.Release()
	w.groupNameBuilder.Release()
	w.eagerBuilder.Release()
	w.selectedBuilder.Release()

	w.closed = true
	return nil
}

// RowsWritten returns the total number of rows written.
func (w *ParquetWriter) RowsWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.totalRowsWritten
}
