package monitoring

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"k8s.io/klog/v2"
)

// ProgressTracker counts rows and bytes moved by one operation, thread safe
type ProgressTracker struct {
	name           string
	totalRows      int64
	totalBytes     int64
	processedRows  int64
	processedBytes int64

	mu               sync.RWMutex
	completedBatches int
	startTime        time.Time
	lastUpdate       time.Time
	currentTask      string
	errors           []string
}

// Metrics is a point in time snapshot of a tracker
type Metrics struct {
	Name              string        `json:"name"`
	TotalRows         int64         `json:"total_rows"`
	ProcessedRows     int64         `json:"processed_rows"`
	TotalBytes        int64         `json:"total_bytes"`
	ProcessedBytes    int64         `json:"processed_bytes"`
	CompletedBatches  int           `json:"completed_batches"`
	RowsPerSecond     float64       `json:"rows_per_second"`
	BytesPerSecond    float64       `json:"bytes_per_second"`
	EstimatedTimeLeft time.Duration `json:"estimated_time_left"`
	ElapsedTime       time.Duration `json:"elapsed_time"`
	CurrentTask       string        `json:"current_task"`
	ErrorCount        int           `json:"error_count"`
	ProgressPercent   float64       `json:"progress_percent"`
}

// NewProgressTracker starts tracking. A zero total means unknown.
func NewProgressTracker(name string, totalRows, totalBytes int64) *ProgressTracker {
	now := time.Now()
	return &ProgressTracker{
		name:       name,
		totalRows:  totalRows,
		totalBytes: totalBytes,
		startTime:  now,
		lastUpdate: now,
		errors:     make([]string, 0),
	}
}

func (pt *ProgressTracker) AddRows(n int64) {
	atomic.AddInt64(&pt.processedRows, n)
	pt.touch()
}

func (pt *ProgressTracker) AddBytes(n int64) {
	atomic.AddInt64(&pt.processedBytes, n)
	pt.touch()
}

func (pt *ProgressTracker) touch() {
	pt.mu.Lock()
	pt.lastUpdate = time.Now()
	pt.mu.Unlock()
}

// CompleteBatch marks one committed batch
func (pt *ProgressTracker) CompleteBatch() {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.completedBatches++
}

func (pt *ProgressTracker) SetCurrentTask(task string) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.currentTask = task
}

func (pt *ProgressTracker) AddError(err error) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.errors = append(pt.errors, fmt.Sprintf("[%s] %v", time.Now().Format("15:04:05"), err))
}

func (pt *ProgressTracker) GetMetrics() Metrics {
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	rows := atomic.LoadInt64(&pt.processedRows)
	bytes := atomic.LoadInt64(&pt.processedBytes)
	elapsed := time.Since(pt.startTime)

	m := Metrics{
		Name:             pt.name,
		TotalRows:        pt.totalRows,
		ProcessedRows:    rows,
		TotalBytes:       pt.totalBytes,
		ProcessedBytes:   bytes,
		CompletedBatches: pt.completedBatches,
		ElapsedTime:      elapsed,
		CurrentTask:      pt.currentTask,
		ErrorCount:       len(pt.errors),
	}
	if secs := elapsed.Seconds(); secs > 0 {
		m.RowsPerSecond = float64(rows) / secs
		m.BytesPerSecond = float64(bytes) / secs
	}

	// rows drive the estimate when known, bytes otherwise
	switch {
	case pt.totalRows > 0:
		m.ProgressPercent = float64(rows) / float64(pt.totalRows) * 100
		if m.RowsPerSecond > 0 && pt.totalRows > rows {
			m.EstimatedTimeLeft = time.Duration(float64(pt.totalRows-rows) / m.RowsPerSecond * float64(time.Second))
		}
	case pt.totalBytes > 0:
		m.ProgressPercent = float64(bytes) / float64(pt.totalBytes) * 100
		if m.BytesPerSecond > 0 && pt.totalBytes > bytes {
			m.EstimatedTimeLeft = time.Duration(float64(pt.totalBytes-bytes) / m.BytesPerSecond * float64(time.Second))
		}
	}
	return m
}

// GetRecentErrors returns up to limit of the latest errors
func (pt *ProgressTracker) GetRecentErrors(limit int) []string {
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	if len(pt.errors) <= limit {
		return append([]string(nil), pt.errors...)
	}
	return append([]string(nil), pt.errors[len(pt.errors)-limit:]...)
}

func (pt *ProgressTracker) LogProgress() {
	m := pt.GetMetrics()
	klog.InfoS("Progress",
		"operation", m.Name,
		"percent", fmt.Sprintf("%.1f", m.ProgressPercent),
		"rows", m.ProcessedRows,
		"bytes", m.ProcessedBytes,
		"batches", m.CompletedBatches,
		"rowsPerSec", fmt.Sprintf("%.0f", m.RowsPerSecond),
		"eta", FormatDuration(m.EstimatedTimeLeft),
		"current", m.CurrentTask,
	)
}

// FormatDuration renders d as 1h2m3s, 2m3s or 3s
func FormatDuration(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}

// StartProgressMonitor logs progress every interval until stop is called.
// stop logs a last update and waits for the monitor to exit.
func (pt *ProgressTracker) StartProgressMonitor(interval time.Duration) (stop func()) {
	stopChan := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				pt.LogProgress()
			case <-stopChan:
				pt.LogProgress()
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stopChan)
			<-done
		})
	}
}

func (pt *ProgressTracker) LogFinalSummary() {
	m := pt.GetMetrics()
	klog.InfoS("Summary",
		"operation", m.Name,
		"duration", FormatDuration(m.ElapsedTime),
		"rows", m.ProcessedRows,
		"totalRows", m.TotalRows,
		"bytes", m.ProcessedBytes,
		"batches", m.CompletedBatches,
		"rowsPerSec", fmt.Sprintf("%.0f", m.RowsPerSecond),
		"errors", m.ErrorCount,
	)
	for _, e := range pt.GetRecentErrors(5) {
		klog.InfoS("Recent error", "operation", m.Name, "error", e)
	}
}

// ProgressReader counts bytes read through it into a tracker
type ProgressReader struct {
	r       io.Reader
	tracker *ProgressTracker
}

func NewProgressReader(r io.Reader, tracker *ProgressTracker) *ProgressReader {
	return &ProgressReader{r: r, tracker: tracker}
}

func (p *ProgressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.tracker.AddBytes(int64(n))
	}
	return n, err
}
