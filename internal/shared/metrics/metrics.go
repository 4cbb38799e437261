package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	uploadsTotal      atomic.Uint64
	deletionsTotal    atomic.Uint64
	orphanedBlobTotal atomic.Uint64
	cacheHitsTotal    atomic.Uint64
	cacheMissesTotal  atomic.Uint64

	uploadFailures   = newLabeledCounter()
	deletionFailures = newLabeledCounter()

	uploadSize = newHistogram([]float64{1 << 10, 64 << 10, 1 << 20, 8 << 20, 32 << 20, 128 << 20})
)

// IncUpload counts a completed upload.
func IncUpload() {
	uploadsTotal.Add(1)
}

// IncUploadFailed counts an upload that failed at the given stage.
func IncUploadFailed(stage string) {
	uploadFailures.Inc(stage)
}

// IncDeletion counts a completed deletion.
func IncDeletion() {
	deletionsTotal.Add(1)
}

// IncDeletionFailed counts a deletion that failed at the given stage.
func IncDeletionFailed(stage string) {
	deletionFailures.Inc(stage)
}

// IncOrphanedBlob counts a blob left in the object store without a metadata record.
func IncOrphanedBlob() {
	orphanedBlobTotal.Add(1)
}

// IncCacheHit counts a metadata read served from cache.
func IncCacheHit() {
	cacheHitsTotal.Add(1)
}

// IncCacheMiss counts a metadata read that fell through to the metadata store.
func IncCacheMiss() {
	cacheMissesTotal.Add(1)
}

// ObserveUploadBytes records the declared size of an upload.
func ObserveUploadBytes(value int64) {
	if value < 0 {
		return
	}
	uploadSize.Observe(float64(value))
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "uploads_total", "Total uploads completed", uploadsTotal.Load())
	writeLabeledCounter(&buf, "upload_failures_total", "Total uploads failed by stage", "stage", uploadFailures.Snapshot())
	writeCounter(&buf, "deletions_total", "Total deletions completed", deletionsTotal.Load())
	writeLabeledCounter(&buf, "deletion_failures_total", "Total deletions failed by stage", "stage", deletionFailures.Snapshot())
	writeCounter(&buf, "orphaned_blobs_total", "Blobs left without a metadata record", orphanedBlobTotal.Load())
	writeCounter(&buf, "metadata_cache_hits_total", "Metadata reads served from cache", cacheHitsTotal.Load())
	writeCounter(&buf, "metadata_cache_misses_total", "Metadata reads that missed the cache", cacheMissesTotal.Load())
	writeHistogram(&buf, "upload_size_bytes", "Declared upload size in bytes", uploadSize.Snapshot())
	return buf.String()
}

type labeledCounter struct {
	mu     sync.Mutex
	counts map[string]uint64
}

func newLabeledCounter() *labeledCounter {
	return &labeledCounter{counts: make(map[string]uint64)}
}

func (l *labeledCounter) Inc(label string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[label]++
}

func (l *labeledCounter) Snapshot() map[string]uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]uint64, len(l.counts))
	for k, v := range l.counts {
		out[k] = v
	}
	return out
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			break
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeLabeledCounter(buf *bytes.Buffer, name, help, label string, values map[string]uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(buf, "%s{%s=%q} %d\n", name, label, k, values[k])
	}
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
