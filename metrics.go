package gsk

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks runtime statistics for a Reactor. Metrics are low-overhead
// and safe for concurrent reads; they are only populated when the reactor is
// constructed with WithMetrics(true).
//
// Example:
//
//	r, _ := gsk.New(gsk.WithMetrics(true))
//	_, _, _ = r.Run(-1)
//	stats := r.Metrics()
//	fmt.Printf("iterations/s: %.2f, p99 callback latency: %v\n", stats.TPS, stats.Latency.P99)
type Metrics struct {
	// Latency of individual source callback invocations.
	Latency LatencyMetrics

	// Depth tracks how many idle, timer, signal and process sources are
	// currently registered; I/O sources are not counted.
	Depth SourceDepthMetrics

	mu sync.Mutex

	// TPS is the rate of reactor iterations (Backend.Wait return + dispatch) per second.
	TPS float64
}

// LatencyMetrics tracks callback-latency distribution with percentiles,
// using the P-Square algorithm for O(1) streaming percentile estimation.
type LatencyMetrics struct {
	psquare *pSquareMultiQuantile

	mu sync.RWMutex

	// Exact-percentile fallback buffer, used while sampleCount < 5.
	sampleIdx   int
	sampleCount int
	samples     [sampleSize]time.Duration

	P50 time.Duration
	P90 time.Duration
	P95 time.Duration
	P99 time.Duration
	Max time.Duration

	Mean time.Duration
	Sum  time.Duration
}

// sampleSize bounds the legacy exact-percentile fallback buffer.
const sampleSize = 1000

// Record records a source-callback latency sample.
func (l *LatencyMetrics) Record(duration time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.psquare == nil {
		l.psquare = newPSquareMultiQuantile(0.50, 0.90, 0.95, 0.99)
	}
	l.psquare.Update(float64(duration))

	if l.sampleCount >= sampleSize {
		old := l.samples[l.sampleIdx]
		l.Sum -= old
	}
	l.samples[l.sampleIdx] = duration
	l.Sum += duration
	l.sampleIdx++
	if l.sampleIdx >= sampleSize {
		l.sampleIdx = 0
	}
	if l.sampleCount < sampleSize {
		l.sampleCount++
	}
}

// Sample computes percentiles from collected samples and returns the count
// of samples used. Below 5 samples it falls back to exact sorting.
func (l *LatencyMetrics) Sample() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := l.sampleCount
	if count == 0 {
		return 0
	}

	if count < 5 || l.psquare == nil {
		sorted := make([]time.Duration, count)
		copy(sorted, l.samples[:count])
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		l.P50 = sorted[percentileIndex(count, 50)]
		l.P90 = sorted[percentileIndex(count, 90)]
		l.P95 = sorted[percentileIndex(count, 95)]
		l.P99 = sorted[percentileIndex(count, 99)]
		l.Max = sorted[count-1]
		l.Mean = l.Sum / time.Duration(count)
		return count
	}

	l.P50 = time.Duration(l.psquare.Quantile(0))
	l.P90 = time.Duration(l.psquare.Quantile(1))
	l.P95 = time.Duration(l.psquare.Quantile(2))
	l.P99 = time.Duration(l.psquare.Quantile(3))
	l.Max = time.Duration(l.psquare.Max())
	l.Mean = l.Sum / time.Duration(count)
	return count
}

func percentileIndex(n, p int) int {
	index := (p * n) / 100
	if index >= n {
		return n - 1
	}
	return index
}

// SourceDepthMetrics tracks how many live sources of each kind a reactor
// currently holds, with an exponential moving average per kind.
type SourceDepthMetrics struct {
	mu sync.RWMutex

	Current [sourceKindCount]int
	Max     [sourceKindCount]int
	Avg     [sourceKindCount]float64

	initialized [sourceKindCount]bool
}

// Update records the current count of sources of the given kind.
func (q *SourceDepthMetrics) Update(kind SourceKind, depth int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.Current[kind] = depth
	if depth > q.Max[kind] {
		q.Max[kind] = depth
	}
	if !q.initialized[kind] {
		q.Avg[kind] = float64(depth)
		q.initialized[kind] = true
	} else {
		q.Avg[kind] = 0.9*q.Avg[kind] + 0.1*float64(depth)
	}
}

// TPSCounter tracks reactor iterations per second with a rolling window.
type TPSCounter struct {
	lastRotation atomic.Value // time.Time
	buckets      []int64
	bucketSize   time.Duration
	windowSize   time.Duration
	mu           sync.Mutex
}

// NewTPSCounter creates a TPS counter with a configurable rolling window.
// windowSize and bucketSize must be positive, and bucketSize must not
// exceed windowSize.
func NewTPSCounter(windowSize, bucketSize time.Duration) *TPSCounter {
	if windowSize <= 0 {
		panic("gsk: windowSize must be positive")
	}
	if bucketSize <= 0 {
		panic("gsk: bucketSize must be positive")
	}
	if bucketSize > windowSize {
		panic("gsk: bucketSize cannot exceed windowSize")
	}

	bucketCount := int(windowSize / bucketSize)
	counter := &TPSCounter{
		buckets:    make([]int64, bucketCount),
		bucketSize: bucketSize,
		windowSize: windowSize,
	}
	counter.lastRotation.Store(time.Now())
	return counter
}

// Increment records one reactor iteration.
func (t *TPSCounter) Increment() {
	t.rotate()
	t.mu.Lock()
	t.buckets[len(t.buckets)-1]++
	t.mu.Unlock()
}

func (t *TPSCounter) rotate() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	lastRotation := t.lastRotation.Load().(time.Time)
	elapsed := now.Sub(lastRotation)

	bucketsToAdvance64 := int64(elapsed) / int64(t.bucketSize)
	if bucketsToAdvance64 < 0 {
		bucketsToAdvance64 = int64(len(t.buckets))
	} else if bucketsToAdvance64 > int64(len(t.buckets)) {
		bucketsToAdvance64 = int64(len(t.buckets))
	}
	bucketsToAdvance := int(bucketsToAdvance64)

	if bucketsToAdvance >= len(t.buckets) {
		for i := range t.buckets {
			t.buckets[i] = 0
		}
		t.lastRotation.Store(now)
		return
	}
	if bucketsToAdvance <= 0 {
		return
	}

	copy(t.buckets, t.buckets[bucketsToAdvance:])
	for i := len(t.buckets) - bucketsToAdvance; i < len(t.buckets); i++ {
		t.buckets[i] = 0
	}
	t.lastRotation.Store(lastRotation.Add(time.Duration(bucketsToAdvance) * t.bucketSize))
}

// TPS returns the current reactor-iterations-per-second estimate.
func (t *TPSCounter) TPS() float64 {
	t.rotate()

	t.mu.Lock()
	defer t.mu.Unlock()

	var sum int64
	for _, count := range t.buckets {
		sum += count
	}
	if sum == 0 {
		return 0
	}

	monitoredDuration := float64(len(t.buckets)) * t.bucketSize.Seconds()
	return float64(sum) / monitoredDuration
}
