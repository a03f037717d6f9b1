package usearch

import (
	"github.com/EvandroLG/usearch/distance"
)

// Options configures an index at construction time.
type Options struct {
	// Capacity pre-reserves node slots. Zero means no slots; call Reserve
	// before the first Add.
	Capacity int

	// Element is the stored scalar type.
	Element distance.Scalar

	// Metric selects the distance function.
	Metric distance.Kind

	// UserDistance supplies the kernel when Metric is KindUser. Snapshots
	// written with a user kernel are non-portable; loading them requires
	// passing the same kernel again.
	UserDistance distance.Func

	// Connectivity is M, the target degree at layers above 0. Layer 0 is
	// capped at 2*M.
	Connectivity int

	// ExpansionAdd is the construction beam width (ef_construction).
	ExpansionAdd int

	// ExpansionSearch is the default query beam width (ef_search). A query
	// always uses at least k.
	ExpansionSearch int

	// Workers sizes the scratch pool: the number of worker ids usable for
	// concurrent adds and searches. Defaults to GOMAXPROCS.
	Workers int

	// RandomSeed fixes the per-worker layer RNGs for reproducible
	// single-threaded builds. Nil seeds from the clock.
	RandomSeed *int64

	// Logger receives structured events from the exclusive operations.
	// Defaults to a no-op logger.
	Logger *Logger
}

// DefaultOptions are the construction defaults.
var DefaultOptions = Options{
	Element:         distance.ScalarF32,
	Metric:          distance.KindIP,
	Connectivity:    16,
	ExpansionAdd:    128,
	ExpansionSearch: 64,
}

// WithCapacity pre-reserves n node slots.
func WithCapacity(n int) func(*Options) {
	return func(o *Options) { o.Capacity = n }
}

// WithElement sets the stored scalar type.
func WithElement(s distance.Scalar) func(*Options) {
	return func(o *Options) { o.Element = s }
}

// WithMetric sets a built-in distance metric.
func WithMetric(k distance.Kind) func(*Options) {
	return func(o *Options) { o.Metric = k }
}

// WithUserDistance installs a caller-supplied kernel.
func WithUserDistance(fn distance.Func) func(*Options) {
	return func(o *Options) {
		o.Metric = distance.KindUser
		o.UserDistance = fn
	}
}

// WithConnectivity sets M.
func WithConnectivity(m int) func(*Options) {
	return func(o *Options) { o.Connectivity = m }
}

// WithExpansionAdd sets ef_construction.
func WithExpansionAdd(ef int) func(*Options) {
	return func(o *Options) { o.ExpansionAdd = ef }
}

// WithExpansionSearch sets the default ef_search.
func WithExpansionSearch(ef int) func(*Options) {
	return func(o *Options) { o.ExpansionSearch = ef }
}

// WithWorkers sets the scratch pool width.
func WithWorkers(n int) func(*Options) {
	return func(o *Options) { o.Workers = n }
}

// WithRandomSeed fixes the construction seed.
func WithRandomSeed(seed int64) func(*Options) {
	return func(o *Options) { o.RandomSeed = &seed }
}

// WithLogger sets the structured logger.
func WithLogger(l *Logger) func(*Options) {
	return func(o *Options) { o.Logger = l }
}
