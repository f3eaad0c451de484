package store

import (
	"context"
	"errors"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/rankpro/backend/analyzer"
)

// FallbackStore fronts a persistent primary with an in-process MemoryStore.
// Storage failures are logged and never reach the caller: writes land in
// memory and reads are served from memory. Records kept in memory during
// an outage are merged into every read once the primary is back.
type FallbackStore struct {
	primary    Store
	memory     *MemoryStore
	onFallback func()
}

// FallbackOption configures a FallbackStore
type FallbackOption func(*FallbackStore)

// OnFallbackWrite registers fn to be called whenever a record is written
// to memory because the primary failed.
func OnFallbackWrite(fn func()) FallbackOption {
	return func(f *FallbackStore) { f.onFallback = fn }
}

// NewFallbackStore wraps primary, which may be nil for memory-only operation
func NewFallbackStore(primary Store, memory *MemoryStore, opts ...FallbackOption) *FallbackStore {
	if memory == nil {
		memory = NewMemoryStore()
	}
	f := &FallbackStore{primary: primary, memory: memory}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *FallbackStore) Save(ctx context.Context, record *analyzer.AnalysisRecord) (*analyzer.AnalysisRecord, error) {
	if f.primary != nil {
		stored, err := f.primary.Save(ctx, record)
		if err == nil {
			return stored, nil
		}
		log.Warn().Err(err).Str("url", record.URL).Msg("primary store write failed, keeping record in memory")
		if f.onFallback != nil {
			f.onFallback()
		}
	}
	return f.memory.Save(ctx, record)
}

func (f *FallbackStore) List(ctx context.Context) ([]*analyzer.AnalysisRecord, error) {
	if f.primary == nil {
		return f.memory.List(ctx)
	}
	records, err := f.primary.List(ctx)
	if err != nil {
		f.readFailed(err, "list")
		return f.memory.List(ctx)
	}
	if f.memory.Len() == 0 {
		return records, nil
	}
	held, _ := f.memory.List(ctx)
	return mergeNewestFirst(records, held), nil
}

func (f *FallbackStore) Page(ctx context.Context, page, limit int) (*Page, error) {
	if f.primary == nil {
		return f.memory.Page(ctx, page, limit)
	}
	p, err := f.primary.Page(ctx, page, limit)
	if err != nil {
		f.readFailed(err, "page")
		return f.memory.Page(ctx, page, limit)
	}
	held := int64(f.memory.Len())
	if held == 0 {
		return p, nil
	}

	total := p.Total + held
	skip, ok := pageOffset(page, limit, total)
	if !ok {
		return &Page{Total: total, Page: page, Limit: limit, Items: []*analyzer.AnalysisRecord{}}, nil
	}

	// the merged page can only draw from the newest skip+limit of each side
	window := int(min(skip+int64(limit), total))
	head, err := f.primary.Page(ctx, 1, window)
	if err != nil {
		f.readFailed(err, "page")
		return f.memory.Page(ctx, page, limit)
	}
	mine, _ := f.memory.Page(ctx, 1, window)

	merged := mergeNewestFirst(head.Items, mine.Items)
	start := int(skip)
	end := min(start+limit, len(merged))
	items := []*analyzer.AnalysisRecord{}
	if start < end {
		items = merged[start:end]
	}
	return &Page{Total: total, Page: page, Limit: limit, Items: items}, nil
}

func (f *FallbackStore) Latest(ctx context.Context) (*analyzer.AnalysisRecord, error) {
	held, heldErr := f.memory.Latest(ctx)
	if f.primary == nil {
		return held, heldErr
	}

	record, err := f.primary.Latest(ctx)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			f.readFailed(err, "latest")
		}
		return held, heldErr
	}
	if heldErr == nil && newer(held, record) {
		return held, nil
	}
	return record, nil
}

// Get also checks memory when the primary has no such record, since the
// record may have been written there during an outage.
func (f *FallbackStore) Get(ctx context.Context, id string) (*analyzer.AnalysisRecord, error) {
	if f.primary != nil {
		record, err := f.primary.Get(ctx, id)
		if err == nil {
			return record, nil
		}
		if !errors.Is(err, ErrNotFound) {
			f.readFailed(err, "get")
		}
	}
	return f.memory.Get(ctx, id)
}

func (f *FallbackStore) Trend(ctx context.Context, metric string, days int) ([]TrendPoint, error) {
	if f.primary == nil {
		return f.memory.Trend(ctx, metric, days)
	}
	points, err := f.primary.Trend(ctx, metric, days)
	if err != nil {
		f.readFailed(err, "trend")
		return f.memory.Trend(ctx, metric, days)
	}
	if f.memory.Len() == 0 {
		return points, nil
	}
	held, _ := f.memory.Trend(ctx, metric, days)
	return mergeTrend(points, held), nil
}

func (f *FallbackStore) Close(ctx context.Context) error {
	if f.primary != nil {
		return f.primary.Close(ctx)
	}
	return nil
}

func (f *FallbackStore) readFailed(err error, op string) {
	log.Warn().Err(err).Str("op", op).Msg("primary store read failed, serving from memory")
}

// newer orders records the way the stores list them: createdAt, then id
func newer(a, b *analyzer.AnalysisRecord) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func mergeNewestFirst(a, b []*analyzer.AnalysisRecord) []*analyzer.AnalysisRecord {
	merged := make([]*analyzer.AnalysisRecord, 0, len(a)+len(b))
	merged = append(merged, a...)
	merged = append(merged, b...)
	sort.SliceStable(merged, func(i, j int) bool { return newer(merged[i], merged[j]) })
	return merged
}

// mergeTrend combines two daily series, weighting each average by its count
func mergeTrend(a, b []TrendPoint) []TrendPoint {
	byDay := make(map[string]TrendPoint, len(a)+len(b))
	for _, p := range append(append([]TrendPoint{}, a...), b...) {
		prev, ok := byDay[p.BucketDate]
		if !ok {
			byDay[p.BucketDate] = p
			continue
		}
		count := prev.Count + p.Count
		avg := (prev.AvgScore + p.AvgScore) / 2
		if count > 0 {
			avg = (prev.AvgScore*float64(prev.Count) + p.AvgScore*float64(p.Count)) / float64(count)
		}
		byDay[p.BucketDate] = TrendPoint{BucketDate: p.BucketDate, AvgScore: roundAverage(avg), Count: count}
	}

	points := make([]TrendPoint, 0, len(byDay))
	for _, p := range byDay {
		points = append(points, p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].BucketDate < points[j].BucketDate })
	return points
}
