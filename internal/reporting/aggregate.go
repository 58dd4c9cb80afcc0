package reporting

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// defaultShardSize bounds the records handled by one aggregation goroutine.
const defaultShardSize = 5000

// Measure names one decimal quantity extracted from a record.
type Measure[R any] struct {
	Name  string
	Value func(R) decimal.Decimal
}

// Sum builds a measure from an extractor.
func Sum[R any](name string, value func(R) decimal.Decimal) Measure[R] {
	return Measure[R]{Name: name, Value: value}
}

// Sums holds the exact totals of one group.
type Sums struct {
	Count  int
	Values map[string]decimal.Decimal
}

// Get returns the named total, zero when the measure never saw a record.
func (s Sums) Get(name string) decimal.Decimal {
	if v, ok := s.Values[name]; ok {
		return v
	}
	return decimal.Zero
}

func (s Sums) add(other Sums) Sums {
	out := Sums{Count: s.Count + other.Count, Values: make(map[string]decimal.Decimal, len(s.Values))}
	for k, v := range s.Values {
		out.Values[k] = v
	}
	for k, v := range other.Values {
		out.Values[k] = out.Values[k].Add(v)
	}
	return out
}

// Groups maps a grouping key to its totals.
type Groups[K comparable] map[K]Sums

// Keys returns the group keys ordered by less.
func (g Groups[K]) Keys(less func(a, b K) bool) []K {
	keys := make([]K, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return less(keys[i], keys[j]) })
	return keys
}

// Total folds every group into one.
func (g Groups[K]) Total() Sums {
	total := Sums{Values: map[string]decimal.Decimal{}}
	for _, s := range g {
		total = total.add(s)
	}
	return total
}

// Equal reports whether both groupings hold the same keys, counts and totals.
func (g Groups[K]) Equal(other Groups[K]) bool {
	if len(g) != len(other) {
		return false
	}
	for k, a := range g {
		b, ok := other[k]
		if !ok || a.Count != b.Count {
			return false
		}
		names := make(map[string]struct{}, len(a.Values)+len(b.Values))
		for n := range a.Values {
			names[n] = struct{}{}
		}
		for n := range b.Values {
			names[n] = struct{}{}
		}
		for n := range names {
			if !a.Get(n).Equal(b.Get(n)) {
				return false
			}
		}
	}
	return true
}

// Aggregate groups records by key and sums every measure per group. Sums are
// exact; no rounding happens here.
func Aggregate[R any, K comparable](records []R, key func(R) K, measures ...Measure[R]) Groups[K] {
	out := make(Groups[K])
	for _, rec := range records {
		k := key(rec)
		s, ok := out[k]
		if !ok {
			s = Sums{Values: make(map[string]decimal.Decimal, len(measures))}
		}
		s.Count++
		for _, m := range measures {
			s.Values[m.Name] = s.Values[m.Name].Add(m.Value(rec))
		}
		out[k] = s
	}
	return out
}

// Merge combines partial groupings. Inputs are left untouched.
func Merge[K comparable](parts ...Groups[K]) Groups[K] {
	out := make(Groups[K])
	for _, part := range parts {
		for k, s := range part {
			if cur, ok := out[k]; ok {
				out[k] = cur.add(s)
				continue
			}
			out[k] = Sums{Values: map[string]decimal.Decimal{}}.add(s)
		}
	}
	return out
}

// AggregateParallel splits records into shards of shardSize, aggregates them
// concurrently and merges the partials in shard order.
func AggregateParallel[R any, K comparable](ctx context.Context, records []R, shardSize int, key func(R) K, measures ...Measure[R]) (Groups[K], error) {
	if shardSize <= 0 {
		shardSize = defaultShardSize
	}
	if len(records) <= shardSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return Aggregate(records, key, measures...), nil
	}

	shards := (len(records) + shardSize - 1) / shardSize
	partials := make([]Groups[K], shards)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < shards; i++ {
		start := i * shardSize
		end := min(start+shardSize, len(records))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			partials[i] = Aggregate(records[start:end], key, measures...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Merge(partials...), nil
}
