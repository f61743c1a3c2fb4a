/*
 * GripDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package engine

import (
	"fmt"
	"math"
	"sort"

	"devt.de/krotik/gripdb/engine/traveler"
	"devt.de/krotik/gripdb/graph/data"
	"devt.de/krotik/gripdb/gripql"
	"github.com/influxdata/tdigest"
)

/*
aggregator collects the values of a single aggregation.
*/
type aggregator interface {

	/*
		add adds a traveler to the aggregation.
	*/
	add(t *traveler.Traveler)

	/*
		records returns the buckets of the aggregation.
	*/
	records() []*AggregationRecord
}

/*
newAggregator creates an aggregator for an aggregation.
*/
func newAggregator(a *gripql.Aggregation) aggregator {
	sel := traveler.ParseSelector(a.Field)

	switch a.Type {
	case gripql.AggHistogram:
		return &histogramAggregator{a, sel, make(map[int64]float64), false, 0, 0}
	case gripql.AggPercentile:
		return &percentileAggregator{a, sel, tdigest.New(), 0}
	case gripql.AggField:
		return &countingAggregator{a, newBucketCounter(), func(t *traveler.Traveler, b *bucketCounter) {
			for k := range objectAt(t, sel) {
				b.inc(k)
			}
		}}
	case gripql.AggType:
		return &countingAggregator{a, newBucketCounter(), func(t *traveler.Traveler, b *bucketCounter) {
			if v, ok := sel.Get(t); ok {
				b.inc(jsonType(v))
			}
		}}
	}

	return &countingAggregator{a, newBucketCounter(), func(t *traveler.Traveler, b *bucketCounter) {
		if v, ok := sel.Get(t); ok {
			if _, scalar := data.IndexKey(v); scalar {
				b.inc(v)
			}
		}
	}}
}

/*
objectAt returns the object at the selector of an aggregation. A selector
without path addresses the data of the element.
*/
func objectAt(t *traveler.Traveler, sel *traveler.Selector) map[string]interface{} {
	if len(sel.Path) == 0 {
		if el, ok := t.GetMark(sel.Mark); ok && !el.IsNull() {
			return el.Data
		}
		return nil
	}

	v, _ := sel.Get(t)
	m, _ := v.(map[string]interface{})

	return m
}

/*
jsonType returns the JSON type name of a value.
*/
func jsonType(v interface{}) string {
	if _, ok := data.ToNumber(v); ok {
		return "number"
	}

	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	}

	return "unknown"
}

// Bucket counting (term, field and type aggregations)
// ===================================================

/*
bucketCounter counts values.
*/
type bucketCounter struct {
	keys   map[string]interface{}
	counts map[string]float64
}

func newBucketCounter() *bucketCounter {
	return &bucketCounter{make(map[string]interface{}), make(map[string]float64)}
}

func (b *bucketCounter) inc(key interface{}) {
	k, ok := data.IndexKey(key)
	if !ok {
		k = fmt.Sprint(key)
	}

	b.keys[k] = key
	b.counts[k]++
}

/*
records returns the buckets ordered by count (descending) and key
(ascending). A positive size limits the number of buckets.
*/
func (b *bucketCounter) records(name string, size int64) []*AggregationRecord {
	ret := make([]*AggregationRecord, 0, len(b.counts))

	for k, c := range b.counts {
		ret = append(ret, &AggregationRecord{Name: name, Key: b.keys[k], Value: c})
	}

	sort.Slice(ret, func(i, j int) bool {
		if ret[i].Value != ret[j].Value {
			return ret[i].Value > ret[j].Value
		}
		return keyLess(ret[i].Key, ret[j].Key)
	})

	if size > 0 && int64(len(ret)) > size {
		ret = ret[:size]
	}

	return ret
}

/*
keyLess orders bucket keys. Numbers sort before strings.
*/
func keyLess(k1, k2 interface{}) bool {
	n1, ok1 := data.ToNumber(k1)
	n2, ok2 := data.ToNumber(k2)

	if ok1 && ok2 {
		return n1 < n2
	} else if ok1 != ok2 {
		return ok1
	}

	return fmt.Sprint(k1) < fmt.Sprint(k2)
}

/*
countingAggregator counts buckets which are produced by a function.
*/
type countingAggregator struct {
	agg     *gripql.Aggregation
	buckets *bucketCounter
	count   func(t *traveler.Traveler, b *bucketCounter)
}

func (ca *countingAggregator) add(t *traveler.Traveler) {
	ca.count(t, ca.buckets)
}

func (ca *countingAggregator) records() []*AggregationRecord {
	return ca.buckets.records(ca.agg.Name, ca.agg.Size)
}

// Histogram aggregation
// =====================

/*
histogramAggregator counts numeric values per interval.
*/
type histogramAggregator struct {
	agg      *gripql.Aggregation
	sel      *traveler.Selector
	buckets  map[int64]float64
	seen     bool
	min, max int64
}

func (ha *histogramAggregator) add(t *traveler.Traveler) {
	v, ok := ha.sel.Get(t)
	if !ok {
		return
	}

	n, err := toFloat(v)
	if err != nil {
		return
	}

	b := int64(math.Floor(n / ha.agg.Interval))
	ha.buckets[b]++

	if !ha.seen || b < ha.min {
		ha.min = b
	}
	if !ha.seen || b > ha.max {
		ha.max = b
	}

	ha.seen = true
}

/*
records returns one bucket per interval from the lowest to the highest value
including empty buckets.
*/
func (ha *histogramAggregator) records() []*AggregationRecord {
	var ret []*AggregationRecord

	if !ha.seen {
		return ret
	}

	for b := ha.min; b <= ha.max; b++ {
		ret = append(ret, &AggregationRecord{
			Name:  ha.agg.Name,
			Key:   float64(b) * ha.agg.Interval,
			Value: ha.buckets[b],
		})
	}

	return ret
}

// Percentile aggregation
// ======================

/*
percentileAggregator estimates percentiles with a t-digest.
*/
type percentileAggregator struct {
	agg   *gripql.Aggregation
	sel   *traveler.Selector
	td    *tdigest.TDigest
	count int
}

func (pa *percentileAggregator) add(t *traveler.Traveler) {
	v, ok := pa.sel.Get(t)
	if !ok {
		return
	}

	if n, err := toFloat(v); err == nil {
		pa.td.Add(n, 1)
		pa.count++
	}
}

func (pa *percentileAggregator) records() []*AggregationRecord {
	var ret []*AggregationRecord

	if pa.count == 0 {
		return ret
	}

	percents := pa.agg.Percents
	if len(percents) == 0 {
		percents = defaultPercents
	}

	for _, p := range percents {
		ret = append(ret, &AggregationRecord{
			Name:  pa.agg.Name,
			Key:   p,
			Value: pa.td.Quantile(p / 100),
		})
	}

	return ret
}
