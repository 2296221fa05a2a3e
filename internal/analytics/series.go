package analytics

import "sort"

// Number is the value type of a Series: counts or scores.
type Number interface {
	~int | ~float64
}

// Entry is a single label/value pair of a Series.
type Entry[V Number] struct {
	Label string `json:"label"`
	Value V      `json:"value"`
}

// Series is an ordered mapping of label to value.
type Series[V Number] []Entry[V]

// Get returns the value stored under label.
func (s Series[V]) Get(label string) (V, bool) {
	for _, e := range s {
		if e.Label == label {
			return e.Value, true
		}
	}
	var zero V
	return zero, false
}

// Labels returns the labels in series order.
func (s Series[V]) Labels() []string {
	labels := make([]string, 0, len(s))
	for _, e := range s {
		labels = append(labels, e.Label)
	}
	return labels
}

// Total sums all values.
func (s Series[V]) Total() V {
	var total V
	for _, e := range s {
		total += e.Value
	}
	return total
}

// Top returns at most n leading entries. n <= 0 returns the whole series.
func (s Series[V]) Top(n int) Series[V] {
	if n <= 0 || n >= len(s) {
		return s
	}
	return s[:n]
}

// sortDescending orders entries by value, keeping encounter order on ties.
func sortDescending[V Number](s Series[V]) {
	sort.SliceStable(s, func(i, j int) bool {
		return s[i].Value > s[j].Value
	})
}

// tally accumulates counts in first-seen order.
type tally struct {
	order  []string
	counts map[string]int
}

func newTally() *tally {
	return &tally{counts: map[string]int{}}
}

// seed registers key with a zero count if it is not present yet.
func (t *tally) seed(key string) {
	if _, ok := t.counts[key]; ok {
		return
	}
	t.counts[key] = 0
	t.order = append(t.order, key)
}

// add increments key, inserting it first when missing.
func (t *tally) add(key string) {
	t.seed(key)
	t.counts[key]++
}

// incrementSeeded increments key only when it was seeded before.
func (t *tally) incrementSeeded(key string) bool {
	if _, ok := t.counts[key]; !ok {
		return false
	}
	t.counts[key]++
	return true
}

func (t *tally) series() Series[int] {
	out := make(Series[int], 0, len(t.order))
	for _, key := range t.order {
		out = append(out, Entry[int]{Label: key, Value: t.counts[key]})
	}
	return out
}
