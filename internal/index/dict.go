package index

import (
	"hash/maphash"
	"iter"
	"maps"
)

const dictShards = 256

var termSeed = maphash.MakeSeed()

// dict is a copy-on-write map split into fixed shards. derive shares every
// shard with its parent; the first write to a shard clones only that shard,
// so a single-book update copies the shards of the terms it touches rather
// than the whole dictionary.
type dict[K comparable, V any] struct {
	shards [dictShards]map[K]V
	owned  [dictShards]bool
	n      int
	hash   func(K) uint64
}

func newTermDict() *dict[string, PostingList] {
	return &dict[string, PostingList]{hash: func(term string) uint64 {
		return maphash.String(termSeed, term)
	}}
}

func newDocDict() *dict[uint32, []string] {
	return &dict[uint32, []string]{hash: func(id uint32) uint64 {
		return uint64(id)
	}}
}

// derive returns a writable copy. The receiver must not be written again.
func (d *dict[K, V]) derive() *dict[K, V] {
	return &dict[K, V]{shards: d.shards, n: d.n, hash: d.hash}
}

func (d *dict[K, V]) shard(k K) int {
	return int(d.hash(k) % dictShards)
}

func (d *dict[K, V]) get(k K) (V, bool) {
	v, ok := d.shards[d.shard(k)][k]
	return v, ok
}

func (d *dict[K, V]) writable(i int) map[K]V {
	if !d.owned[i] {
		d.shards[i] = maps.Clone(d.shards[i])
		if d.shards[i] == nil {
			d.shards[i] = make(map[K]V)
		}
		d.owned[i] = true
	}
	return d.shards[i]
}

func (d *dict[K, V]) set(k K, v V) {
	m := d.writable(d.shard(k))
	if _, ok := m[k]; !ok {
		d.n++
	}
	m[k] = v
}

func (d *dict[K, V]) del(k K) {
	i := d.shard(k)
	if _, ok := d.shards[i][k]; !ok {
		return
	}
	delete(d.writable(i), k)
	d.n--
}

func (d *dict[K, V]) len() int {
	return d.n
}

// all yields every entry in no particular order.
func (d *dict[K, V]) all() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for _, m := range d.shards {
			for k, v := range m {
				if !yield(k, v) {
					return
				}
			}
		}
	}
}

func (d *dict[K, V]) keys() iter.Seq[K] {
	return func(yield func(K) bool) {
		for k := range d.all() {
			if !yield(k) {
				return
			}
		}
	}
}
