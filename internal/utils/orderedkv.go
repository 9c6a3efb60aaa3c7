package utils

import (
	"bytes"
	"encoding/json"
	"sort"
)

type OrderedKV[T any] struct {
	Value T
	Order int64
}

// OrderedKVMap is a map that keeps an explicit ordering for iteration and
// JSON encoding.
type OrderedKVMap[T any] map[string]OrderedKV[T]

// Keys returns the keys sorted by their order.
func (om OrderedKVMap[T]) Keys() []string {
	keys := make([]string, 0, len(om))
	for k := range om {
		keys = append(keys, k)
	}
	sort.SliceStable(keys, func(i, j int) bool {
		oi, oj := om[keys[i]].Order, om[keys[j]].Order
		if oi == oj {
			return keys[i] < keys[j]
		}
		return oi < oj
	})
	return keys
}

func (om OrderedKVMap[T]) Get(key string) (T, bool) {
	kv, ok := om[key]
	return kv.Value, ok
}

func (om OrderedKVMap[T]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range om.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}

		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valueBytes, err := json.Marshal(om[k].Value)
		if err != nil {
			return nil, err
		}
		buf.Write(valueBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
