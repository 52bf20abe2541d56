package leaves

import "github.com/gocoredb/coredb/internal/arena"

// DictEntry is one key/value pair of a DictionaryColumn row.
type DictEntry struct {
	Key   Cell
	Value Cell
}

// DictionaryColumn stores, per row, a set of key/value pairs sorted by
// key (spec §4.5 "Dictionary"), sharing SetColumn's merge-scan
// machinery and the same encoded-blob simplification.
type DictionaryColumn struct {
	Blob BlobColumn
}

func (c *DictionaryColumn) Len(a *arena.Arena) (uint64, error) { return c.Blob.Len(a) }

func (c *DictionaryColumn) Get(a *arena.Arena, i uint64) ([]DictEntry, error) {
	b, err := c.Blob.Get(a, i)
	if err != nil {
		return nil, err
	}
	return decodeDictEntries(b)
}

func encodeDictEntries(entries []DictEntry) []byte {
	cells := make([]Cell, 0, 2*len(entries))
	for _, e := range entries {
		cells = append(cells, e.Key, e.Value)
	}
	return encodeCellList(cells)
}

func decodeDictEntries(b []byte) ([]DictEntry, error) {
	cells, err := decodeCellList(b)
	if err != nil {
		return nil, err
	}
	entries := make([]DictEntry, 0, len(cells)/2)
	for i := 0; i+1 < len(cells); i += 2 {
		entries = append(entries, DictEntry{Key: cells[i], Value: cells[i+1]})
	}
	return entries, nil
}

func sortedUniqueByKey(entries []DictEntry) []DictEntry {
	out := append([]DictEntry(nil), entries...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && Compare(out[j-1].Key, out[j].Key) > 0; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	if len(out) == 0 {
		return out
	}
	dedup := out[:1]
	for _, e := range out[1:] {
		if Compare(dedup[len(dedup)-1].Key, e.Key) == 0 {
			dedup[len(dedup)-1] = e // later write wins
			continue
		}
		dedup = append(dedup, e)
	}
	return dedup
}

func (c *DictionaryColumn) replace(a *arena.Arena, i uint64, entries []DictEntry, version uint64) error {
	return c.Blob.Set(a, i, encodeDictEntries(sortedUniqueByKey(entries)), version)
}

func (c *DictionaryColumn) Insert(a *arena.Arena, i uint64, initial []DictEntry, version uint64) error {
	return c.Blob.Insert(a, i, encodeDictEntries(sortedUniqueByKey(initial)), version)
}

func (c *DictionaryColumn) Erase(a *arena.Arena, i uint64, version uint64) error {
	return c.Blob.Erase(a, i, version)
}

func (c *DictionaryColumn) Lookup(a *arena.Arena, i uint64, key Cell) (Cell, bool, error) {
	entries, err := c.Get(a, i)
	if err != nil {
		return Cell{}, false, err
	}
	lo, hi := 0, len(entries)
	for lo < hi {
		mid := (lo + hi) / 2
		switch cmp := Compare(entries[mid].Key, key); {
		case cmp == 0:
			return entries[mid].Value, true, nil
		case cmp < 0:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return Cell{}, false, nil
}

func (c *DictionaryColumn) Put(a *arena.Arena, i uint64, key, value Cell, version uint64) error {
	entries, err := c.Get(a, i)
	if err != nil {
		return err
	}
	return c.replace(a, i, append(entries, DictEntry{Key: key, Value: value}), version)
}

func (c *DictionaryColumn) Delete(a *arena.Arena, i uint64, key Cell, version uint64) error {
	entries, err := c.Get(a, i)
	if err != nil {
		return err
	}
	out := entries[:0:0]
	for _, e := range entries {
		if Compare(e.Key, key) != 0 {
			out = append(out, e)
		}
	}
	return c.replace(a, i, out, version)
}
