package leaves

import (
	"math"

	"github.com/gocoredb/coredb/internal/arena"
	"github.com/gocoredb/coredb/internal/bptree"
	"github.com/gocoredb/coredb/internal/dbutil"
)

// nullSeconds is the sentinel value of the seconds column marking a
// null row (spec §4.5 "the seconds column carries the null bit via a
// sentinel scheme"). math.MinInt64 is never a representable second
// count for any real timestamp at nanosecond resolution.
const nullSeconds = int64(math.MinInt64)

// Timestamp is a materialized value of a TimestampColumn.
type Timestamp struct {
	Null        bool
	Seconds     int64
	Nanoseconds uint32 // always < 1e9; shares the sign of Seconds by construction
}

// NewTimestamp builds a canonical timestamp: nanos must already be the
// unsigned magnitude of the fractional part in the direction of
// Seconds' sign (spec: "the nanosecond sign follows the second sign").
func NewTimestamp(seconds int64, nanos uint32) (Timestamp, error) {
	if nanos >= 1_000_000_000 {
		return Timestamp{}, dbutil.New(dbutil.KindLogicError, "timestamp nanoseconds out of range")
	}
	if seconds == nullSeconds {
		return Timestamp{}, dbutil.New(dbutil.KindLogicError, "seconds value collides with the null sentinel")
	}
	return Timestamp{Seconds: seconds, Nanoseconds: nanos}, nil
}

// CompareTimestamps orders timestamps lexicographically on (Seconds, Nanoseconds)
// (spec §4.5). Null sorts before every non-null value.
func CompareTimestamps(a, b Timestamp) int {
	if a.Null != b.Null {
		if a.Null {
			return -1
		}
		return 1
	}
	if a.Null {
		return 0
	}
	if a.Seconds != b.Seconds {
		if a.Seconds < b.Seconds {
			return -1
		}
		return 1
	}
	switch {
	case a.Nanoseconds < b.Nanoseconds:
		return -1
	case a.Nanoseconds > b.Nanoseconds:
		return 1
	default:
		return 0
	}
}

// TimestampColumn is the paired {seconds, nanoseconds} column pair of
// spec §4.5.
type TimestampColumn struct {
	SecondsRoot     arena.Ref
	NanosecondsRoot arena.Ref
}

func (c *TimestampColumn) Len(a *arena.Arena) (uint64, error) { return bptree.Size(a, c.SecondsRoot) }

func (c *TimestampColumn) Get(a *arena.Arena, i uint64) (Timestamp, error) {
	sec, err := bptree.Get(a, c.SecondsRoot, i)
	if err != nil {
		return Timestamp{}, err
	}
	if sec == nullSeconds {
		return Timestamp{Null: true}, nil
	}
	ns, err := bptree.Get(a, c.NanosecondsRoot, i)
	if err != nil {
		return Timestamp{}, err
	}
	return Timestamp{Seconds: sec, Nanoseconds: uint32(ns)}, nil
}

func (c *TimestampColumn) encode(v Timestamp) (int64, int64) {
	if v.Null {
		return nullSeconds, 0
	}
	return v.Seconds, int64(v.Nanoseconds)
}

func (c *TimestampColumn) Set(a *arena.Arena, i uint64, v Timestamp, version uint64) error {
	sec, ns := c.encode(v)
	secRoot, err := bptree.Set(a, c.SecondsRoot, i, sec, version)
	if err != nil {
		return err
	}
	nsRoot, err := bptree.Set(a, c.NanosecondsRoot, i, ns, version)
	if err != nil {
		return err
	}
	c.SecondsRoot, c.NanosecondsRoot = secRoot, nsRoot
	return nil
}

func (c *TimestampColumn) Insert(a *arena.Arena, i uint64, v Timestamp, version uint64) error {
	sec, ns := c.encode(v)
	secRoot, err := bptree.Insert(a, c.SecondsRoot, i, sec, version)
	if err != nil {
		return err
	}
	nsRoot, err := bptree.Insert(a, c.NanosecondsRoot, i, ns, version)
	if err != nil {
		return err
	}
	c.SecondsRoot, c.NanosecondsRoot = secRoot, nsRoot
	return nil
}

func (c *TimestampColumn) Erase(a *arena.Arena, i uint64, version uint64) error {
	secRoot, err := bptree.Erase(a, c.SecondsRoot, i, version)
	if err != nil {
		return err
	}
	nsRoot, err := bptree.Erase(a, c.NanosecondsRoot, i, version)
	if err != nil {
		return err
	}
	c.SecondsRoot, c.NanosecondsRoot = secRoot, nsRoot
	return nil
}
