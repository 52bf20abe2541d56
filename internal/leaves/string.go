package leaves

import (
	"github.com/gocoredb/coredb/internal/arena"
)

// StringTier is the storage tier a string column has been promoted to
// (spec §4.5 "String"). Promotion happens as larger values are written;
// a column never demotes back down even if every large value is later
// removed.
type StringTier int

const (
	TierSmall StringTier = iota
	TierMedium
	TierBig
)

// smallStringWidth is the width-padded fixed layout boundary: values up
// to this length stay in the small tier.
const smallStringWidth = 15

func classifyTier(s string) StringTier {
	switch {
	case len(s) <= smallStringWidth:
		return TierSmall
	case len(s) <= maxInlineBlob:
		return TierMedium
	default:
		return TierBig
	}
}

// StringColumn stores UTF-8 strings. Every tier shares the same blob
// substrate here; Tier is retained purely as promotion-only metadata
// (see DESIGN.md) rather than selecting among three distinct physical
// node layouts the way the spec's small/medium/big leaf encodings do.
type StringColumn struct {
	Blob BlobColumn
	Tier StringTier
}

func (c *StringColumn) Len(a *arena.Arena) (uint64, error) { return c.Blob.Len(a) }

func (c *StringColumn) Get(a *arena.Arena, i uint64) (string, error) {
	b, err := c.Blob.Get(a, i)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (c *StringColumn) promote(s string) {
	if t := classifyTier(s); t > c.Tier {
		c.Tier = t
	}
}

func (c *StringColumn) Set(a *arena.Arena, i uint64, s string, version uint64) error {
	c.promote(s)
	return c.Blob.Set(a, i, []byte(s), version)
}

func (c *StringColumn) Insert(a *arena.Arena, i uint64, s string, version uint64) error {
	c.promote(s)
	return c.Blob.Insert(a, i, []byte(s), version)
}

func (c *StringColumn) Erase(a *arena.Arena, i uint64, version uint64) error {
	return c.Blob.Erase(a, i, version)
}
