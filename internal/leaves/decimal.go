package leaves

import (
	"math/big"
	"regexp"
	"strings"

	"github.com/gocoredb/coredb/internal/arena"
	"github.com/gocoredb/coredb/internal/bptree"
	"github.com/gocoredb/coredb/internal/dbutil"
)

// Decimal128 is an IEEE-754-2008 decimal128 value (spec §4.5), stored
// as a 114-bit unsigned coefficient plus a biased exponent and sign.
// Real decimal128 reserves a combination field for exponent continuity
// codes and affine infinities; this is a simplified two-word layout
// that preserves the same sign/exponent/coefficient triple and
// round-trips exactly, without bit-matching the standard's combination
// field — there is no external wire compatibility requirement here,
// only on-disk self-consistency within one database.
type Decimal128 struct {
	Negative    bool
	Exponent    int32 // unbiased
	Coefficient big.Int
	Inf         bool
	NaN         bool
}

const (
	expBias       = 6176
	expBits       = 13
	coeffHighBits = 50
	specialExp    = 1<<expBits - 1 // biased exponent of Inf/NaN; lo's low bit tells NaN from Inf
)

var decimalPattern = regexp.MustCompile(`^([+-]?)(\d+(\.\d*)?|\.\d+)([eE]([+-]?\d+))?$`)

// ParseDecimal128 accepts the grammar
// [+-]?(digits(.digits)?|.digits)([eE][+-]?digits)? plus Inf/NaN
// (spec §4.5).
func ParseDecimal128(s string) (Decimal128, error) {
	trimmed := strings.TrimSpace(s)
	lower := strings.ToLower(trimmed)
	switch {
	case lower == "nan" || lower == "+nan":
		return Decimal128{NaN: true}, nil
	case lower == "-nan":
		return Decimal128{NaN: true, Negative: true}, nil
	case lower == "inf" || lower == "+inf" || lower == "infinity" || lower == "+infinity":
		return Decimal128{Inf: true}, nil
	case lower == "-inf" || lower == "-infinity":
		return Decimal128{Inf: true, Negative: true}, nil
	}

	m := decimalPattern.FindStringSubmatch(trimmed)
	if m == nil {
		return Decimal128{}, dbutil.New(dbutil.KindLogicError, "malformed decimal128 literal")
	}
	negative := m[1] == "-"
	mantissa := m[2]
	exp := int32(0)
	if m[5] != "" {
		e, err := parseInt32(m[5])
		if err != nil {
			return Decimal128{}, dbutil.Wrap(dbutil.KindLogicError, "decimal128 exponent", err)
		}
		exp = e
	}

	intPart, fracPart, _ := strings.Cut(mantissa, ".")
	digits := intPart + fracPart
	exp -= int32(len(fracPart))
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		digits = "0"
	}

	coeff, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return Decimal128{}, dbutil.New(dbutil.KindLogicError, "malformed decimal128 coefficient")
	}

	d := Decimal128{Negative: negative, Exponent: exp}
	d.Coefficient.Set(coeff)
	return d, nil
}

func parseInt32(s string) (int32, error) {
	n := new(big.Int)
	if _, ok := n.SetString(s, 10); !ok {
		return 0, dbutil.New(dbutil.KindLogicError, "malformed integer")
	}
	return int32(n.Int64()), nil
}

// String prints the canonical, minimal-precision form.
func (d Decimal128) String() string {
	switch {
	case d.NaN:
		if d.Negative {
			return "-NaN"
		}
		return "NaN"
	case d.Inf:
		if d.Negative {
			return "-Inf"
		}
		return "Inf"
	}
	digits := d.Coefficient.String()
	sign := ""
	if d.Negative && digits != "0" {
		sign = "-"
	}
	if d.Exponent >= 0 {
		return sign + digits + strings.Repeat("0", int(d.Exponent))
	}
	shift := int(-d.Exponent)
	if shift >= len(digits) {
		return sign + "0." + strings.Repeat("0", shift-len(digits)) + digits
	}
	point := len(digits) - shift
	return sign + digits[:point] + "." + digits[point:]
}

// Encode packs d into two 64-bit words (spec §4.5 "stored as two
// 64-bit words").
func (d Decimal128) Encode() (hi, lo uint64, err error) {
	if d.Coefficient.BitLen() > coeffHighBits+64 {
		return 0, 0, dbutil.New(dbutil.KindLogicError, "decimal128 coefficient overflow")
	}
	biased := int64(d.Exponent) + expBias
	if d.Inf || d.NaN {
		biased = specialExp
	} else if biased < 0 || biased >= specialExp {
		return 0, 0, dbutil.New(dbutil.KindLogicError, "decimal128 exponent out of range")
	}

	mask := new(big.Int).Lsh(big.NewInt(1), 64)
	mask.Sub(mask, big.NewInt(1))
	loBig := new(big.Int).And(&d.Coefficient, mask)
	hiBig := new(big.Int).Rsh(&d.Coefficient, 64)

	lo = loBig.Uint64()
	hi = hiBig.Uint64() & ((uint64(1) << coeffHighBits) - 1)
	hi |= uint64(biased) << coeffHighBits
	if d.Negative {
		hi |= uint64(1) << 63
	}
	if d.NaN {
		lo |= 1
	}
	return hi, lo, nil
}

// DecodeDecimal128 is the inverse of Encode.
func DecodeDecimal128(hi, lo uint64) Decimal128 {
	d := Decimal128{Negative: hi&(1<<63) != 0}
	biased := (hi >> coeffHighBits) & ((1 << expBits) - 1)
	if biased == specialExp {
		d.Inf, d.NaN = lo&1 == 0, lo&1 != 0
		return d
	}
	d.Exponent = int32(int64(biased) - expBias)

	hiCoeff := hi & ((uint64(1) << coeffHighBits) - 1)
	coeff := new(big.Int).Lsh(new(big.Int).SetUint64(hiCoeff), 64)
	coeff.Or(coeff, new(big.Int).SetUint64(lo))
	d.Coefficient.Set(coeff)
	return d
}

// Decimal128Column stores each value's two encoded words side by side
// in a pair of int64 columns, reusing bit patterns rather than the
// coefficient's sign.
type Decimal128Column struct {
	HiRoot arena.Ref
	LoRoot arena.Ref
}

func (c *Decimal128Column) Len(a *arena.Arena) (uint64, error) { return bptree.Size(a, c.HiRoot) }

func (c *Decimal128Column) Get(a *arena.Arena, i uint64) (Decimal128, error) {
	hi, err := bptree.Get(a, c.HiRoot, i)
	if err != nil {
		return Decimal128{}, err
	}
	lo, err := bptree.Get(a, c.LoRoot, i)
	if err != nil {
		return Decimal128{}, err
	}
	return DecodeDecimal128(uint64(hi), uint64(lo)), nil
}

func (c *Decimal128Column) Set(a *arena.Arena, i uint64, v Decimal128, version uint64) error {
	hi, lo, err := v.Encode()
	if err != nil {
		return err
	}
	hiRoot, err := bptree.Set(a, c.HiRoot, i, int64(hi), version)
	if err != nil {
		return err
	}
	loRoot, err := bptree.Set(a, c.LoRoot, i, int64(lo), version)
	if err != nil {
		return err
	}
	c.HiRoot, c.LoRoot = hiRoot, loRoot
	return nil
}

func (c *Decimal128Column) Insert(a *arena.Arena, i uint64, v Decimal128, version uint64) error {
	hi, lo, err := v.Encode()
	if err != nil {
		return err
	}
	hiRoot, err := bptree.Insert(a, c.HiRoot, i, int64(hi), version)
	if err != nil {
		return err
	}
	loRoot, err := bptree.Insert(a, c.LoRoot, i, int64(lo), version)
	if err != nil {
		return err
	}
	c.HiRoot, c.LoRoot = hiRoot, loRoot
	return nil
}

func (c *Decimal128Column) Erase(a *arena.Arena, i uint64, version uint64) error {
	hiRoot, err := bptree.Erase(a, c.HiRoot, i, version)
	if err != nil {
		return err
	}
	loRoot, err := bptree.Erase(a, c.LoRoot, i, version)
	if err != nil {
		return err
	}
	c.HiRoot, c.LoRoot = hiRoot, loRoot
	return nil
}
