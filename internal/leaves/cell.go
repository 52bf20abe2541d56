package leaves

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/gocoredb/coredb/internal/dbutil"
)

// CellKind tags the dynamic type of a Cell. Order matters: it defines
// the canonical cross-type ordering of spec §4.5 ("null < bool <
// numeric < string < binary < object-id < others").
type CellKind uint8

const (
	CellNull CellKind = iota
	CellBool
	CellNumeric
	CellString
	CellBinary
	CellObjectID
	CellOther
)

// Cell is one member of a set/dictionary/list column: a dynamically
// typed value drawn from the leaf families above it.
type Cell struct {
	Kind     CellKind
	Bool     bool
	Numeric  int64
	Str      string
	Binary   []byte
	ObjectID uint64
	Other    []byte
}

// Compare implements the canonical cross-type ordering: by Kind first,
// then by value within a kind.
func Compare(a, b Cell) int {
	if a.Kind != b.Kind {
		if a.Kind < b.Kind {
			return -1
		}
		return 1
	}
	switch a.Kind {
	case CellNull:
		return 0
	case CellBool:
		if a.Bool == b.Bool {
			return 0
		}
		if !a.Bool {
			return -1
		}
		return 1
	case CellNumeric:
		switch {
		case a.Numeric < b.Numeric:
			return -1
		case a.Numeric > b.Numeric:
			return 1
		default:
			return 0
		}
	case CellString:
		return bytes.Compare([]byte(a.Str), []byte(b.Str))
	case CellBinary:
		return bytes.Compare(a.Binary, b.Binary)
	case CellObjectID:
		ra, rb := ObjectKey(a.ObjectID).Resolved(), ObjectKey(b.ObjectID).Resolved()
		switch {
		case ra < rb:
			return -1
		case ra > rb:
			return 1
		default:
			return 0
		}
	default:
		return bytes.Compare(a.Other, b.Other)
	}
}

func encodeCell(buf *bytes.Buffer, c Cell) {
	buf.WriteByte(byte(c.Kind))
	switch c.Kind {
	case CellNull:
	case CellBool:
		if c.Bool {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case CellNumeric:
		var w [8]byte
		binary.LittleEndian.PutUint64(w[:], uint64(c.Numeric))
		buf.Write(w[:])
	case CellString:
		writeLenPrefixed(buf, []byte(c.Str))
	case CellBinary:
		writeLenPrefixed(buf, c.Binary)
	case CellObjectID:
		var w [8]byte
		binary.LittleEndian.PutUint64(w[:], c.ObjectID)
		buf.Write(w[:])
	case CellOther:
		writeLenPrefixed(buf, c.Other)
	}
}

func writeLenPrefixed(buf *bytes.Buffer, data []byte) {
	var w [4]byte
	binary.LittleEndian.PutUint32(w[:], uint32(len(data)))
	buf.Write(w[:])
	buf.Write(data)
}

func readLenPrefixed(r *bytes.Reader) ([]byte, error) {
	var w [4]byte
	if _, err := io.ReadFull(r, w[:]); err != nil {
		return nil, dbutil.Wrap(dbutil.KindInvalidFileFormat, "read cell length prefix", err)
	}
	n := binary.LittleEndian.Uint32(w[:])
	out := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, out); err != nil {
			return nil, dbutil.Wrap(dbutil.KindInvalidFileFormat, "read cell payload", err)
		}
	}
	return out, nil
}

func decodeCell(r *bytes.Reader) (Cell, error) {
	kindByte, err := r.ReadByte()
	if err != nil {
		return Cell{}, dbutil.Wrap(dbutil.KindInvalidFileFormat, "read cell tag", err)
	}
	c := Cell{Kind: CellKind(kindByte)}
	switch c.Kind {
	case CellNull:
	case CellBool:
		b, err := r.ReadByte()
		if err != nil {
			return Cell{}, dbutil.Wrap(dbutil.KindInvalidFileFormat, "read bool cell", err)
		}
		c.Bool = b != 0
	case CellNumeric:
		var w [8]byte
		if _, err := io.ReadFull(r, w[:]); err != nil {
			return Cell{}, dbutil.Wrap(dbutil.KindInvalidFileFormat, "read numeric cell", err)
		}
		c.Numeric = int64(binary.LittleEndian.Uint64(w[:]))
	case CellString:
		b, err := readLenPrefixed(r)
		if err != nil {
			return Cell{}, err
		}
		c.Str = string(b)
	case CellBinary:
		b, err := readLenPrefixed(r)
		if err != nil {
			return Cell{}, err
		}
		c.Binary = b
	case CellObjectID:
		var w [8]byte
		if _, err := io.ReadFull(r, w[:]); err != nil {
			return Cell{}, dbutil.Wrap(dbutil.KindInvalidFileFormat, "read object-id cell", err)
		}
		c.ObjectID = binary.LittleEndian.Uint64(w[:])
	case CellOther:
		b, err := readLenPrefixed(r)
		if err != nil {
			return Cell{}, err
		}
		c.Other = b
	default:
		return Cell{}, dbutil.New(dbutil.KindInvalidFileFormat, "unknown cell kind")
	}
	return c, nil
}

// encodeCellList and decodeCellList serialize an ordered sequence of
// cells, the on-disk payload of set/dictionary/list leaves.
func encodeCellList(cells []Cell) []byte {
	var buf bytes.Buffer
	var w [4]byte
	binary.LittleEndian.PutUint32(w[:], uint32(len(cells)))
	buf.Write(w[:])
	for _, c := range cells {
		encodeCell(&buf, c)
	}
	return buf.Bytes()
}

func decodeCellList(data []byte) ([]Cell, error) {
	if len(data) < 4 {
		if len(data) == 0 {
			return nil, nil
		}
		return nil, dbutil.New(dbutil.KindInvalidFileFormat, "truncated cell list")
	}
	n := binary.LittleEndian.Uint32(data[:4])
	r := bytes.NewReader(data[4:])
	out := make([]Cell, 0, n)
	for i := uint32(0); i < n; i++ {
		c, err := decodeCell(r)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
