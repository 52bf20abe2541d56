package commitlog

import (
	"testing"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	l.DisableSync = true
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestAppendThenGetChangesetsRoundTrips(t *testing.T) {
	l := openTestLog(t)

	payloads := [][]byte{
		[]byte("v1"),
		[]byte("v2 is a bit longer"),
		[]byte("v3"),
	}
	for i, p := range payloads {
		if err := l.Append(p, uint64(i+1)); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}

	var out [][]byte
	if err := l.GetChangesets(0, 3, &out); err != nil {
		t.Fatalf("GetChangesets: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("got %d changesets, want 3", len(out))
	}
	for i, p := range payloads {
		if string(out[i]) != string(p) {
			t.Fatalf("changeset %d = %q, want %q", i, out[i], p)
		}
	}
}

func TestGetChangesetsClampsToAvailableRange(t *testing.T) {
	l := openTestLog(t)
	for i := 0; i < 2; i++ {
		if err := l.Append([]byte{byte(i)}, uint64(i+1)); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}

	var out [][]byte
	if err := l.GetChangesets(0, 100, &out); err != nil {
		t.Fatalf("GetChangesets: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d changesets, want 2 (clamped to End)", len(out))
	}
}

func TestAppendGrowsActiveFileAcrossMinLogSize(t *testing.T) {
	l := openTestLog(t)
	big := make([]byte, minLogSize)
	for i := range big {
		big[i] = byte(i)
	}
	if err := l.Append(big, 1); err != nil {
		t.Fatalf("Append big payload: %v", err)
	}

	var out [][]byte
	if err := l.GetChangesets(0, 1, &out); err != nil {
		t.Fatalf("GetChangesets: %v", err)
	}
	if len(out) != 1 || len(out[0]) != len(big) {
		t.Fatalf("got %d changesets (len %d), want 1 of len %d", len(out), len(out[0]), len(big))
	}
	for i := range big {
		if out[0][i] != big[i] {
			t.Fatalf("payload mismatch at byte %d", i)
		}
	}
}

func TestAppendRotatesIntoDeadInactiveFileOnGrowth(t *testing.T) {
	l := openTestLog(t)

	version := uint64(0)
	entry := make([]byte, 4096)
	for {
		version++
		if err := l.Append(entry, version); err != nil {
			t.Fatalf("Append(%d): %v", version, err)
		}
		h, err := l.readHeader()
		if err != nil {
			t.Fatalf("readHeader: %v", err)
		}
		if h.Preambles[h.Selector].ActiveIsA == false {
			break // rotated from A to B
		}
		if version > 1000 {
			t.Fatalf("never rotated after 1000 appends")
		}
	}

	h, err := l.readHeader()
	if err != nil {
		t.Fatalf("readHeader: %v", err)
	}
	p := h.Preambles[h.Selector]
	if p.BeginOldest != 0 || p.BeginNewest == 0 {
		t.Fatalf("preamble after rotation = %+v, want BeginOldest=0, BeginNewest>0", p)
	}

	var out [][]byte
	if err := l.GetChangesets(0, version, &out); err != nil {
		t.Fatalf("GetChangesets spanning rotation: %v", err)
	}
	if uint64(len(out)) != version {
		t.Fatalf("got %d changesets, want %d (no data loss across rotation)", len(out), version)
	}
}

func TestSetOldestBoundVersionKeepsActiveFileEntries(t *testing.T) {
	l := openTestLog(t)
	for i := 0; i < 4; i++ {
		if err := l.Append([]byte{byte(i)}, uint64(i+1)); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}

	h, err := l.readHeader()
	if err != nil {
		t.Fatalf("readHeader: %v", err)
	}
	p := h.Preambles[h.Selector]
	if p.BeginOldest != 0 || p.End != 4 {
		t.Fatalf("preamble = %+v, want BeginOldest=0 End=4", p)
	}

	if err := l.SetOldestBoundVersion(4); err != nil {
		t.Fatalf("SetOldestBoundVersion: %v", err)
	}

	var out [][]byte
	if err := l.GetChangesets(0, 4, &out); err != nil {
		t.Fatalf("GetChangesets: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("got %d changesets, want 4 (no data loss)", len(out))
	}
}

func TestInitiateSessionResetsState(t *testing.T) {
	l := openTestLog(t)
	if err := l.Append([]byte("stale"), 1); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := l.InitiateSession(10); err != nil {
		t.Fatalf("InitiateSession: %v", err)
	}

	h, err := l.readHeader()
	if err != nil {
		t.Fatalf("readHeader: %v", err)
	}
	p := h.Preambles[h.Selector]
	if p.BeginOldest != 10 || p.BeginNewest != 10 || p.End != 10 || p.WriteOffset != 0 {
		t.Fatalf("preamble after InitiateSession = %+v, want all bounds at 10, offset 0", p)
	}

	var out [][]byte
	if err := l.GetChangesets(0, 100, &out); err != nil {
		t.Fatalf("GetChangesets: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("got %d changesets after reset, want 0", len(out))
	}
}

func TestPreambleEncodeDecodeRoundTrips(t *testing.T) {
	p := Preamble{ActiveIsA: true, BeginOldest: 1, BeginNewest: 2, End: 3, WriteOffset: 4, LastSeen: 5}
	buf := make([]byte, preambleSize)
	p.Encode(buf)
	got := DecodePreamble(buf)
	if got != p {
		t.Fatalf("round trip = %+v, want %+v", got, p)
	}
}
