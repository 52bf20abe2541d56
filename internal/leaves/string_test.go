package leaves

import "testing"

func TestStringColumnTierPromotionIsMonotone(t *testing.T) {
	a := openBlobTestArena(t)
	var col StringColumn
	if err := col.Insert(a, 0, "short", 1); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if col.Tier != TierSmall {
		t.Fatalf("Tier = %v, want TierSmall", col.Tier)
	}
	big := make([]byte, maxInlineBlob+10)
	if err := col.Set(a, 0, string(big), 2); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if col.Tier != TierBig {
		t.Fatalf("Tier = %v, want TierBig", col.Tier)
	}
	if err := col.Set(a, 0, "short again", 3); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if col.Tier != TierBig {
		t.Fatalf("Tier regressed to %v after shrinking value", col.Tier)
	}
	got, err := col.Get(a, 0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "short again" {
		t.Fatalf("got %q", got)
	}
}
