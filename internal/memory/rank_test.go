package memory

import (
	"fmt"
	"testing"
)

func TestRank_OrdersByRelevance(t *testing.T) {
	records := []Record{
		{ID: "m1", Memory: "drives a blue sedan"},
		{ID: "m2", Memory: "prefers oat milk in coffee"},
		{ID: "m3", Memory: "coffee every morning at seven"},
	}

	out := Rank("oat milk coffee", records)
	if len(out) == 0 {
		t.Fatal("no results")
	}
	if out[0].ID != "m2" {
		t.Errorf("top result = %s, want m2", out[0].ID)
	}
	for i := 1; i < len(out); i++ {
		if out[i].Score > out[i-1].Score {
			t.Errorf("results not sorted: %v then %v", out[i-1].Score, out[i].Score)
		}
	}
}

func TestRank_SubstringBoost(t *testing.T) {
	records := []Record{{ID: "m1", Memory: "always takes the coastal road"}}

	boosted := Rank("coastal road", records)
	if len(boosted) != 1 {
		t.Fatalf("results = %d, want 1", len(boosted))
	}
	base := diceSimilarity(bigrams("coastal road"), bigrams("always takes the coastal road"))
	want := base + substringBoost
	if diff := boosted[0].Score - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("score = %v, want %v", boosted[0].Score, want)
	}
}

func TestRank_FloorExcludesWeakMatches(t *testing.T) {
	records := []Record{{ID: "m1", Memory: "drives a blue sedan"}}
	if out := Rank("quantum chromodynamics", records); len(out) != 0 {
		t.Errorf("results = %+v, want none below the floor", out)
	}
}

func TestRank_LimitsToFive(t *testing.T) {
	var records []Record
	for i := 0; i < 10; i++ {
		records = append(records, Record{
			ID:     fmt.Sprintf("m%d", i),
			Memory: fmt.Sprintf("coffee note number %d", i),
		})
	}
	if out := Rank("coffee note", records); len(out) != 5 {
		t.Errorf("results = %d, want 5", len(out))
	}
}

func TestRank_DoesNotMutateInput(t *testing.T) {
	records := []Record{{ID: "m1", Memory: "coffee"}}
	Rank("coffee", records)
	if records[0].Score != 0 {
		t.Errorf("input record score mutated: %v", records[0].Score)
	}
}

func TestDiceSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"night", "night", 1},
		{"abcd", "wxyz", 0},
		{"", "", 0},
	}
	for _, tt := range tests {
		if got := diceSimilarity(bigrams(tt.a), bigrams(tt.b)); got != tt.want {
			t.Errorf("diceSimilarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
