//go:build !windows

package pty

import (
	"sort"
	"testing"
)

func TestParseDescendants(t *testing.T) {
	table := `
  1     0
 10     1
 11    10
 12    11
 13    10
 20     1
garbage
`
	got := parseDescendants(table, 10)
	sort.Ints(got)
	want := []int{11, 12, 13}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
