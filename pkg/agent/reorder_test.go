package agent

import (
	"reflect"
	"testing"
)

func collectReorderer() (*Reorderer, *[][]string) {
	var got [][]string
	r := NewReorderer(func(items []string) {
		got = append(got, items)
	})
	return r, &got
}

func TestReordererInOrder(t *testing.T) {
	r, got := collectReorderer()
	r.Next(0, []string{"a"})
	r.Next(1, []string{"b"})
	r.Next(2, []string{"c"})

	want := [][]string{{"a"}, {"b"}, {"c"}}
	if !reflect.DeepEqual(*got, want) {
		t.Errorf("got %v, want %v", *got, want)
	}
}

func TestReordererHoldsUntilGapFills(t *testing.T) {
	r, got := collectReorderer()
	r.Next(0, []string{"a"})
	r.Next(2, []string{"c"})
	if len(*got) != 1 {
		t.Fatalf("batch 2 should be held while 1 is missing, got %v", *got)
	}
	r.Next(1, []string{"b"})

	want := [][]string{{"a"}, {"b"}, {"c"}}
	if !reflect.DeepEqual(*got, want) {
		t.Errorf("got %v, want %v", *got, want)
	}
}

func TestReordererSkipsWideGap(t *testing.T) {
	r, got := collectReorderer()
	r.Next(0, []string{"a"})
	r.Next(5, []string{"f"})

	want := [][]string{{"a"}, {"f"}}
	if !reflect.DeepEqual(*got, want) {
		t.Errorf("wide gaps should not stall, got %v, want %v", *got, want)
	}
}

func TestReordererDiscardsParkedBatchesBehindSkip(t *testing.T) {
	r, got := collectReorderer()
	r.Next(0, []string{"a"})
	r.Next(2, []string{"c"})
	r.Next(5, []string{"f"})

	want := [][]string{{"a"}, {"f"}}
	if !reflect.DeepEqual(*got, want) {
		t.Errorf("got %v, want %v", *got, want)
	}
	r.mu.Lock()
	pending := len(r.pending)
	r.mu.Unlock()
	if pending != 0 {
		t.Errorf("%d batches still parked behind the skip", pending)
	}
}

func TestReordererDropsStaleAndDuplicate(t *testing.T) {
	r, got := collectReorderer()
	r.Next(0, []string{"a"})
	r.Next(1, []string{"b"})
	r.Next(0, []string{"dup"})
	r.Next(1, []string{"dup"})

	want := [][]string{{"a"}, {"b"}}
	if !reflect.DeepEqual(*got, want) {
		t.Errorf("got %v, want %v", *got, want)
	}
}
