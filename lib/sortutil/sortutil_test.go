package sortutil

import (
	"math/rand"
	"sort"
	"testing"
)

type intSlice []int

func (s intSlice) Len() int           { return len(s) }
func (s intSlice) Less(i, j int) bool { return s[i] < s[j] }
func (s intSlice) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

func TestCombSortRandom(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	data := make(intSlice, 500)
	for i := range data {
		data[i] = r.Intn(10_000)
	}

	if err := CombSort(data, false); err != nil {
		t.Fatalf("CombSort returned error: %v", err)
	}
	if !sort.IsSorted(data) {
		t.Fatalf("data not sorted after CombSort")
	}
}

func TestCombSortSmallSizes(t *testing.T) {
	for n := 0; n < 8; n++ {
		data := make(intSlice, n)
		for i := range data {
			data[i] = n - i
		}
		if err := CombSort(data, false); err != nil {
			t.Fatalf("n=%d: CombSort returned error: %v", n, err)
		}
		if !sort.IsSorted(data) {
			t.Fatalf("n=%d: data not sorted: %v", n, data)
		}
	}
}

func TestCombSortUniqueDetectsDuplicate(t *testing.T) {
	data := intSlice{3, 1, 2, 1, 5}
	if err := CombSort(data, true); err != ErrDuplicate {
		t.Fatalf("CombSort(unique) error = %v, want ErrDuplicate", err)
	}
}

func TestCombSortUniqueAllowsDistinct(t *testing.T) {
	data := intSlice{5, 4, 3, 2, 1}
	if err := CombSort(data, true); err != nil {
		t.Fatalf("CombSort(unique) unexpected error: %v", err)
	}
	if !sort.IsSorted(data) {
		t.Fatalf("data not sorted: %v", data)
	}
}

func cmpAgainst(data []int, target int) CompareFunc {
	return func(i int) int {
		switch {
		case data[i] < target:
			return -1
		case data[i] > target:
			return 1
		default:
			return 0
		}
	}
}

func TestBinarySearchExact(t *testing.T) {
	data := []int{1, 3, 3, 3, 5, 7, 9}

	idx, ok := BinarySearch(len(data), cmpAgainst(data, 3), ModeExact)
	if !ok || idx != 1 {
		t.Fatalf("exact search for 3: got (%d, %v), want (1, true)", idx, ok)
	}

	_, ok = BinarySearch(len(data), cmpAgainst(data, 4), ModeExact)
	if ok {
		t.Fatalf("exact search for absent 4 returned found")
	}
}

func TestBinarySearchGreatestLowerEqual(t *testing.T) {
	data := []int{1, 3, 3, 3, 5, 7, 9}

	idx, ok := BinarySearch(len(data), cmpAgainst(data, 3), ModeGreatestLowerEqual)
	if !ok || idx != 1 {
		t.Fatalf("GLE search for 3: got (%d, %v), want (1, true) [first occurrence]", idx, ok)
	}

	idx, ok = BinarySearch(len(data), cmpAgainst(data, 4), ModeGreatestLowerEqual)
	if !ok || idx != 3 {
		t.Fatalf("GLE search for 4: got (%d, %v), want (3, true)", idx, ok)
	}

	_, ok = BinarySearch(len(data), cmpAgainst(data, 0), ModeGreatestLowerEqual)
	if ok {
		t.Fatalf("GLE search for value below range returned found")
	}
}

func TestBinarySearchLeastUpperEqual(t *testing.T) {
	data := []int{1, 3, 3, 3, 5, 7, 9}

	idx, ok := BinarySearch(len(data), cmpAgainst(data, 3), ModeLeastUpperEqual)
	if !ok || idx != 1 {
		t.Fatalf("LUE search for 3: got (%d, %v), want (1, true) [first occurrence]", idx, ok)
	}

	idx, ok = BinarySearch(len(data), cmpAgainst(data, 4), ModeLeastUpperEqual)
	if !ok || idx != 4 {
		t.Fatalf("LUE search for 4: got (%d, %v), want (4, true)", idx, ok)
	}

	_, ok = BinarySearch(len(data), cmpAgainst(data, 10), ModeLeastUpperEqual)
	if ok {
		t.Fatalf("LUE search for value above range returned found")
	}
}
