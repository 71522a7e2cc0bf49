package cmap

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMap_Basic(t *testing.T) {
	m := New[int]()

	if _, ok := m.Get("a"); ok {
		t.Fatal("Get on empty map found a value")
	}
	m.Set("b", 2)
	m.Set("a", 1)
	if v, ok := m.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v", v, ok)
	}

	old, ok := m.Swap("a", 10)
	if !ok || old != 1 {
		t.Errorf("Swap(a) = %d, %v", old, ok)
	}
	if _, ok := m.Swap("c", 3); ok {
		t.Error("Swap of a new key reported a previous value")
	}

	if diff := cmp.Diff([]string{"a", "b", "c"}, m.Keys()); diff != "" {
		t.Errorf("Keys mismatch (-want +got):\n%s", diff)
	}

	if v, ok := m.Pop("b"); !ok || v != 2 {
		t.Errorf("Pop(b) = %d, %v", v, ok)
	}
	if _, ok := m.Pop("b"); ok {
		t.Error("second Pop(b) found a value")
	}
	if m.Len() != 2 {
		t.Errorf("Len = %d, want 2", m.Len())
	}

	m.Clear()
	if m.Len() != 0 {
		t.Errorf("Len after Clear = %d", m.Len())
	}
}

func TestNewWithShards(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{1, 1},
		{8, 8},
		{0, DefaultShardCount},
		{6, DefaultShardCount},
		{-4, DefaultShardCount},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.n), func(t *testing.T) {
			if got := len(NewWithShards[int](tt.n).shards); got != tt.want {
				t.Errorf("shards = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRange_Stop(t *testing.T) {
	m := New[int]()
	for i := 0; i < 50; i++ {
		m.Set(fmt.Sprint(i), i)
	}
	seen := 0
	m.Range(func(string, int) bool {
		seen++
		return seen < 5
	})
	if seen != 5 {
		t.Errorf("Range visited %d entries, want 5", seen)
	}
}

func TestMap_Concurrent(t *testing.T) {
	m := New[int]()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("%d-%d", w, i)
				m.Set(key, i)
				m.Get(key)
			}
		}(w)
	}
	wg.Wait()
	if m.Len() != 1600 {
		t.Errorf("Len = %d, want 1600", m.Len())
	}
}
