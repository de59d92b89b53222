package service

import (
	"sort"
	"testing"
)

func TestStringSet(t *testing.T) {
	ss := StringSet{}
	ss.Push("097_071")
	ss.Push("097_072")
	ss.Push("097_071")
	if !ss.Exists("097_071") || len(ss) != 2 {
		t.Errorf("unexpected set %v", ss)
	}
	ss.Pop("097_071")
	if ss.Exists("097_071") {
		t.Error("popped element still present")
	}
	sl := ss.Slice()
	sort.Strings(sl)
	if len(sl) != 1 || sl[0] != "097_072" {
		t.Errorf("unexpected slice %v", sl)
	}
}
