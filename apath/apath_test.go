package apath

import (
	"sort"
	"testing"
)

func TestValidate(t *testing.T) {
	valid := []string{"/", "/a", "/a/b", "/a.txt", "/a/b/c"}
	for _, p := range valid {
		if err := Validate(p); err != nil {
			t.Errorf("expected %q to be valid, got %v", p, err)
		}
	}
	invalid := []string{"", "a", "/a/", "/a//b", "/./a", "/a/../b", "/.."}
	for _, p := range invalid {
		if err := Validate(p); err == nil {
			t.Errorf("expected %q to be invalid", p)
		}
	}
}

func TestCompareTotalOrder(t *testing.T) {
	pairs := [][2]string{
		{"/a", "/b"},
		{"/a", "/a/b"},
		{"/a/b", "/a/c"},
		{"/", "/a"},
		{"/a/z", "/b"},
	}
	for _, pr := range pairs {
		if !Less(pr[0], pr[1]) {
			t.Errorf("expected %q < %q", pr[0], pr[1])
		}
		if Less(pr[1], pr[0]) {
			t.Errorf("expected %q not < %q", pr[1], pr[0])
		}
		if Compare(pr[0], pr[1]) != -Compare(pr[1], pr[0]) {
			t.Errorf("comparator not antisymmetric for %q, %q", pr[0], pr[1])
		}
	}
}

func TestCompareDirectoryPrefixSortsFirst(t *testing.T) {
	if !IsStrictPrefixDir("/a", "/a/b") {
		t.Errorf("expected /a to be a strict prefix dir of /a/b")
	}
	if !Less("/a", "/a/b") {
		t.Errorf("directory prefix must sort before its descendants")
	}
	if IsStrictPrefixDir("/a", "/ab") {
		t.Errorf("/a must not be considered a prefix dir of /ab (no path separator)")
	}
}

func TestCompareExactlyOneHolds(t *testing.T) {
	paths := []string{"/", "/a", "/a/b", "/a/c", "/b", "/aa"}
	for _, x := range paths {
		for _, y := range paths {
			lt := Compare(x, y) < 0
			eq := Compare(x, y) == 0
			gt := Compare(x, y) > 0
			count := 0
			for _, v := range []bool{lt, eq, gt} {
				if v {
					count++
				}
			}
			if count != 1 {
				t.Fatalf("exactly one of <,==,> must hold for (%q,%q), got lt=%v eq=%v gt=%v", x, y, lt, eq, gt)
			}
		}
	}
}

func TestSortStability(t *testing.T) {
	paths := []string{"/b", "/a/z", "/a", "/a/b", "/"}
	sort.Slice(paths, func(i, j int) bool { return Less(paths[i], paths[j]) })
	want := []string{"/", "/a", "/a/b", "/a/z", "/b"}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("sort mismatch at %d: got %q, want %q (full: %v)", i, paths[i], want[i], paths)
		}
	}
}

func TestJoinAndParent(t *testing.T) {
	if Join(Root, "a") != "/a" {
		t.Errorf("Join(Root, a) = %q", Join(Root, "a"))
	}
	if Join("/a", "b") != "/a/b" {
		t.Errorf("Join(/a, b) = %q", Join("/a", "b"))
	}
	if Parent("/a/b") != "/a" {
		t.Errorf("Parent(/a/b) = %q", Parent("/a/b"))
	}
	if Parent("/a") != Root {
		t.Errorf("Parent(/a) = %q", Parent("/a"))
	}
	if Parent(Root) != Root {
		t.Errorf("Parent(Root) = %q", Parent(Root))
	}
}
