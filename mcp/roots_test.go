package mcp

import "testing"

func TestSetRootsAcceptsFileURIs(t *testing.T) {
	manager := NewRootsManager()
	err := manager.SetRoots([]Root{
		{URI: "file:///home/dev/project", Name: "project"},
		{URI: "file:///tmp"},
	})
	if err != nil {
		t.Fatalf("SetRoots failed: %v", err)
	}

	roots := manager.Roots()
	if len(roots) != 2 || roots[0].Name != "project" {
		t.Fatalf("roots = %v", roots)
	}
}

func TestSetRootsRejectsNonFileURI(t *testing.T) {
	manager := NewRootsManager()
	if err := manager.SetRoots([]Root{{URI: "file:///ok"}}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	err := manager.SetRoots([]Root{
		{URI: "file:///fine"},
		{URI: "https://example.com"},
	})
	if err == nil {
		t.Fatal("expected rejection of https root")
	}

	// Prior state intact after a rejected update.
	roots := manager.Roots()
	if len(roots) != 1 || roots[0].URI != "file:///ok" {
		t.Fatalf("prior state mutated: %v", roots)
	}
}

func TestSetRootsRejectsEmptyPath(t *testing.T) {
	manager := NewRootsManager()
	if err := manager.SetRoots([]Root{{URI: "file://"}}); err == nil {
		t.Fatal("expected rejection of bare file://")
	}
}

func TestNotifyChangedIsExplicit(t *testing.T) {
	manager := NewRootsManager()
	fired := 0
	manager.SetNotifyCallback(func() { fired++ })

	if err := manager.SetRoots([]Root{{URI: "file:///a"}}); err != nil {
		t.Fatalf("SetRoots failed: %v", err)
	}
	if fired != 0 {
		t.Fatal("SetRoots must not auto-notify")
	}

	manager.NotifyChanged()
	if fired != 1 {
		t.Fatalf("notify fired %d times", fired)
	}
}

func TestRootsContains(t *testing.T) {
	manager := NewRootsManager()
	if err := manager.SetRoots([]Root{
		{URI: "file:///srv/data"},
		{URI: "file:///home/*/workspace"},
	}); err != nil {
		t.Fatalf("SetRoots failed: %v", err)
	}

	cases := []struct {
		path string
		want bool
	}{
		{"/srv/data/report.txt", true},
		{"/srv/data", true},
		{"/srv/database", false},
		{"file:///srv/data/x", true},
		{"/home/dev/workspace", true},
		{"/home/dev/other", false},
	}
	for _, tc := range cases {
		if got := manager.Contains(tc.path); got != tc.want {
			t.Errorf("Contains(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}
