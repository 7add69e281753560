package mcp

import (
	"fmt"
	"testing"
)

func TestPaginationFoldPreservesOrder(t *testing.T) {
	items := make([]string, 25)
	for i := range items {
		items[i] = fmt.Sprintf("t%02d", i)
	}

	collected, err := ListAll(func(cursor string) ([]string, *string, error) {
		return applyPagination(items, cursor, 10)
	})
	if err != nil {
		t.Fatalf("ListAll failed: %v", err)
	}

	if len(collected) != len(items) {
		t.Fatalf("expected %d items, got %d", len(items), len(collected))
	}
	for i, item := range collected {
		if item != items[i] {
			t.Fatalf("order broken at %d: %s != %s", i, item, items[i])
		}
	}
}

func TestPaginationFirstPage(t *testing.T) {
	items := make([]int, 25)
	for i := range items {
		items[i] = i
	}

	page, next, err := applyPagination(items, "", 10)
	if err != nil {
		t.Fatalf("applyPagination failed: %v", err)
	}
	if len(page) != 10 {
		t.Errorf("page size = %d", len(page))
	}
	if next == nil || *next == "" {
		t.Fatal("expected a non-empty cursor")
	}
}

func TestPaginationLastPageHasNoCursor(t *testing.T) {
	items := []int{1, 2, 3}
	page, next, err := applyPagination(items, "", 10)
	if err != nil {
		t.Fatalf("applyPagination failed: %v", err)
	}
	if len(page) != 3 {
		t.Errorf("page size = %d", len(page))
	}
	if next != nil {
		t.Error("final page should have no cursor")
	}
}

func TestPaginationInvalidCursor(t *testing.T) {
	items := []int{1, 2, 3}
	if _, _, err := applyPagination(items, "not-a-number", 10); err == nil {
		t.Fatal("expected error for garbage cursor")
	}
	if _, _, err := applyPagination(items, "-1", 10); err == nil {
		t.Fatal("expected error for negative cursor")
	}
	if _, _, err := applyPagination(items, "99", 10); err == nil {
		t.Fatal("expected error for out-of-range cursor")
	}
}

func TestPaginationLimitClamped(t *testing.T) {
	items := make([]int, maxListLimit+50)
	page, _, err := applyPagination(items, "", maxListLimit+50)
	if err != nil {
		t.Fatalf("applyPagination failed: %v", err)
	}
	if len(page) != maxListLimit {
		t.Errorf("limit not clamped: %d", len(page))
	}
}
