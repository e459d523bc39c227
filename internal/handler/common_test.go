package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func testContext(query string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/?"+query, nil)
	return c
}

func TestPaging(t *testing.T) {
	cases := []struct {
		query              string
		page, size, offset int
	}{
		{"", 1, 20, 0},
		{"page=3&page_size=10", 3, 10, 20},
		{"page=0&page_size=500", 1, 20, 0},
		{"page=x&page_size=-1", 1, 20, 0},
		{"page_size=100", 1, 100, 0},
	}
	for _, tc := range cases {
		page, size, offset := paging(testContext(tc.query), 20)
		if page != tc.page || size != tc.size || offset != tc.offset {
			t.Errorf("paging(%q) = %d,%d,%d want %d,%d,%d", tc.query, page, size, offset, tc.page, tc.size, tc.offset)
		}
	}
}

func TestDateRange(t *testing.T) {
	start, end, hasStart, hasEnd, err := dateRange(testContext("start=2025-01-01&end=2025-01-31"))
	if err != nil {
		t.Fatalf("dateRange error = %v", err)
	}
	if !hasStart || !hasEnd {
		t.Fatal("both bounds should be set")
	}
	if !start.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start = %v", start)
	}
	// end is inclusive
	if !end.Equal(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("end = %v", end)
	}

	if _, _, _, _, err := dateRange(testContext("start=2025-02-01&end=2025-01-01")); err == nil {
		t.Error("inverted range should fail")
	}
	if _, _, _, _, err := dateRange(testContext("end=01/02/2025")); err == nil {
		t.Error("bad end format should fail")
	}
	_, _, hasStart, hasEnd, err = dateRange(testContext(""))
	if err != nil || hasStart || hasEnd {
		t.Errorf("empty range = %v,%v,%v", hasStart, hasEnd, err)
	}
}

func TestOptionalBool(t *testing.T) {
	v, ok, err := optionalBool(testContext("active=false"), "active")
	if err != nil || !ok || v {
		t.Errorf("active=false -> %v,%v,%v", v, ok, err)
	}
	if _, ok, _ := optionalBool(testContext(""), "active"); ok {
		t.Error("absent flag reported as present")
	}
	if _, _, err := optionalBool(testContext("active=maybe"), "active"); err == nil {
		t.Error("invalid flag should fail")
	}
}
