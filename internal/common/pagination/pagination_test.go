package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseParams(t *testing.T) {
	tests := []struct {
		query string
		want  Params
	}{
		{"", Params{Page: 1, PerPage: DefaultPerPage}},
		{"?page=3&per_page=5", Params{Page: 3, PerPage: 5}},
		{"?page=-1&per_page=abc", Params{Page: 1, PerPage: DefaultPerPage}},
		{"?per_page=1000", Params{Page: 1, PerPage: MaxPerPage}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/orders"+tt.query, nil)
			assert.Equal(t, tt.want, ParseParams(r))
		})
	}
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	tests := []struct {
		name      string
		params    Params
		want      []int
		wantPages int
	}{
		{"first page", Params{Page: 1, PerPage: 2}, []int{1, 2}, 3},
		{"last partial page", Params{Page: 3, PerPage: 2}, []int{5}, 3},
		{"past the end", Params{Page: 9, PerPage: 2}, []int{}, 3},
		{"everything", Params{Page: 1, PerPage: 20}, []int{1, 2, 3, 4, 5}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Paginate(items, tt.params)
			assert.Equal(t, tt.want, got.Results)
			assert.Equal(t, tt.wantPages, got.TotalPages)
			assert.Equal(t, 5, got.TotalResults)
		})
	}

	empty := Paginate([]int{}, Params{Page: 1, PerPage: 10})
	assert.Equal(t, 1, empty.TotalPages)
	assert.Empty(t, empty.Results)
}
