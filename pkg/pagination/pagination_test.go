package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		query string
		want  Params
	}{
		{"", Params{Page: 1, Limit: 20, Offset: 0}},
		{"?page=3&limit=10", Params{Page: 3, Limit: 10, Offset: 20}},
		{"?page=-1&limit=0", Params{Page: 1, Limit: 20, Offset: 0}},
		{"?limit=1000", Params{Page: 1, Limit: 100, Offset: 0}},
		{"?page=abc", Params{Page: 1, Limit: 20, Offset: 0}},
	}
	for _, tt := range tests {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest("GET", "/x"+tt.query, nil)
		assert.Equal(t, tt.want, Parse(c), tt.query)
	}
}

func TestNewPage(t *testing.T) {
	page := NewPage([]string{"a", "b"}, 41, Normalize(1, 20))
	assert.Equal(t, 3, page.TotalPages)
	assert.Len(t, page.Items, 2)

	empty := NewPage[int](nil, 0, Normalize(1, 20))
	assert.NotNil(t, empty.Items, "empty lists encode as []")
	assert.Zero(t, empty.TotalPages)
}
