package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPaginationMeta(t *testing.T) {
	tests := []struct {
		name                  string
		page, pageSize, total int
		wantPage, wantPages   int
		wantNext, wantPrev    bool
	}{
		{"empty", 3, 20, 0, 1, 0, false, false},
		{"first page", 1, 20, 45, 1, 3, true, false},
		{"middle", 2, 20, 45, 2, 3, true, true},
		{"last exact", 2, 10, 20, 2, 2, false, true},
		{"beyond range corrected", 9, 20, 45, 3, 3, false, true},
		{"single page", 1, 100, 7, 1, 1, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewPaginationMeta(tt.page, tt.pageSize, tt.total)
			assert.Equal(t, tt.wantPage, m.Page)
			assert.Equal(t, tt.wantPages, m.TotalPages)
			assert.Equal(t, tt.wantNext, m.HasNextPage)
			assert.Equal(t, tt.wantPrev, m.HasPrevPage)
			assert.Equal(t, tt.total, m.Total)
		})
	}
}

func TestOffset(t *testing.T) {
	assert.Equal(t, 0, NewPaginationMeta(1, 20, 100).Offset())
	assert.Equal(t, 40, NewPaginationMeta(3, 20, 100).Offset())
}

func TestEnumsValid(t *testing.T) {
	assert.True(t, StatusConfirmedFall.Valid())
	assert.False(t, EventStatus("closed").Valid())
	assert.True(t, EventTypeEmergencyButton.Valid())
	assert.False(t, EventType("TRIP").Valid())
}
