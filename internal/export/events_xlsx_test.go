package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/domain"
)

func TestEventsXLSX(t *testing.T) {
	reviewer := "acc-1"
	name := "Marta Gil"
	comment := "false alarm, dropped phone"
	at := time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)

	data, err := EventsXLSX([]*domain.FallEvent{
		{ID: "ev-2", DeviceID: "dev-1", EventType: domain.EventTypeFall, Status: domain.StatusFalseAlarm,
			OccurredAt: at, CreatedAt: at, ReviewedBy: &reviewer, ReviewedByName: &name, ReviewedAt: &at,
			ReviewComment: &comment, Version: 2},
		{ID: "ev-1", DeviceID: "dev-2", EventType: domain.EventTypeSimulated, Status: domain.StatusOpen,
			OccurredAt: at.Add(-time.Hour), CreatedAt: at, Version: 1},
	})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Events"}, f.GetSheetList())

	rows, err := f.GetRows("Events")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, EventsHeader, rows[0])
	assert.Equal(t, "ev-2", rows[1][0])
	assert.Equal(t, "FALSE_ALARM", rows[1][6])
	assert.Equal(t, "2026-04-01T09:30:00Z", rows[1][7])
	assert.Equal(t, "Marta Gil", rows[1][9])
	assert.Equal(t, comment, rows[1][11])
	assert.Equal(t, "ev-1", rows[2][0])
}

func TestEventsXLSX_Empty(t *testing.T) {
	data, err := EventsXLSX(nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Events")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
