package alert

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tphakala/withu/internal/classifier"
)

func TestHistoryNewestFirstAndBounded(t *testing.T) {
	t.Parallel()

	h := NewHistory(3)
	assert.Empty(t, h.List())

	for i := range 5 {
		h.Add(classifier.DetectionEvent{ID: fmt.Sprint(i)})
	}

	got := h.List()
	ids := make([]string, 0, len(got))
	for _, e := range got {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"4", "3", "2"}, ids)
	assert.Equal(t, 3, h.Len())

	// List returns a copy.
	got[0].ID = "changed"
	assert.Equal(t, "4", h.List()[0].ID)

	h.Clear()
	assert.Zero(t, h.Len())
}

func TestHistoryMinimumSize(t *testing.T) {
	t.Parallel()

	h := NewHistory(0)
	h.Add(classifier.DetectionEvent{ID: "a"})
	h.Add(classifier.DetectionEvent{ID: "b"})
	assert.Equal(t, "b", h.List()[0].ID)
	assert.Equal(t, 1, h.Len())
}
