package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueue_DrainClears(t *testing.T) {
	var q Queue
	q.Success("Saved")
	q.Error("Unable to reach the server. Please check your connection.")
	q.Error("")

	assert.Equal(t, 2, q.Len())
	assert.Equal(t, []Message{
		{Level: LevelSuccess, Text: "Saved"},
		{Level: LevelError, Text: "Unable to reach the server. Please check your connection."},
	}, q.Drain())
	assert.Empty(t, q.Drain())
}
