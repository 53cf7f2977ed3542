package queue

import (
	"testing"

	"processhub/internal/worker/tasks"

	"github.com/stretchr/testify/assert"
)

func TestQueueForPriority(t *testing.T) {
	assert.Equal(t, tasks.QueueCritical, QueueForPriority("URGENT"))
	assert.Equal(t, tasks.QueueNotification, QueueForPriority("HIGH"))
	assert.Equal(t, tasks.QueueNotification, QueueForPriority("NORMAL"))
	assert.Equal(t, tasks.QueueDefault, QueueForPriority("LOW"))
	assert.Equal(t, tasks.QueueDefault, QueueForPriority(""))
}
