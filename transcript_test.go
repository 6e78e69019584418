package live

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTranscriptLog(t *testing.T) {
	var log TranscriptLog
	a := log.Append(RoleUser, "hello")
	b := log.Append(RoleAssistant, "hi there")
	assert.Greater(t, b.ID, a.ID)
	assert.Equal(t, 2, log.Len())

	msgs := log.Messages()
	msgs[0].Text = "mutated"
	assert.Equal(t, "hello", log.Messages()[0].Text, "Messages returns a copy")

	log.Clear()
	assert.Zero(t, log.Len())
	c := log.Append(RoleSystem, "Disconnected")
	assert.Greater(t, c.ID, b.ID, "ids keep increasing after Clear")
}

func TestTranscriptLogConcurrentAppend(t *testing.T) {
	var (
		log TranscriptLog
		wg  sync.WaitGroup
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Append(RoleUser, "x")
		}()
	}
	wg.Wait()

	seen := map[int64]bool{}
	for _, m := range log.Messages() {
		assert.False(t, seen[m.ID], "duplicate id %d", m.ID)
		seen[m.ID] = true
	}
	assert.Len(t, seen, 50)
}
