package event

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopic_PublishOrder(t *testing.T) {
	var topic Topic[int]
	var got []string

	topic.Subscribe(func(v int) { got = append(got, "a") })
	topic.Subscribe(func(v int) { got = append(got, "b") })
	topic.Publish(1)

	assert.Equal(t, []string{"a", "b"}, got)
}

func TestTopic_Unsubscribe(t *testing.T) {
	var topic Topic[string]
	var got []string

	unsub := topic.Subscribe(func(v string) { got = append(got, v) })
	topic.Publish("x")
	unsub()
	unsub()
	topic.Publish("y")

	assert.Equal(t, []string{"x"}, got)
	assert.Equal(t, 0, topic.Len())
}

func TestTopic_NilPublish(t *testing.T) {
	var topic *Topic[int]
	assert.NotPanics(t, func() { topic.Publish(1) })
}

func TestTopic_UnsubscribeDuringPublish(t *testing.T) {
	var topic Topic[int]
	calls := 0
	var unsub func()
	unsub = topic.Subscribe(func(int) {
		calls++
		unsub()
	})
	topic.Subscribe(func(int) { calls++ })

	topic.Publish(1)
	topic.Publish(2)
	assert.Equal(t, 3, calls)
}

func TestTopic_Concurrent(t *testing.T) {
	var topic Topic[int]
	var mu sync.Mutex
	sum := 0
	topic.Subscribe(func(v int) {
		mu.Lock()
		sum += v
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			topic.Publish(i)
		}()
	}
	wg.Wait()
	assert.Equal(t, 5050, sum)
}

func TestTool(t *testing.T) {
	assert.True(t, ToolDelete.IsBrush())
	assert.True(t, ToolRestore.IsBrush())
	assert.False(t, ToolML.IsBrush())
	assert.False(t, ToolNone.IsBrush())
	assert.Equal(t, "restore", ToolRestore.String())
}
