package display

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/nestris-ocr/internal/tetris"
)

func TestPublisherForwardsOnlyChanges(t *testing.T) {
	var pushed []Data
	p := NewPublisher(SinkFunc(func(d Data) { pushed = append(pushed, d) }))

	d := Empty()
	d.Level = 18
	assert.True(t, p.Publish(d))
	assert.False(t, p.Publish(d), "identical data must not be pushed twice")

	d.Score = 1200
	assert.True(t, p.Publish(d))

	b := tetris.ParseBoard("1.........")
	d.Board = b
	assert.True(t, p.Publish(d))

	// Mutating the producer's board after publishing is a change.
	b.SetAt(5, 19, tetris.ColorWhite)
	assert.True(t, p.Publish(d))

	require.Len(t, pushed, 4)
	assert.Equal(t, 1, pushed[2].Board.Count())
	assert.Equal(t, 2, pushed[3].Board.Count())
}

func TestPublisherReset(t *testing.T) {
	count := 0
	p := NewPublisher(SinkFunc(func(Data) { count++ }))
	p.Publish(Empty())
	p.Reset()
	p.Publish(Empty())
	assert.Equal(t, 2, count)

	last, ok := p.Last()
	require.True(t, ok)
	assert.Equal(t, tetris.TypeError, last.Next)
}

func TestEqualNilBoards(t *testing.T) {
	assert.True(t, Data{}.Equal(Data{}))
	assert.False(t, Data{}.Equal(Empty()))
	assert.True(t, Empty().Equal(Empty()))
}

func TestNilSink(t *testing.T) {
	p := NewPublisher(nil)
	assert.True(t, p.Publish(Empty()))
}
