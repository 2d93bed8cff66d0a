package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBlockTypeValid(t *testing.T) {
	for _, typ := range []BlockType{
		BlockText, BlockQuestion, BlockImage, BlockVideo, BlockAudio,
		BlockTypingEffect, BlockRecordingEffect, BlockDelay, BlockEnd,
	} {
		assert.True(t, typ.Valid(), string(typ))
	}
	assert.False(t, BlockType("poll").Valid())
	assert.False(t, BlockType("").Valid())
}

func TestContentDuration(t *testing.T) {
	assert.Equal(t, 2*time.Second, Content{}.Duration(BlockTypingEffect))
	assert.Equal(t, 2*time.Second, Content{}.Duration(BlockRecordingEffect))
	assert.Equal(t, time.Second, Content{}.Duration(BlockDelay))
	assert.Equal(t, 700*time.Millisecond, Content{DurationMs: 700}.Duration(BlockDelay))
	assert.Equal(t, time.Duration(0), Content{}.Duration(BlockText))
}

func TestNextIndex(t *testing.T) {
	blocks := []Block{
		{ID: "a", NextBlockID: "c"},
		{ID: "b"},
		{ID: "c", NextBlockID: "ghost"},
		{ID: "d"},
	}

	assert.Equal(t, 2, NextIndex(blocks, 0), "explicit pointer wins")
	assert.Equal(t, 2, NextIndex(blocks, 1), "no pointer falls through in order")
	assert.Equal(t, 3, NextIndex(blocks, 2), "unresolvable pointer falls through in order")
	assert.Equal(t, 4, NextIndex(blocks, 3), "last block walks off the end")
	assert.Equal(t, 4, NextIndex(blocks, 7))
	assert.Equal(t, 4, NextIndex(blocks, -1))
}
