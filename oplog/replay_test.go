package oplog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReplay(t *testing.T) {
	deleted := Replay([]Record{
		{Version: 3, Op: Op{Action: ActionRestore, Indices: []uint32{2}}},
		{Version: 1, Op: Op{Action: ActionDelete, Indices: []uint32{1, 2, 3}}},
		{Version: 2, Op: Op{Action: "mask.delete", Indices: []uint32{7}}},
		{Version: 4, Op: Op{Action: "remove", Indices: []uint32{9}}},
		{Version: 5, Op: Op{Action: "annotate", Indices: []uint32{11}}},
	})
	assert.Equal(t, []uint32{1, 3, 7, 9}, deleted.ToSlice())
}

func TestReplay_RestoreBeforeDeleteKeepsDeleted(t *testing.T) {
	deleted := Replay([]Record{
		{Version: 1, Op: Op{Action: ActionRestore, Indices: []uint32{4}}},
		{Version: 2, Op: Op{Action: ActionDelete, Indices: []uint32{4}}},
	})
	assert.Equal(t, []uint32{4}, deleted.ToSlice())
}
