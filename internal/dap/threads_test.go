package dap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReconcile(t *testing.T) {
	tests := []struct {
		name        string
		stopped     []int
		requested   int
		want        int
		substituted bool
	}{
		{name: "nothing stopped forwards unchanged", stopped: nil, requested: 1, want: 1},
		{name: "nothing stopped keeps arbitrary id", stopped: nil, requested: 42, want: 42},
		{name: "placeholder maps to first stopped", stopped: []int{7}, requested: 1, want: 7},
		{name: "stopped member is kept", stopped: []int{7, 9}, requested: 9, want: 9},
		{name: "unknown id falls back to first stopped", stopped: []int{7, 9}, requested: 3, want: 7, substituted: true},
		{name: "insertion order decides first", stopped: []int{9, 7}, requested: 3, want: 9, substituted: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewThreadSet()
			for _, id := range tt.stopped {
				s.Add(id)
			}

			got, substituted := s.Reconcile(tt.requested)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.substituted, substituted)
		})
	}
}

func TestThreadSet_AddRemove(t *testing.T) {
	s := NewThreadSet()
	s.Add(7)
	s.Add(9)
	s.Add(7)

	assert.Equal(t, []int{7, 9}, s.IDs())
	assert.True(t, s.Contains(9))

	s.Remove(7)
	assert.Equal(t, []int{9}, s.IDs())

	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.False(t, s.Contains(9))
}
