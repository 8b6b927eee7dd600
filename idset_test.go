package docdb

import "testing"

func TestIDSet(t *testing.T) {
	s := newIDSet(5, 1)
	deepEqual(t, s.Add(3), true)
	deepEqual(t, s.Add(5), false)
	deepEqual(t, s.Add(ID(1)<<40), true)
	deepEqual(t, s.Len(), 4)
	deepEqual(t, s.IDs(), []ID{1, 3, 5, ID(1) << 40})
	isempty(t, newIDSet().IDs())
}
