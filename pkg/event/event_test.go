package event

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type recorder struct {
	got []int
}

func (r *recorder) OnEvent(ev int) {
	r.got = append(r.got, ev)
}

type selfRemover struct {
	sender *Sender[int]
	calls  int
}

func (r *selfRemover) OnEvent(ev int) {
	r.calls++
	r.sender.RemoveListener(r)
}

func TestSender(t *testing.T) {
	s := &Sender[int]{}
	a := &recorder{}
	b := &recorder{}
	s.AddListener(a)
	s.AddListener(a)
	s.AddListener(b)
	require.Equal(t, 2, s.NumListeners())

	s.SendEvent(1)
	s.RemoveListener(a)
	s.SendEvent(2)

	require.Equal(t, []int{1}, a.got)
	require.Equal(t, []int{1, 2}, b.got)

	r := &selfRemover{sender: s}
	s.AddListener(r)
	s.SendEvent(3)
	s.SendEvent(4)
	require.Equal(t, 1, r.calls)
	require.Equal(t, []int{1, 2, 3, 4}, b.got)
}
