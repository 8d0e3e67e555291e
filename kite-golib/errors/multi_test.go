package errors

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendNil(t *testing.T) {
	err := New("error")
	errs := Append(nil, err).Slice()
	require.Len(t, errs, 1)
	require.Equal(t, err, errs[0])

	require.Nil(t, Append(nil, nil))
}

func TestAppendFlattens(t *testing.T) {
	err0 := New("error0")
	err1 := New("error1")
	err2 := New("error2")

	var first Errors
	first = Append(first, err0)
	first = Append(first, err1)

	errs := Append(Append(nil, err2), first).Slice()
	require.Equal(t, []error{err2, err0, err1}, errs)
}

func TestCombine(t *testing.T) {
	err0 := New("error0")
	err1 := New("error1")

	require.Equal(t, err0, Combine(err0, nil))
	require.Equal(t, err1, Combine(nil, err1))
	require.Nil(t, Combine(nil, nil))

	errs := Combine(err0, err1).(Errors)
	require.Equal(t, 2, errs.Len())
	require.Equal(t, "error0\nerror1", errs.Error())
}

func TestListIs(t *testing.T) {
	err := Combine(New("view 0 failed"), Wrapf(io.ErrUnexpectedEOF, "view 1"))
	require.True(t, Is(err, io.ErrUnexpectedEOF))
	require.False(t, Is(err, io.EOF))
}

func TestDefer(t *testing.T) {
	closeErr := New("close failed")
	run := func() (err error) {
		defer Defer(&err, func() error { return closeErr })
		return nil
	}
	require.Equal(t, closeErr, run())
}
