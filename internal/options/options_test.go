package options

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type target struct {
	n    int
	name string
}

func TestApply(t *testing.T) {
	tg := &target{}
	err := Apply(tg,
		NoError(func(t *target) { t.name = "a" }),
		New(func(t *target) error {
			t.n = 3
			return nil
		}),
	)
	require.NoError(t, err)
	require.Equal(t, 3, tg.n)
	require.Equal(t, "a", tg.name)
}

func TestApplyStopsAtError(t *testing.T) {
	tg := &target{}
	boom := errors.New("boom")
	err := Apply(tg,
		New(func(*target) error { return boom }),
		NoError(func(t *target) { t.n = 1 }),
	)
	require.ErrorIs(t, err, boom)
	require.Zero(t, tg.n)
}

func TestApplySkipsNil(t *testing.T) {
	tg := &target{}
	var opt Option[*target]
	require.NoError(t, Apply(tg, opt, NoError(func(t *target) { t.n = 2 })))
	require.Equal(t, 2, tg.n)
}
