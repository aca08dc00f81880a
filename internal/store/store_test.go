package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/kneefit/internal/model"
	"github.com/verte-zerg/kneefit/internal/section"
)

func testSession() *section.Session {
	n := 500
	tr := &model.Trace{XLabel: "Time [s]", YLabel: "R [Ohm]", ZLabel: "Conc [ppm]"}
	for i := 0; i < n; i++ {
		x := float64(i) * 0.5
		tr.X = append(tr.X, x)
		tr.Y = append(tr.Y, 100+20*math.Exp(-x/30))
		tr.C = append(tr.C, float64(i/100)*10)
	}
	fitted := model.NewSection(1, 0, 100)
	fitted.Type = model.FitSingleExp
	fitted.Y0 = model.Float(100)
	fitted.A1 = model.Float(20)
	fitted.Tau1 = model.Float(30)
	fitted.PrevY0 = model.Float(120)
	fitted.Tau90 = model.T90{State: model.T90Value, Value: 69.08}
	fitted.Comment = "10 ppm"

	unresolved := model.NewSection(2, 100, 249.5)
	unresolved.Type = model.FitDoubleExp
	unresolved.Tau90 = model.T90{State: model.T90Unresolved}

	return &section.Session{
		Trace:    tr,
		Knees:    model.Knees{0, 100, 249.5},
		Sections: []*model.Section{fitted, unresolved},
		Selected: model.FitDoubleExp,
	}
}

func TestSaveLoadProject(t *testing.T) {
	for _, codec := range []string{CodecZstd, CodecLZ4, CodecNone} {
		t.Run(codec, func(t *testing.T) {
			ctx := context.Background()
			st, err := Open(filepath.Join(t.TempDir(), "db", "kneefit.db"), codec)
			require.NoError(t, err)
			defer func() { require.NoError(t, st.Close()) }()

			sess := testSession()
			require.NoError(t, st.SaveProject(ctx, "run-1", sess))

			loaded, err := st.LoadProject(ctx, "run-1")
			require.NoError(t, err)
			assert.Equal(t, sess.Trace.X, loaded.Trace.X)
			assert.Equal(t, sess.Trace.Y, loaded.Trace.Y)
			assert.Equal(t, sess.Trace.C, loaded.Trace.C)
			assert.Equal(t, "Conc [ppm]", loaded.Trace.ZLabel)
			assert.Equal(t, model.FitDoubleExp, loaded.Selected)
			assert.Equal(t, sess.Knees, loaded.Knees)

			require.Len(t, loaded.Sections, 2)
			first := loaded.Sections[0]
			assert.Equal(t, 1, first.Index)
			assert.Equal(t, sess.Sections[0].Record(), first.Record())
			assert.Nil(t, first.A2)
			assert.Equal(t, 120.0, *first.PrevY0)

			second := loaded.Sections[1]
			assert.Equal(t, 2, second.Index)
			assert.Equal(t, model.T90Unresolved, second.Tau90.State)
			assert.Nil(t, second.Y0)
		})
	}
}

func TestSaveReplacesProject(t *testing.T) {
	ctx := context.Background()
	st, err := Open(filepath.Join(t.TempDir(), "kneefit.db"), "")
	require.NoError(t, err)
	defer func() { require.NoError(t, st.Close()) }()

	sess := testSession()
	require.NoError(t, st.SaveProject(ctx, "p", sess))
	sess.Sections = sess.Sections[:1]
	require.NoError(t, st.SaveProject(ctx, "p", sess))
	require.NoError(t, st.SaveProject(ctx, "q", sess))

	projects, err := st.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 2)
	for _, p := range projects {
		assert.Equal(t, 1, p.Sections)
		assert.Equal(t, 500, p.Samples)
		assert.Equal(t, CodecZstd, p.Codec)
	}

	require.NoError(t, st.DeleteProject(ctx, "p"))
	require.ErrorIs(t, st.DeleteProject(ctx, "p"), ErrProjectNotFound)
	_, err = st.LoadProject(ctx, "p")
	require.ErrorIs(t, err, ErrProjectNotFound)

	projects, err = st.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "q", projects[0].Name)
}

func TestChecksumMismatch(t *testing.T) {
	ctx := context.Background()
	st, err := Open(filepath.Join(t.TempDir(), "kneefit.db"), CodecNone)
	require.NoError(t, err)
	defer func() { require.NoError(t, st.Close()) }()

	require.NoError(t, st.SaveProject(ctx, "p", testSession()))
	_, err = st.db.ExecContext(ctx, `UPDATE projects SET checksum = 1 WHERE name = 'p'`)
	require.NoError(t, err)

	_, err = st.LoadProject(ctx, "p")
	require.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestSaveProjectValidates(t *testing.T) {
	ctx := context.Background()
	st, err := Open(filepath.Join(t.TempDir(), "kneefit.db"), "")
	require.NoError(t, err)
	defer func() { require.NoError(t, st.Close()) }()

	require.Error(t, st.SaveProject(ctx, "", testSession()))
	require.Error(t, st.SaveProject(ctx, "x", &section.Session{}))
}

func TestCodecs(t *testing.T) {
	raw := packColumns([]float64{1, 2, 3}, []float64{4, 5, 6})
	for _, name := range []string{CodecZstd, CodecLZ4, CodecNone} {
		c, err := CodecByName(name)
		require.NoError(t, err)
		blob, err := c.Compress(raw)
		require.NoError(t, err)
		out, err := c.Decompress(blob, len(raw))
		require.NoError(t, err)
		assert.Equal(t, raw, out, name)
	}
	_, err := CodecByName("gzip")
	require.Error(t, err)

	cols, err := unpackColumns(raw, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 2, 3}, {4, 5, 6}}, cols)
	_, err = unpackColumns(raw[:5], 2)
	require.Error(t, err)
}
