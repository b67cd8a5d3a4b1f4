package setup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ByLCY/quire/layout"
)

const a4Setup = `
paper = "A4"
orientation = "landscape"

[margins]
all = "20mm"
left = "1in"

[header]
enabled = true
depth = "18pt"
text = "${title}"

[body]
font = "sans"
size = "12pt"
line-height = "1.5x"
`

func TestParse(t *testing.T) {
	s, err := Parse([]byte(a4Setup))
	require.NoError(t, err)

	ps := s.Page
	assert.Equal(t, 595.28, ps.PaperWidth)
	assert.Equal(t, 841.89, ps.PaperHeight)
	assert.Equal(t, layout.Landscape, ps.Orientation)
	assert.InDelta(t, 20*layout.MmToPt, ps.Margin.Top, 1e-9)
	assert.InDelta(t, 20*layout.MmToPt, ps.Margin.Right, 1e-9)
	assert.Equal(t, 72.0, ps.Margin.Left)
	assert.True(t, ps.HasHeader)
	assert.Equal(t, 18.0, ps.HeaderDepth)
	assert.Equal(t, "${title}", ps.HeaderText)
	// 未给出 [footer] 时沿用默认页脚
	assert.True(t, ps.HasFooter)
	assert.Equal(t, Default().Page.FooterText, ps.FooterText)

	assert.Equal(t, "sans", s.FontFamily)
	assert.Equal(t, 12.0, s.FontSize)
	assert.Equal(t, layout.LineHeightSpec{Kind: layout.LineHeightFactor, Factor: 1.5}, s.LineHeight)
}

func TestParseDefaults(t *testing.T) {
	s, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), s)
}

func TestParseExplicitSize(t *testing.T) {
	s, err := Parse([]byte(`
paper = "letter"
width = "100mm"
height = "5in"
[footer]
enabled = false
`))
	require.NoError(t, err)
	assert.InDelta(t, 100*layout.MmToPt, s.Page.PaperWidth, 1e-9)
	assert.Equal(t, 360.0, s.Page.PaperHeight)
	assert.False(t, s.Page.HasFooter)
	assert.Zero(t, s.Page.FooterDepth)
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"syntax":      `paper = `,
		"paper":       `paper = "B7"`,
		"orientation": `orientation = "diagonal"`,
		"margin":      "[margins]\ntop = \"-3pt\"",
		"length":      `width = "wide"`,
		"zero size":   `width = "0"`,
		"line height": "[body]\nline-height = \"tall\"",
	}
	for name, data := range cases {
		_, err := Parse([]byte(data))
		assert.Error(t, err, name)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	s, err := Parse([]byte(a4Setup))
	require.NoError(t, err)
	data, err := s.Encode()
	require.NoError(t, err)
	back, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, s, back)
}

func TestStoreMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "setup.toml")
	st, err := Open(path, nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), st.Current())
	assert.Equal(t, path, st.Path())

	mem, err := Open("", nil)
	require.NoError(t, err)
	assert.Equal(t, Default().Page, mem.PageSetup())
	assert.Error(t, mem.Save(Default()))
	assert.Error(t, mem.Watch(context.Background()))
}

func TestStoreSaveNotifies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "setup.toml")
	st, err := Open(path, nil)
	require.NoError(t, err)

	var got []layout.PageSetup
	cancel := st.Subscribe(func(s Settings) { got = append(got, s.Page) })

	next := Default()
	next.Page.Orientation = layout.Landscape
	require.NoError(t, st.Save(next))
	require.Len(t, got, 1)
	assert.Equal(t, layout.Landscape, got[0].Orientation)

	// 内容未变化时不通知
	require.NoError(t, st.Load())
	assert.Len(t, got, 1)

	cancel()
	cancel()
	next.Page.Orientation = layout.Portrait
	require.NoError(t, st.Save(next))
	assert.Len(t, got, 1)

	reopened, err := Open(path, nil)
	require.NoError(t, err)
	assert.Equal(t, next, reopened.Current())
}

func TestStoreLoadKeepsPreviousOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "setup.toml")
	require.NoError(t, os.WriteFile(path, []byte(a4Setup), 0o644))
	st, err := Open(path, nil)
	require.NoError(t, err)
	before := st.Current()

	require.NoError(t, os.WriteFile(path, []byte(`paper = "B7"`), 0o644))
	assert.Error(t, st.Load())
	assert.Equal(t, before, st.Current())

	_, err = Open(path, nil)
	assert.Error(t, err)
}

func TestStoreWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "setup.toml")
	st, err := Open(path, nil)
	require.NoError(t, err)

	changed := make(chan Settings, 8)
	defer st.Subscribe(func(s Settings) { changed <- s })()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, st.Watch(ctx))

	require.NoError(t, os.WriteFile(path, []byte(a4Setup), 0o644))
	select {
	case s := <-changed:
		assert.Equal(t, layout.Landscape, s.Page.Orientation)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not pick up the change")
	}
	require.Eventually(t, func() bool {
		return st.Current().FontFamily == "sans"
	}, 5*time.Second, 10*time.Millisecond)
}
