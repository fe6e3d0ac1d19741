package services

import (
	"context"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contentFS() fstest.MapFS {
	return fstest.MapFS{
		"publication/a.md":    {Data: []byte("---\ntitle: A\nauthors: [Ada]\n---\nAbstract")},
		"publication/b.md":    {Data: []byte("---\ntitle: B\nno closing line")},
		"post/c.md":           {Data: []byte("No front matter")},
		"post/2019/d.MD":      {Data: []byte("+++\ntitle = 'D'\n+++\n")},
		"post/cover.png":      {Data: []byte{0x89, 'P', 'N', 'G'}},
		".drafts/hidden.md":   {Data: []byte("---\ntitle: hidden\n---\n")},
		"publication/_idx.md": {Data: []byte("")},
	}
}

func recordPaths(report *LoadReport) []string {
	var paths []string
	for _, r := range report.Records {
		paths = append(paths, r.Path())
	}
	return paths
}

func TestLoaderFiles(t *testing.T) {
	loader := NewLoader(contentFS(), LoaderConfig{}, nil)

	files, err := loader.Files(context.Background(), ".")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"post/2019/d.MD",
		"post/c.md",
		"publication/_idx.md",
		"publication/a.md",
		"publication/b.md",
	}, files)

	_, err = loader.Files(context.Background(), "../elsewhere")
	assert.Error(t, err)
}

func TestLoaderLoad_FailFast(t *testing.T) {
	loader := NewLoader(contentFS(), LoaderConfig{OnError: FailFast}, nil)

	report, err := loader.Load(context.Background(), ".")
	assert.Nil(t, report)
	require.Error(t, err)
	assert.True(t, IsMalformed(err))

	var mre *MalformedRecordError
	require.ErrorAs(t, err, &mre)
	assert.Equal(t, "publication/b.md", mre.File)
}

func TestLoaderLoad_Skip(t *testing.T) {
	loader := NewLoader(contentFS(), LoaderConfig{OnError: Skip, Concurrency: 2}, nil)

	report, err := loader.Load(context.Background(), ".")
	require.NoError(t, err)

	assert.Equal(t, []string{"post/2019/d.MD", "post/c.md", "publication/_idx.md", "publication/a.md"}, recordPaths(report))
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "publication/b.md", report.Failures[0].Path)
	assert.True(t, IsMalformed(report.Failures[0].Err))

	empty := report.Records[2]
	assert.False(t, empty.HasMetadata())
	assert.Equal(t, "", empty.Body())
}

func TestLoaderLoad_Subtree(t *testing.T) {
	loader := NewLoader(contentFS(), LoaderConfig{}, nil)

	report, err := loader.Load(context.Background(), "post")
	require.NoError(t, err)
	assert.Equal(t, []string{"post/2019/d.MD", "post/c.md"}, recordPaths(report))
	assert.Empty(t, report.Failures)
}

func TestLoaderLoad_Extensions(t *testing.T) {
	fsys := fstest.MapFS{
		"a.md":       {Data: []byte("a")},
		"b.markdown": {Data: []byte("b")},
		"c.txt":      {Data: []byte("c")},
	}
	loader := NewLoader(fsys, LoaderConfig{Extensions: []string{"markdown", ".TXT", " "}}, nil)

	report, err := loader.Load(context.Background(), ".")
	require.NoError(t, err)
	assert.Equal(t, []string{"b.markdown", "c.txt"}, recordPaths(report))
}

func TestLoaderLoad_Cancelled(t *testing.T) {
	loader := NewLoader(contentFS(), LoaderConfig{OnError: Skip}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := loader.Load(ctx, ".")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStore(t *testing.T) {
	fsys := contentFS()
	loader := NewLoader(fsys, LoaderConfig{OnError: Skip}, nil)
	store := NewStore(loader, ".")
	ctx := context.Background()

	records, err := store.Records(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 4)
	require.Len(t, store.Failures(), 1)

	record, ok, err := store.Get(ctx, "./publication/a.md")
	require.NoError(t, err)
	require.True(t, ok)
	title, _ := record.String("title")
	assert.Equal(t, "A", title)

	_, ok, err = store.Get(ctx, "publication/b.md")
	require.NoError(t, err)
	assert.False(t, ok)

	// fix the malformed file and reload it alone
	fsys["publication/b.md"] = &fstest.MapFile{Data: []byte("---\ntitle: B\n---\n")}
	record, err = store.Reload(ctx, "publication/b.md")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Empty(t, store.Failures())

	// break it again
	fsys["publication/a.md"] = &fstest.MapFile{Data: []byte("---\ntitle: A\n")}
	record, err = store.Reload(ctx, "publication/a.md")
	assert.Nil(t, record)
	assert.True(t, IsMalformed(err))
	_, ok, _ = store.Get(ctx, "publication/a.md")
	assert.False(t, ok)

	// remove a file
	delete(fsys, "post/c.md")
	record, err = store.Reload(ctx, "post/c.md")
	assert.NoError(t, err)
	assert.Nil(t, record)

	records, err = store.Records(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 3)

	// a new file only shows up after invalidation or reload
	fsys["post/e.md"] = &fstest.MapFile{Data: []byte("E")}
	records, _ = store.Records(ctx)
	assert.Len(t, records, 3)
	store.Invalidate()
	records, err = store.Records(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 4)
}

// openHookFS calls onOpen before every Open.
type openHookFS struct {
	fsys   fstest.MapFS
	onOpen func(name string)
}

func (h openHookFS) Open(name string) (fs.File, error) {
	if h.onOpen != nil {
		h.onOpen(name)
	}
	return h.fsys.Open(name)
}

func TestStore_ReloadDuringInvalidate(t *testing.T) {
	var store *Store
	armed := false
	fsys := openHookFS{
		fsys: contentFS(),
		onOpen: func(name string) {
			if armed && name == "post/c.md" {
				armed = false
				store.Invalidate()
			}
		},
	}
	store = NewStore(NewLoader(fsys, LoaderConfig{OnError: Skip, Concurrency: 1}, nil), ".")
	ctx := context.Background()

	_, err := store.Records(ctx)
	require.NoError(t, err)

	armed = true
	var record any
	require.NotPanics(t, func() {
		record, err = store.Reload(ctx, "post/c.md")
	})
	require.NoError(t, err)
	assert.NotNil(t, record)

	records, err := store.Records(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 4)
	assert.Len(t, store.Failures(), 1)
}

func TestStoreInTree(t *testing.T) {
	store := NewStore(nil, "post")
	assert.True(t, store.InTree("post/a.md"))
	assert.False(t, store.InTree("publication/a.md"))
	assert.True(t, NewStore(nil, ".").InTree("anything.md"))
}
