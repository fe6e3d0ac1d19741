package services

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"hugo-content/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestSchema(t *testing.T) *models.Schema {
	t.Helper()
	schema, err := LoadSchema("testdata/schema.yml")
	require.NoError(t, err)
	return schema
}

func mustParse(t *testing.T, path, content string) *models.ContentRecord {
	t.Helper()
	record, err := ParseRecord(path, []byte(content), ParseOptions{})
	require.NoError(t, err)
	return record
}

func TestLoadSchema(t *testing.T) {
	schema := loadTestSchema(t)
	require.Len(t, schema.Collections, 3)
	assert.Equal(t, "publication", schema.Collections[0].Name)
	assert.Equal(t, "publication", schema.Collections[0].Fields[0].Default)
	assert.True(t, schema.Collections[0].Fields[1].Required)
}

func TestLoadSchema_Invalid(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadSchema(filepath.Join(dir, "missing.yml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yml")
	require.NoError(t, os.WriteFile(bad, []byte("collections:\n  - name: a\n    fields:\n      - {name: x, widget: color}\n"), 0644))
	_, err = LoadSchema(bad)
	assert.ErrorContains(t, err, "unknown widget")

	dup := filepath.Join(dir, "dup.yml")
	require.NoError(t, os.WriteFile(dup, []byte("collections:\n  - name: a\n  - name: a\n"), 0644))
	_, err = LoadSchema(dup)
	assert.ErrorContains(t, err, "duplicate collection")
}

func TestCollectionFor(t *testing.T) {
	schema := loadTestSchema(t)

	tests := map[string]string{
		"publication/engines.md": "publication",
		"post/2019/hello.md":     "post",
		"about.md":               "pages",
		"postscript/x.md":        "pages",
		"publication/cover.png":  "",
	}
	for path, want := range tests {
		c := CollectionFor(schema, path)
		if want == "" {
			assert.Nil(t, c, path)
			continue
		}
		require.NotNil(t, c, path)
		assert.Equal(t, want, c.Name, path)
	}

	assert.Nil(t, CollectionFor(nil, "post/a.md"))
}

func TestCheckRecord(t *testing.T) {
	schema := loadTestSchema(t)
	publication := CollectionFor(schema, "publication/a.md")

	valid := mustParse(t, "publication/a.md", publicationSource)
	assert.Empty(t, CheckRecord(valid, publication))

	broken := mustParse(t, "publication/b.md", "---\ntitle: \"\"\nauthors: Ada Lovelace\nyear: \"2019\"\n---\n")
	violations := CheckRecord(broken, publication)
	assert.ElementsMatch(t, []Violation{
		{Field: "type", Reason: "required field is missing"},
		{Field: "title", Reason: "required field is missing"},
		{Field: "authors", Reason: "expected list, got string"},
		{Field: "year", Reason: "expected number, got string"},
	}, violations)

	post := CollectionFor(schema, "post/a.md")
	emptyBody := mustParse(t, "post/a.md", "---\ntitle: Hi\ndate: 2021-03-04\ndraft: \"no\"\n---\n\n")
	assert.ElementsMatch(t, []Violation{
		{Field: "draft", Reason: "expected boolean, got string"},
		{Field: "body", Reason: "body is empty"},
	}, CheckRecord(emptyBody, post))

	badDate := mustParse(t, "post/b.md", "---\ntitle: Hi\ndate: next tuesday\n---\ntext")
	assert.Equal(t, []Violation{{Field: "date", Reason: "expected datetime, got string"}}, CheckRecord(badDate, post))

	assert.Nil(t, CheckRecord(valid, nil))
}

func TestCheckRecord_TOMLDates(t *testing.T) {
	schema := loadTestSchema(t)
	post := CollectionFor(schema, "post/a.md")

	record := mustParse(t, "post/a.md", "+++\ntitle = 'Hi'\ndate = 2021-03-04\n+++\nBody")
	assert.Empty(t, CheckRecord(record, post))
}

func TestApplyDefaults(t *testing.T) {
	schema := loadTestSchema(t)
	publication := CollectionFor(schema, "publication/a.md")

	record := mustParse(t, "publication/a.md", "---\ntitle: T\n---\nB")
	filled := ApplyDefaults(record, publication)

	assert.Equal(t, []string{"title", "type", "layout"}, filled.Keys())
	layout, _ := filled.String("layout")
	assert.Equal(t, "pub", layout)
	assert.Equal(t, "B", filled.Body())

	// the input record is untouched
	assert.Equal(t, []string{"title"}, record.Keys())

	plain := mustParse(t, "publication/c.md", "no metadata")
	assert.Same(t, plain, ApplyDefaults(plain, publication))
}

func TestGenerateRecord(t *testing.T) {
	schema := loadTestSchema(t)
	post := CollectionFor(schema, "post/a.md")
	now := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

	record := GenerateRecord("post/new.md", post, map[string]any{
		"title": "Hello",
		"body":  "Write here.",
		"tags":  []any{"x"},
	}, now)

	assert.Equal(t, models.FormatYAML, record.Format())
	assert.Equal(t, []string{"title", "author", "date", "draft", "tags"}, record.Keys())
	assert.Equal(t, map[string]any{
		"title":  "Hello",
		"author": "",
		"date":   "2024-05-06T07:08:09Z",
		"draft":  false,
		"tags":   []any{"x"},
	}, record.Metadata())
	assert.Equal(t, "Write here.", record.Body())
	assert.Empty(t, CheckRecord(record, post))
}
