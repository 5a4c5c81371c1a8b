package service

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleService = `# A comment
[mydb]
host=somehost
port=5433
user=admin

[my ini-style]
host=otherhost
dbname=backoffice
`

func TestParse(t *testing.T) {
	f, err := Parse(strings.NewReader(sampleService))
	require.NoError(t, err)

	assert.Equal(t, []string{"mydb", "my ini-style"}, f.Names())

	s, ok := f.Get("mydb")
	require.True(t, ok)
	host, ok := s.Get("host")
	require.True(t, ok)
	assert.Equal(t, "somehost", host)
	port, ok := s.Get("port")
	require.True(t, ok)
	assert.Equal(t, "5433", port)

	_, ok = f.Get("nope")
	assert.False(t, ok)
}

func TestParseParameterOutsideSection(t *testing.T) {
	_, err := Parse(strings.NewReader("host=somehost\n[mydb]\nport=5433\n"))
	assert.Error(t, err)
}

func TestServiceSet(t *testing.T) {
	s := &Service{Name: "mydb"}
	s.Set("host", "h1")
	s.Set("host", "h2")
	s.Set("port", "5432")
	assert.Equal(t, []Parameter{{"host", "h2"}, {"port", "5432"}}, s.Parameters)
}

func TestAddReplaceRemove(t *testing.T) {
	f := &File{}
	f.Add(&Service{Name: "a", Parameters: []Parameter{{"host", "h1"}}})
	f.Add(&Service{Name: "b", Parameters: []Parameter{{"host", "h2"}}})
	f.Add(&Service{Name: "a", Parameters: []Parameter{{"host", "h3"}}})

	assert.Equal(t, []string{"a", "b"}, f.Names())
	s, _ := f.Get("a")
	host, _ := s.Get("host")
	assert.Equal(t, "h3", host)

	assert.True(t, f.Remove("b"))
	assert.False(t, f.Remove("b"))
	assert.Equal(t, []string{"a"}, f.Names())
}

func TestWriteTo(t *testing.T) {
	f, err := Parse(strings.NewReader(sampleService))
	require.NoError(t, err)

	var sb strings.Builder
	_, err = f.WriteTo(&sb)
	require.NoError(t, err)
	assert.Equal(t, `[mydb]
host=somehost
port=5433
user=admin

[my ini-style]
host=otherhost
dbname=backoffice
`, sb.String())
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pg_service.conf")
	require.NoError(t, os.WriteFile(path, []byte(sampleService), 0o644))

	f, err := ParseFile(path)
	require.NoError(t, err)

	s, _ := f.Get("mydb")
	s.Set("port", "5434")
	require.NoError(t, f.Save())

	reloaded, err := ParseFile(path)
	require.NoError(t, err)
	s, ok := reloaded.Get("mydb")
	require.True(t, ok)
	port, _ := s.Get("port")
	assert.Equal(t, "5434", port)
}

func TestFind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.conf")
	require.NoError(t, os.WriteFile(path, []byte(sampleService), 0o644))

	t.Setenv("PGSERVICEFILE", path)
	got, err := Find()
	require.NoError(t, err)
	assert.Equal(t, path, got)

	t.Setenv("PGSERVICEFILE", "")
	t.Setenv("PGSYSCONFDIR", dir)
	t.Setenv("HOME", filepath.Join(dir, "missing-home"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pg_service.conf"), []byte(sampleService), 0o644))
	got, err = Find()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "pg_service.conf"), got)
}

func TestSortedNames(t *testing.T) {
	f := &File{}
	f.Add(&Service{Name: "b"})
	f.Add(&Service{Name: "a"})
	assert.Equal(t, []string{"a", "b"}, f.SortedNames())
	assert.Equal(t, []string{"b", "a"}, f.Names())
}