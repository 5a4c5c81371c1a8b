package hba

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleHba = `# TYPE  DATABASE        USER            ADDRESS                 METHOD

# "local" is for Unix domain socket connections only
local   all             all                                     trust
# IPv4 local connections:
host    all             all             127.0.0.1/32            ident map=omicron
host    all             all             127.0.0.1 255.255.255.255 trust
host    replication     all             ::1/128                 trust
`

func TestParseRecordLocal(t *testing.T) {
	r, err := ParseRecord("local   all             all                                     trust")
	require.NoError(t, err)
	assert.Equal(t, "local", r.ConnType)
	assert.Equal(t, "all", r.Database)
	assert.Equal(t, "all", r.User)
	assert.Equal(t, "trust", r.Method)

	_, err = r.GetAddress()
	require.Error(t, err)
	var fieldErr *FieldError
	require.ErrorAs(t, err, &fieldErr)
	assert.Equal(t, "address", fieldErr.Field)
}

func TestParseRecordHost(t *testing.T) {
	r, err := ParseRecord("host    all             all             127.0.0.1/32            trust")
	require.NoError(t, err)
	addr, err := r.GetAddress()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1/32", addr)
	_, err = r.GetNetmask()
	assert.Error(t, err)
}

func TestParseRecordNetmask(t *testing.T) {
	r, err := ParseRecord("host all all 127.0.0.1 255.255.255.255 trust")
	require.NoError(t, err)
	addr, err := r.GetAddress()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", addr)
	mask, err := r.GetNetmask()
	require.NoError(t, err)
	assert.Equal(t, "255.255.255.255", mask)
	assert.Equal(t, "trust", r.Method)
}

func TestParseRecordOptionsAndComment(t *testing.T) {
	r, err := ParseRecord(`host all all 127.0.0.1/32 ldap ldapserver=ldap.example.net ldapbasedn="dc=example, dc=net" # staff only`)
	require.NoError(t, err)
	assert.Equal(t, "ldap", r.Method)
	v, ok := r.Option("ldapserver")
	require.True(t, ok)
	assert.Equal(t, "ldap.example.net", v)
	v, ok = r.Option("ldapbasedn")
	require.True(t, ok)
	assert.Equal(t, "dc=example, dc=net", v)
	assert.Equal(t, "staff only", r.Comment)
}

func TestParseRecordErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"unknown conntype", "socket all all trust"},
		{"too few fields", "local all"},
		{"missing method", "host all all"},
		{"bare option", "local all all trust bogus-option"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRecord(tt.line)
			assert.Error(t, err)
		})
	}
}

func TestRecordString(t *testing.T) {
	r := NewRecord("local", "all", "all", "trust")
	wanted := "local   all             all                                     trust"
	assert.Equal(t, wanted, r.String())

	h := NewHostRecord("host", "replication", "standby", "192.168.0.0/24", "md5")
	assert.Equal(t, "host    replication     standby         192.168.0.0/24          md5", h.String())
}

func TestRecordStringOptions(t *testing.T) {
	r := NewHostRecord("host", "all", "all", "127.0.0.1/32", "ldap")
	r.Options = []Option{{Name: "ldapserver", Value: "ldap.example.net"}}
	assert.True(t, strings.HasSuffix(r.String(), ` ldap ldapserver="ldap.example.net"`))
}

func TestRecordMatches(t *testing.T) {
	r := NewHostRecord("host", "app", "alice", "10.0.0.0/8", "md5")

	ok, err := r.Matches(map[string]string{"user": "alice", "database": "app"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Matches(map[string]string{"user": "bob"})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = r.Matches(map[string]string{"color": "blue"})
	assert.Error(t, err)

	// Absent fields never match.
	local := NewRecord("local", "all", "all", "trust")
	ok, err = local.Matches(map[string]string{"address": "10.0.0.0/8"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseFileRoundTrip(t *testing.T) {
	f, err := Parse(strings.NewReader(sampleHba))
	require.NoError(t, err)
	assert.Len(t, f.Records(), 4)

	var sb strings.Builder
	_, err = f.WriteTo(&sb)
	require.NoError(t, err)
	out := sb.String()
	assert.Contains(t, out, "# IPv4 local connections:\n")
	assert.Contains(t, out, "local   all             all                                     trust\n")
}

func TestParseBadRecordLine(t *testing.T) {
	_, err := Parse(strings.NewReader("local all all trust\nbroken line here\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "#2")
}

func TestRemove(t *testing.T) {
	f, err := Parse(strings.NewReader(sampleHba))
	require.NoError(t, err)

	changed := f.Remove(func(r *Record) bool { return r.Database == "replication" })
	assert.True(t, changed)
	assert.Len(t, f.Records(), 3)

	changed = f.Remove(func(r *Record) bool { return r.Database == "replication" })
	assert.False(t, changed)
}

func TestRemoveMatching(t *testing.T) {
	f, err := Parse(strings.NewReader(sampleHba))
	require.NoError(t, err)

	changed, err := f.RemoveMatching(map[string]string{"conntype": "local"})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Len(t, f.Records(), 3)

	_, err = f.RemoveMatching(map[string]string{})
	assert.Error(t, err)
	_, err = f.RemoveMatching(map[string]string{"nope": "x"})
	assert.Error(t, err)
}

func TestMerge(t *testing.T) {
	base, err := Parse(strings.NewReader(
		"local   all  all  trust\n" +
			"host    all  all  127.0.0.1/32  trust\n"))
	require.NoError(t, err)

	other, err := Parse(strings.NewReader(
		"# tightened up\n" +
			"host    all  all  127.0.0.1/32  scram-sha-256\n" +
			"host    all  all  10.0.0.0/8    md5\n"))
	require.NoError(t, err)

	changed := base.Merge(other)
	assert.True(t, changed)

	records := base.Records()
	require.Len(t, records, 3)

	// The matching record was replaced in place, its new comment above it.
	var sb strings.Builder
	_, err = base.WriteTo(&sb)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(sb.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], "# tightened up")
	assert.Contains(t, lines[2], "scram-sha-256")
	assert.Contains(t, lines[3], "10.0.0.0/8")

	// Merging the same file again changes nothing.
	other2, err := Parse(strings.NewReader(
		"host    all  all  127.0.0.1/32  scram-sha-256\n"))
	require.NoError(t, err)
	assert.False(t, base.Merge(other2))
}
