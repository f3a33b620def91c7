package phonelist

import (
	"context"
	"os"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	ldap "github.com/go-ldap/ldap/v3"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var live bool

func TestMain(m *testing.M) {
	viper.SetConfigFile("./tests_conf.json")
	live = viper.ReadInConfig() == nil
	os.Exit(m.Run())
}

type fakeConn struct {
	bindErr   error
	searchErr error
	pages     []*ldap.SearchResult

	user, pass string
	reqs       []*ldap.SearchRequest
	cookies    [][]byte
	closed     atomic.Int32
}

func (f *fakeConn) Bind(user, pass string) error {
	f.user, f.pass = user, pass
	return f.bindErr
}

func (f *fakeConn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	f.reqs = append(f.reqs, req)
	var cookie []byte
	if c, ok := ldap.FindControl(req.Controls, ldap.ControlTypePaging).(*ldap.ControlPaging); ok {
		cookie = append(cookie, c.Cookie...)
	}
	f.cookies = append(f.cookies, cookie)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	i := len(f.reqs) - 1
	if i >= len(f.pages) {
		return &ldap.SearchResult{}, nil
	}
	return f.pages[i], nil
}

func (f *fakeConn) Close() error {
	f.closed.Add(1)
	return nil
}

func fakeDialer(c *fakeConn) dialFunc {
	return func(string, *opt) (conn, error) { return c, nil }
}

func testQuery() Query {
	return Query{
		URL:    "ldaps://dc.domain.local",
		User:   `domain\user`,
		Pass:   "secret",
		BaseDN: "OU=Users,DC=domain,DC=local",
	}
}

func pagingCookie(cookie string) []ldap.Control {
	return []ldap.Control{&ldap.ControlPaging{PagingSize: 2, Cookie: []byte(cookie)}}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		q       Query
		wantErr bool
	}{
		{name: "success", q: testQuery()},
		{name: "no url", q: Query{User: "u", Pass: "p", BaseDN: "dc=x"}, wantErr: true},
		{name: "empty", q: Query{}, wantErr: true},
	}
	for _, test := range tests {
		tt := test
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.q)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if c.query.Filter != DefaultFilter {
				t.Errorf("New() filter = %q, want default", c.query.Filter)
			}
			if !reflect.DeepEqual(c.query.Attributes, DefaultAttributes) {
				t.Errorf("New() attributes = %v, want %v", c.query.Attributes, DefaultAttributes)
			}
		})
	}
}

func TestClient_Entries(t *testing.T) {
	type fields struct {
		conn     *fakeConn
		pageSize uint32
	}
	tests := []struct {
		name      string
		fields    fields
		wantDNs   []string
		wantCalls int
		wantErr   bool
	}{
		{
			name: "single search",
			fields: fields{conn: &fakeConn{pages: []*ldap.SearchResult{{
				Entries: []*ldap.Entry{
					ldap.NewEntry("cn=a", map[string][]string{"displayName": {"Anna Zett"}}),
					ldap.NewEntry("cn=b", map[string][]string{"displayName": {"Bert Anton"}}),
				},
				Referrals: []string{"ldap://other.domain.local/DC=other"},
			}}}},
			wantDNs:   []string{"cn=a", "cn=b"},
			wantCalls: 1,
		},
		{
			name: "paged search",
			fields: fields{pageSize: 2, conn: &fakeConn{pages: []*ldap.SearchResult{
				{Entries: []*ldap.Entry{ldap.NewEntry("cn=a", nil), ldap.NewEntry("cn=b", nil)}, Controls: pagingCookie("next")},
				{Entries: []*ldap.Entry{ldap.NewEntry("cn=c", nil)}, Controls: pagingCookie("")},
			}}},
			wantDNs:   []string{"cn=a", "cn=b", "cn=c"},
			wantCalls: 2,
		},
		{
			name:      "bind failure",
			fields:    fields{conn: &fakeConn{bindErr: ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("bad creds"))}},
			wantCalls: 0,
			wantErr:   true,
		},
		{
			name:      "search failure",
			fields:    fields{conn: &fakeConn{searchErr: errors.New("boom")}},
			wantCalls: 1,
			wantErr:   true,
		},
	}
	for _, test := range tests {
		tt := test
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(testQuery(), withDialer(fakeDialer(tt.fields.conn)), WithPageSize(tt.fields.pageSize))
			require.NoError(t, err)
			got, err := c.Entries(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("Entries() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			dns := make([]string, 0, len(got))
			for _, e := range got {
				dns = append(dns, e.DN)
			}
			if len(tt.wantDNs) > 0 || len(dns) > 0 {
				assert.Equal(t, tt.wantDNs, dns)
			}
			assert.Len(t, tt.fields.conn.reqs, tt.wantCalls)
			assert.Equal(t, int32(1), tt.fields.conn.closed.Load(), "connection must be closed once")
		})
	}
}

func TestClient_Entries_request(t *testing.T) {
	fc := &fakeConn{}
	c, err := New(testQuery(), withDialer(fakeDialer(fc)), WithTimeout(3*time.Second))
	require.NoError(t, err)

	_, err = c.Entries(context.Background())
	require.NoError(t, err)

	assert.Equal(t, `domain\user`, fc.user)
	assert.Equal(t, "secret", fc.pass)
	require.Len(t, fc.reqs, 1)
	req := fc.reqs[0]
	assert.Equal(t, "OU=Users,DC=domain,DC=local", req.BaseDN)
	assert.Equal(t, ldap.ScopeWholeSubtree, req.Scope)
	assert.Equal(t, DefaultFilter, req.Filter)
	assert.Equal(t, DefaultAttributes, req.Attributes)
	assert.Equal(t, 3, req.TimeLimit)
	assert.Empty(t, req.Controls)
}

func TestClient_Entries_pagingCookie(t *testing.T) {
	fc := &fakeConn{pages: []*ldap.SearchResult{
		{Controls: pagingCookie("c1")},
		{Controls: pagingCookie("c2")},
		{},
	}}
	c, err := New(testQuery(), withDialer(fakeDialer(fc)), WithPageSize(50))
	require.NoError(t, err)

	_, err = c.Entries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][]byte{nil, []byte("c1"), []byte("c2")}, fc.cookies)
}

func TestClient_Entries_dialError(t *testing.T) {
	c, err := New(testQuery(), withDialer(func(string, *opt) (conn, error) {
		return nil, errors.New("connection refused")
	}))
	require.NoError(t, err)

	got, err := c.Entries(context.Background())
	assert.Error(t, err)
	assert.Nil(t, got)
}

func TestClient_Entries_dialTimeout(t *testing.T) {
	fc := &fakeConn{}
	release := make(chan struct{})
	c, err := New(testQuery(), WithTimeout(20*time.Millisecond), withDialer(func(string, *opt) (conn, error) {
		<-release
		return fc, nil
	}))
	require.NoError(t, err)

	_, err = c.Entries(context.Background())
	assert.Error(t, err)
	close(release)
	assert.Eventually(t, func() bool { return fc.closed.Load() == 1 }, time.Second, 5*time.Millisecond,
		"a connection finished after the timeout must be closed")
}

func TestClient_Entries_canceled(t *testing.T) {
	c, err := New(testQuery(), withDialer(fakeDialer(&fakeConn{})))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = c.Entries(ctx)
	assert.Error(t, err)
}

func TestClient_Entries_live(t *testing.T) {
	if !live {
		t.Skip("tests_conf.json not found")
	}
	c, err := New(Query{
		URL:    viper.GetString("ldap.url"),
		User:   viper.GetString("ldap.user"),
		Pass:   viper.GetString("ldap.pass"),
		BaseDN: viper.GetString("ldap.dn"),
	}, WithTimeout(5*time.Second), WithPageSize(500))
	require.NoError(t, err)

	es, err := c.Entries(context.Background())
	require.NoError(t, err)
	for _, e := range es {
		if n := Normalize(e); n.Phone == "" {
			t.Errorf("Entries() returned %s without phone", e.DN)
		}
	}
}
