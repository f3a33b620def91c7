package phonelist

import (
	"crypto/tls"
	"net"
	"time"

	ldap "github.com/go-ldap/ldap/v3"
	"github.com/pkg/errors"
	"github.com/shubinmi/util/errs"
	"go.uber.org/zap"
)

// conn is the part of *ldap.Conn the client needs.
type conn interface {
	Bind(username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Close() error
}

type dialFunc func(url string, o *opt) (conn, error)

type opt struct {
	timeout  time.Duration
	pageSize uint32
	debug    bool
	tls      *tls.Config
	log      *zap.Logger
	dial     dialFunc
}

type optF func(*opt)

func newOpt(fs ...optF) *opt {
	o := &opt{
		timeout: 5 * time.Second,
		log:     zap.NewNop(),
		dial:    dialLDAP,
	}
	for _, f := range fs {
		f(o)
	}
	return o
}

func validQuery(q Query) (err error) {
	if q.URL == "" {
		err = errs.Merge(err, errors.New("url is required"))
	}
	if q.User == "" {
		err = errs.Merge(err, errors.New("user is required"))
	}
	if q.Pass == "" {
		err = errs.Merge(err, errors.New("pass is required"))
	}
	if q.BaseDN == "" {
		err = errs.Merge(err, errors.New("base dn is required"))
	}
	return
}

func WithTimeout(t time.Duration) func(*opt) {
	return func(o *opt) {
		o.timeout = t
	}
}

// WithPageSize turns on the paged results control. Zero means one
// unpaged search.
func WithPageSize(size uint32) func(*opt) {
	return func(o *opt) {
		o.pageSize = size
	}
}

func WithTLSConfig(c *tls.Config) func(*opt) {
	return func(o *opt) {
		o.tls = c
	}
}

// WithDebug dumps the LDAP packets of every connection.
func WithDebug(on bool) func(*opt) {
	return func(o *opt) {
		o.debug = on
	}
}

func WithLogger(l *zap.Logger) func(*opt) {
	return func(o *opt) {
		if l != nil {
			o.log = l
		}
	}
}

func withDialer(d dialFunc) func(*opt) {
	return func(o *opt) {
		o.dial = d
	}
}

// dialLDAP opens a protocol v3 connection. go-ldap never chases
// referrals, it only reports them in the search result.
func dialLDAP(url string, o *opt) (conn, error) {
	dialOpts := []ldap.DialOpt{ldap.DialWithDialer(&net.Dialer{Timeout: o.timeout})}
	if o.tls != nil {
		dialOpts = append(dialOpts, ldap.DialWithTLSConfig(o.tls))
	}
	l, err := ldap.DialURL(url, dialOpts...)
	if err != nil {
		return nil, err
	}
	l.SetTimeout(o.timeout)
	if o.debug {
		l.Debug.Enable(true)
	}
	return l, nil
}
