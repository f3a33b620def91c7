package phonelist

// noinspection GoRedundantImportAlias
import (
	"context"
	"time"

	ldap "github.com/go-ldap/ldap/v3"
	"github.com/pkg/errors"
	"github.com/shubinmi/util/errs"
	"go.uber.org/zap"
)

// Client runs the phone list query against a directory server. Every call
// to Entries opens its own connection and closes it before returning.
type Client struct {
	query Query
	opt   *opt
}

func New(q Query, fs ...optF) (*Client, error) {
	if err := validQuery(q); err != nil {
		return nil, errors.Wrap(err, "wrong ldap Client query")
	}
	if q.Filter == "" {
		q.Filter = DefaultFilter
	}
	if len(q.Attributes) == 0 {
		q.Attributes = DefaultAttributes
	}
	return &Client{query: q, opt: newOpt(fs...)}, nil
}

// Entries binds, runs the search and returns the entries found.
func (c *Client) Entries(ctx context.Context) (res []Entry, err error) {
	if err = ctx.Err(); err != nil {
		return nil, err
	}
	l, err := c.dial(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "ldap dial")
	}
	defer func() {
		if e := l.Close(); e != nil {
			c.opt.log.Debug("ldap close", zap.Error(e))
		}
	}()
	if err = c.bind(ctx, l); err != nil {
		return nil, errors.Wrap(err, "ldap bind")
	}
	sc := newScanner(c.retriever(l))
	for sc.Next() {
		sc.Scan(EntriesSetter(&res))
	}
	if err = sc.LastErr(); err != nil {
		return nil, errors.Wrap(err, "ldap search")
	}
	c.opt.log.Debug("ldap search done",
		zap.String("base", c.query.BaseDN), zap.Int("entries", len(res)))
	return res, nil
}

func (c *Client) dial(ctx context.Context) (conn, error) {
	type dialed struct {
		l   conn
		err error
	}
	done := make(chan dialed, 1)
	go func() {
		l, err := c.opt.dial(c.query.URL, c.opt)
		done <- dialed{l, err}
	}()
	abandon := func() {
		go func() {
			if d := <-done; d.err == nil {
				_ = d.l.Close()
			}
		}()
	}
	select {
	case <-ctx.Done():
		abandon()
		return nil, ctx.Err()
	case <-time.After(c.opt.timeout):
		abandon()
		return nil, errors.New("dial timeout")
	case d := <-done:
		return d.l, d.err
	}
}

func (c *Client) bind(ctx context.Context, l conn) error {
	done := make(chan error, 1)
	go func() {
		done <- l.Bind(c.query.User, c.query.Pass)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.opt.timeout):
		return errors.New("bind timeout")
	case err := <-done:
		return err
	}
}

// retriever returns one page per call. Without a page size the first
// call returns everything and reports the end.
func (c *Client) retriever(l conn) func() ([]Entry, error) {
	var (
		controls []ldap.Control
		paging   *ldap.ControlPaging
	)
	if c.opt.pageSize > 0 {
		paging = ldap.NewControlPaging(c.opt.pageSize)
		controls = append(controls, paging)
	}
	req := c.searchRequest(controls...)
	return func() ([]Entry, error) {
		sr, err := l.Search(req)
		if err != nil {
			return nil, err
		}
		if len(sr.Referrals) > 0 {
			c.opt.log.Debug("ldap referrals ignored", zap.Strings("referrals", sr.Referrals))
		}
		items := make([]Entry, 0, len(sr.Entries))
		for _, e := range sr.Entries {
			items = append(items, mapToEntry(e))
		}
		if paging == nil {
			return items, errs.NothingToDo{}
		}
		updated := ldap.FindControl(sr.Controls, ldap.ControlTypePaging)
		if ctrl, ok := updated.(*ldap.ControlPaging); ok && ctrl != nil && len(ctrl.Cookie) != 0 {
			paging.SetCookie(ctrl.Cookie)
			return items, nil
		}
		return items, errs.NothingToDo{}
	}
}

func (c *Client) searchRequest(cs ...ldap.Control) *ldap.SearchRequest {
	return ldap.NewSearchRequest(
		c.query.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, int(c.opt.timeout/time.Second), false,
		c.query.Filter,
		c.query.Attributes,
		cs,
	)
}
