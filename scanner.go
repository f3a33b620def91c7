package phonelist

import (
	"github.com/shubinmi/util/errs"
)

// ResultsScanner walks a paged search one page at a time.
type ResultsScanner interface {
	Next() bool
	LastErr() error
	Scan(setter func(res []Entry))
}

func EntriesSetter(es *[]Entry) func(res []Entry) {
	return func(res []Entry) {
		*es = append(*es, res...)
	}
}

type scanner struct {
	result    []Entry
	retriever func() ([]Entry, error)
	lastErr   error
	done      bool
}

func newScanner(retriever func() ([]Entry, error)) ResultsScanner {
	return &scanner{retriever: retriever}
}

func (s scanner) LastErr() error {
	return s.lastErr
}

// Next fetches the next page. The retriever reports the last page with
// errs.NothingToDo; that page is still scanned.
func (s *scanner) Next() bool {
	if s.done || s.lastErr != nil {
		return false
	}
	es, err := s.retriever()
	s.result = es
	if err != nil && !errs.IsNothingToDo(err) {
		s.lastErr = err
		s.result = nil
	}
	if err != nil && errs.IsNothingToDo(err) {
		s.done = true
	}
	return s.lastErr == nil
}

func (s scanner) Scan(loader func(res []Entry)) {
	loader(s.result)
}
