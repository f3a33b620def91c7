package phonelist

import (
	"context"
	"strings"
)

// UnknownDepartment is used when a directory entry carries no department.
const UnknownDepartment = "Unbekannt"

const (
	// DefaultFilter selects enabled user objects that have a phone number.
	DefaultFilter = "(&(objectClass=user)(!(userAccountControl:1.2.840.113556.1.4.803:=2))(telephoneNumber=*))"

	attrName       = "displayName"
	attrPhone      = "telephoneNumber"
	attrMail       = "mail"
	attrDepartment = "department"
	attrTitle      = "title"
)

// DefaultAttributes is the attribute projection requested per entry.
var DefaultAttributes = []string{attrName, attrPhone, attrMail, attrDepartment, attrTitle}

type Contact struct {
	Name       string `json:"name" yaml:"name" mapstructure:"name"`
	Phone      string `json:"tel" yaml:"tel" mapstructure:"tel"`
	Mail       string `json:"mail" yaml:"mail" mapstructure:"mail"`
	Title      string `json:"title" yaml:"title" mapstructure:"title"`
	Department string `json:"department" yaml:"department" mapstructure:"department"`
}

// Entry is a raw directory entry: attribute name to values.
type Entry struct {
	DN         string
	Attributes map[string][]string
}

// First returns the first value of the attribute. Names are compared
// case-insensitively, the way directory servers treat them.
func (e Entry) First(attr string) (string, bool) {
	if vs, ok := e.Attributes[attr]; ok {
		if len(vs) == 0 {
			return "", false
		}
		return vs[0], true
	}
	for name, vs := range e.Attributes {
		if !strings.EqualFold(name, attr) {
			continue
		}
		if len(vs) == 0 {
			return "", false
		}
		return vs[0], true
	}
	return "", false
}

// Query describes the single directory search behind the page.
type Query struct {
	URL        string
	User       string
	Pass       string
	BaseDN     string
	Filter     string
	Attributes []string
}

// Directory yields the raw entries for one page build.
type Directory interface {
	Entries(ctx context.Context) ([]Entry, error)
}

// DirectoryFunc adapts a function to Directory.
type DirectoryFunc func(ctx context.Context) ([]Entry, error)

func (f DirectoryFunc) Entries(ctx context.Context) ([]Entry, error) {
	return f(ctx)
}

type FilterMode string

const (
	// FilterIndependent keeps department buttons and search as two
	// listeners; the last event decides row visibility.
	FilterIndependent FilterMode = "independent"
	// FilterCombined shows a row only when it matches both the active
	// department and the search term.
	FilterCombined FilterMode = "combined"
)

type Page struct {
	Contacts    []Contact
	Departments []string
	Filter      FilterMode
}
