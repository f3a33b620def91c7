package phonelist

import (
	"testing"

	ldap "github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		e    Entry
		want Contact
	}{
		{
			name: "all attributes",
			e: Entry{Attributes: map[string][]string{
				"displayName":     {"Anna Zett", "ignored"},
				"telephoneNumber": {"+49 30 1234"},
				"mail":            {"anna.zett@domain.local"},
				"title":           {"Buchhalterin"},
				"department":      {"Finanzen"},
			}},
			want: Contact{
				Name:       "Anna Zett",
				Phone:      "+49 30 1234",
				Mail:       "anna.zett@domain.local",
				Title:      "Buchhalterin",
				Department: "Finanzen",
			},
		},
		{
			name: "lower case keys",
			e: Entry{Attributes: map[string][]string{
				"displayname":     {"Bert Anton"},
				"telephonenumber": {"222"},
				"DEPARTMENT":      {"IT"},
			}},
			want: Contact{Name: "Bert Anton", Phone: "222", Department: "IT"},
		},
		{
			name: "missing department",
			e: Entry{Attributes: map[string][]string{
				"displayName":     {"Caro"},
				"telephoneNumber": {"333"},
			}},
			want: Contact{Name: "Caro", Phone: "333", Department: UnknownDepartment},
		},
		{
			name: "department without values",
			e:    Entry{Attributes: map[string][]string{"department": {}}},
			want: Contact{Department: UnknownDepartment},
		},
		{
			name: "blank department stays blank",
			e:    Entry{Attributes: map[string][]string{"department": {""}}},
			want: Contact{Department: ""},
		},
		{
			name: "no attributes",
			e:    Entry{},
			want: Contact{Department: UnknownDepartment},
		},
	}
	for _, test := range tests {
		tt := test
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.e))
		})
	}
}

func TestMapToEntry(t *testing.T) {
	ent := ldap.NewEntry("CN=Anna Zett,OU=Users,DC=domain,DC=local", map[string][]string{
		"displayName": {"Anna Zett"},
		"mail":        {"anna.zett@domain.local"},
	})

	got := mapToEntry(ent)

	assert.Equal(t, "CN=Anna Zett,OU=Users,DC=domain,DC=local", got.DN)
	assert.Equal(t, map[string][]string{
		"displayName": {"Anna Zett"},
		"mail":        {"anna.zett@domain.local"},
	}, got.Attributes)
}
