package phonelist

// noinspection GoRedundantImportAlias
import (
	ldap "github.com/go-ldap/ldap/v3"
)

func mapToEntry(ent *ldap.Entry) Entry {
	e := Entry{
		DN:         ent.DN,
		Attributes: make(map[string][]string, len(ent.Attributes)),
	}
	for _, attr := range ent.Attributes {
		e.Attributes[attr.Name] = attr.Values
	}
	return e
}

// Normalize maps a raw entry to a Contact. Absent attributes become empty
// strings, an absent department becomes UnknownDepartment.
func Normalize(e Entry) (c Contact) {
	c.Name, _ = e.First(attrName)
	c.Phone, _ = e.First(attrPhone)
	c.Mail, _ = e.First(attrMail)
	c.Title, _ = e.First(attrTitle)
	dep, ok := e.First(attrDepartment)
	if !ok {
		dep = UnknownDepartment
	}
	c.Department = dep
	return
}

func normalizeAll(es []Entry) []Contact {
	cs := make([]Contact, 0, len(es))
	for _, e := range es {
		cs = append(cs, Normalize(e))
	}
	return cs
}
