package phonelist

// DefaultStatic lists the entries maintained by hand because they do not
// exist in the directory.
var DefaultStatic = []Contact{
	{
		Name:       "Max Mustermann",
		Phone:      "111",
		Department: "Abteilung 1",
	},
}

// Augment returns the directory contacts followed by the static ones.
func Augment(contacts, static []Contact) []Contact {
	res := make([]Contact, 0, len(contacts)+len(static))
	res = append(res, contacts...)
	return append(res, static...)
}
