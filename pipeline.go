package phonelist

import (
	"context"

	"go.uber.org/zap"
)

// Build fetches, normalizes, augments and sorts the contacts of one page.
// A failing directory is logged and treated as an empty one, so the page
// still shows the static entries. An empty mode is FilterIndependent.
func Build(ctx context.Context, dir Directory, static []Contact, log *zap.Logger, mode FilterMode) Page {
	if log == nil {
		log = zap.NewNop()
	}
	var es []Entry
	if dir != nil {
		var err error
		es, err = dir.Entries(ctx)
		if err != nil {
			log.Warn("directory fetch failed, showing static entries only", zap.Error(err))
			es = nil
		}
	}
	if mode == "" {
		mode = FilterIndependent
	}
	cs := Augment(normalizeAll(es), static)
	SortByLastName(cs)
	return Page{
		Contacts:    cs,
		Departments: Departments(cs),
		Filter:      mode,
	}
}
