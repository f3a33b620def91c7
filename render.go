package phonelist

import (
	"embed"
	"html/template"
	"io"

	"github.com/pkg/errors"
)

//go:embed templates/phonelist.html
var templates embed.FS

var pageTmpl = template.Must(template.ParseFS(templates, "templates/phonelist.html"))

type pageView struct {
	Page
	Combined bool
}

// Render writes the phone list document. All contact fields are escaped
// by html/template for the context they appear in.
func Render(w io.Writer, p Page) error {
	v := pageView{Page: p, Combined: p.Filter == FilterCombined}
	if err := pageTmpl.Execute(w, v); err != nil {
		return errors.Wrap(err, "render phone list")
	}
	return nil
}
