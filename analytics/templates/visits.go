package templates

import (
	"context"
	"fmt"
	"html"
	"io"

	"github.com/a-h/templ"
)

// periods offered by the fragment's range selector.
var periods = []int{7, 30, 90, 120}

// VisitsFragment renders the daily visits table for htmx swaps.
func VisitsFragment(vm *SeriesViewModel) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w,
			`<section class="visits" id="visits"><header><h2>Visits</h2><p class="period">%s to %s</p><nav class="periods">`,
			html.EscapeString(vm.From), html.EscapeString(vm.To)); err != nil {
			return err
		}
		for _, d := range periods {
			class := ""
			if d == vm.Days {
				class = ` class="active"`
			}
			if _, err := fmt.Fprintf(w,
				`<a%s hx-get="/admin/metrics/fragments/visits?days=%d" hx-target="#visits" hx-swap="outerHTML">%dd</a>`,
				class, d, d); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w,
			`</nav></header><div class="totals"><div><span>%d</span> visits</div><div><span>%d</span> unique sessions</div></div>`,
			vm.TotalVisits, vm.TotalUnique); err != nil {
			return err
		}
		if _, err := io.WriteString(w, `<table><thead><tr><th>Date</th><th>Visits</th><th>Unique</th><th></th></tr></thead><tbody>`); err != nil {
			return err
		}
		for _, p := range vm.Points {
			if _, err := fmt.Fprintf(w,
				`<tr><td>%s</td><td>%d</td><td>%d</td><td><div class="bar" style="width:%d%%"></div></td></tr>`,
				html.EscapeString(p.Date), p.Visits, p.Unique, vm.BarWidth(p)); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</tbody></table></section>`)
		return err
	})
}
