package tasks

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"unicode"

	"github.com/assemble/assemble/pkg/task"
)

// Report lists the tasks of a project and its subprojects, grouped by task
// group. Ungrouped tasks are only listed when All is set.
type Report struct {
	All bool
}

// Description implements task.Describer.
func (r *Report) Description() string {
	return "Lists the tasks of this project and its subprojects"
}

// Action implements task.Task.
func (r *Report) Action(_ context.Context, e *task.Executable, p task.Project) error {
	var infos []task.Info
	for _, id := range p.AllTaskIDs() {
		info, err := p.Describe(id)
		if err != nil {
			return err
		}
		infos = append(infos, info)
	}
	WriteReport(e.Stdout(), p.ID().String(), infos, r.All)
	return nil
}

// WriteReport renders the report for infos.
func WriteReport(w io.Writer, title string, infos []task.Info, all bool) {
	header := "Tasks runnable from project " + title
	fmt.Fprintln(w, header)
	fmt.Fprintln(w, strings.Repeat("-", len(header)))

	groups := make(map[string][]task.Info)
	for _, info := range infos {
		if info.Group == "" && !all {
			continue
		}
		groups[info.Group] = append(groups[info.Group], info)
	}

	names := make([]string, 0, len(groups))
	for g := range groups {
		names = append(names, g)
	}
	slices.Sort(names)
	// ungrouped tasks go last
	if len(names) > 0 && names[0] == "" {
		names = append(names[1:], "")
	}

	for _, g := range names {
		title := "Other tasks"
		if g != "" {
			title = capitalize(g) + " tasks"
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, title)
		fmt.Fprintln(w, strings.Repeat("-", len(title)))
		for _, info := range groups[g] {
			if info.Description == "" {
				fmt.Fprintln(w, info.ID.String())
				continue
			}
			fmt.Fprintf(w, "%s - %s\n", info.ID, info.Description)
		}
	}
}

func capitalize(s string) string {
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
