package demo

import (
	"strconv"
	"strings"
	"time"

	"select-plus/internal/resource"
	"select-plus/internal/selectplus"
)

const coffeeTimeout = 5 * time.Second

func regionCodes(region string) []any {
	switch region {
	case "west":
		return []any{"CA", "WA", "OR"}
	case "east":
		return []any{"NY", "FL", "MA"}
	}
	return nil
}

// People is the showcase resource. coffeeURL is the remote menu behind the
// favorite_coffee options.
func People(coffeeURL string) *resource.Definition {
	return resource.New("people", "people", func(req *selectplus.Request) []*selectplus.Field {
		return []*selectplus.Field{
			selectplus.New("State Born In", "state_born_in").
				Options("states").
				AjaxSearchable(selectplus.SearchByLabel(), false).
				MaxSelections(1),

			selectplus.New("State Parents Born In", "state_parents_born_in").
				Options([]string{"Florida", "Louisiana", "Texas"}).
				MaxSelections(2),

			selectplus.New("Favorite State", "favoriteState"),

			statesVisited(),
			statesLivedIn(),
			citiesVisited(),

			selectplus.New("Favorite Coffee", "favorite_coffee").
				Required().
				Options(CoffeeOptions(coffeeURL, coffeeTimeout)).
				FillUsing(storeCoffeeLabels),
		}
	})
}

func statesVisited() *selectplus.Field {
	return selectplus.New("States Visited", "statesVisited").
		UsingIndexLabel(selectplus.RollupFunc(func(rows []selectplus.Row) string {
			if len(rows) == 0 {
				return ""
			}
			value := []string{rowName(rows[0])}
			if len(rows) > 1 {
				value = append(value, "...")
			}
			return strings.Join(value, ", ")
		})).
		OptionsQuery(func(q *selectplus.Query, req *selectplus.Request) *selectplus.Query {
			return q.WhereNotLike("name", "C%")
		}).
		AjaxSearchable(selectplus.SearchUsing(func(q *selectplus.Query, term string, req *selectplus.Request) *selectplus.Query {
			return q.WhereLike("name", "%"+term+"%").Take(5)
		}), true).
		Label(selectplus.LabelFunc(func(row selectplus.Row) string {
			return rowName(row) + ` <span class="text-xs">(` + rowString(row, "code") + `)</span>`
		})).
		Reorderable("order").
		Help("This is a belongsToMany() relationship with a pivot attribute for tracking order, and is ajax searchable.")
}

func statesLivedIn() *selectplus.Field {
	return selectplus.New("States Lived In", "statesLivedIn").
		DependsOn([]string{"only_certain_states"}, func(f *selectplus.Field, req *selectplus.Request, form selectplus.FormSnapshot) {
			if form.String("only_certain_states") != "Yes" {
				f.Help("Showing all available states")
				return
			}
			f.OptionsQuery(func(q *selectplus.Query, req *selectplus.Request) *selectplus.Query {
				return q.WhereLike("name", "L%")
			})
			if req.ResourceID != "" {
				f.Help(`Filtered to states starting with "L" for resource ID: ` + req.ResourceID)
			}
		}).
		AjaxSearchable(selectplus.SearchUsing(func(q *selectplus.Query, term string, req *selectplus.Request) *selectplus.Query {
			return q.WhereLike("name", "%"+term+"%").Take(2)
		}), false).
		Placeholder("Type to search").
		Help("This is a belongsToMany() relationship in the model")
}

func citiesVisited() *selectplus.Field {
	return selectplus.New("Cities Visited", "cities_visited").
		Options("cities").
		AjaxSearchable(selectplus.SearchByLabel(), false).
		DependsOn([]string{"region", "state_born_in"}, func(f *selectplus.Field, req *selectplus.Request, form selectplus.FormSnapshot) {
			region := form.String("region")
			born := numericKeys(form.Keys("state_born_in"))
			if region == "" {
				f.Help("Select a region to filter cities")
				return
			}
			f.OptionsQuery(func(q *selectplus.Query, req *selectplus.Request) *selectplus.Query {
				if codes := regionCodes(region); codes != nil {
					q.WhereHas("state", func(sub *selectplus.Query) {
						sub.WhereIn("code", codes...)
					})
				}
				if len(born) > 0 {
					q.WhereHas("state", func(sub *selectplus.Query) {
						sub.WhereIn("id", born...)
					})
				}
				return q
			})
			help := "Showing cities in " + region + " region"
			if len(born) > 0 {
				help += " related to your birth state"
			}
			f.Help(help)
		}).
		Help("This field depends on both region and state born in")
}

// numericKeys drops keys that are not state ids, such as a stored label.
func numericKeys(keys []any) []any {
	var out []any
	for _, k := range keys {
		switch v := k.(type) {
		case int, int64, float64:
			out = append(out, v)
		case string:
			if id, err := strconv.ParseInt(v, 10, 64); err == nil {
				out = append(out, id)
			}
		}
	}
	return out
}

func rowName(row selectplus.Row) string {
	return rowString(row, "name")
}

func rowString(row selectplus.Row, column string) string {
	s, _ := row[column].(string)
	return s
}
