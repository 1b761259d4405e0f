package demo

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"select-plus/internal/selectplus"
)

type coffee struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

// CoffeeOptions fetches the coffee menu from url on every request and keeps
// the titles containing the search term.
func CoffeeOptions(url string, timeout time.Duration) selectplus.ProviderFunc {
	return func(req *selectplus.Request) (any, error) {
		var menu []coffee
		code, _, errs := fiber.Get(url).Timeout(timeout).Struct(&menu)
		if len(errs) > 0 {
			return nil, fmt.Errorf("fetch coffee menu: %w", errs[0])
		}
		if code != fiber.StatusOK {
			return nil, fmt.Errorf("fetch coffee menu: unexpected status %d", code)
		}

		options := make([]selectplus.SelectionOption, 0, len(menu))
		for _, c := range menu {
			if req.Search != "" && !strings.Contains(c.Title, req.Search) {
				continue
			}
			options = append(options, selectplus.SelectionOption{Value: c.ID, Label: c.Title})
		}
		return options, nil
	}
}

// storeCoffeeLabels writes the chosen titles instead of their ids.
func storeCoffeeLabels(req *selectplus.Request, owner *selectplus.Owner, attribute string, selections []selectplus.Selection) (*selectplus.PersistenceStep, error) {
	labels := make([]string, 0, len(selections))
	for _, s := range selections {
		labels = append(labels, s.Label)
	}
	owner.Attributes[attribute] = labels
	return nil, nil
}
