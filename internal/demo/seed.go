package demo

import (
	"context"
	"fmt"
	"log"
	"sort"

	"select-plus/internal/store"
)

var stateRows = [][2]string{
	{"Alaska", "AK"}, {"Alabama", "AL"}, {"American Samoa", "AS"}, {"Arizona", "AZ"},
	{"Arkansas", "AR"}, {"California", "CA"}, {"Colorado", "CO"}, {"Connecticut", "CT"},
	{"Delaware", "DE"}, {"District of Columbia", "DC"}, {"Federated States of Micronesia", "FM"},
	{"Florida", "FL"}, {"Georgia", "GA"}, {"Guam", "GU"}, {"Hawaii", "HI"}, {"Idaho", "ID"},
	{"Illinois", "IL"}, {"Indiana", "IN"}, {"Iowa", "IA"}, {"Kansas", "KS"}, {"Kentucky", "KY"},
	{"Louisiana", "LA"}, {"Maine", "ME"}, {"Marshall Islands", "MH"}, {"Maryland", "MD"},
	{"Massachusetts", "MA"}, {"Michigan", "MI"}, {"Minnesota", "MN"}, {"Mississippi", "MS"},
	{"Missouri", "MO"}, {"Montana", "MT"}, {"Nebraska", "NE"}, {"Nevada", "NV"},
	{"New Hampshire", "NH"}, {"New Jersey", "NJ"}, {"New Mexico", "NM"}, {"New York", "NY"},
	{"North Carolina", "NC"}, {"North Dakota", "ND"}, {"Northern Mariana Islands", "MP"},
	{"Ohio", "OH"}, {"Oklahoma", "OK"}, {"Oregon", "OR"}, {"Palau", "PW"}, {"Pennsylvania", "PA"},
	{"Puerto Rico", "PR"}, {"Rhode Island", "RI"}, {"South Carolina", "SC"}, {"South Dakota", "SD"},
	{"Tennessee", "TN"}, {"Texas", "TX"}, {"Utah", "UT"}, {"Vermont", "VT"}, {"Virgin Islands", "VI"},
	{"Virginia", "VA"}, {"Washington", "WA"}, {"West Virginia", "WV"}, {"Wisconsin", "WI"},
	{"Wyoming", "WY"}, {"Armed Forces Africa", "AE"}, {"Armed Forces Americas (except Canada)", "AA"},
	{"Armed Forces Canada", "AE"}, {"Armed Forces Europe", "AE"}, {"Armed Forces Middle East", "AE"},
	{"Armed Forces Pacific", "AP"},
}

// cityRows are keyed by state code.
var cityRows = map[string][]string{
	"CA": {"Los Angeles", "San Francisco", "San Diego"},
	"WA": {"Seattle", "Spokane"},
	"OR": {"Portland", "Eugene"},
	"NY": {"New York City", "Buffalo"},
	"FL": {"Miami", "Orlando", "Tampa"},
	"MA": {"Boston", "Cambridge"},
	"LA": {"New Orleans", "Baton Rouge"},
	"TX": {"Houston", "Austin", "Dallas"},
	"IL": {"Chicago"},
}

var peopleRows = []string{"Ralph Schindler", "Josh Butts"}

// Seed fills empty demo tables. Tables that already hold rows are left alone.
func Seed(ctx context.Context, s *store.Store) error {
	seeded, err := seedTable(ctx, s, "states", len(stateRows), func(i int) map[string]any {
		return map[string]any{"name": stateRows[i][0], "code": stateRows[i][1]}
	})
	if err != nil {
		return fmt.Errorf("seed states: %w", err)
	}
	if seeded {
		log.Printf("Seeded %d states", len(stateRows))
	}

	stateIDs, err := stateIDsByCode(ctx, s)
	if err != nil {
		return fmt.Errorf("load state ids: %w", err)
	}
	var cities []map[string]any
	for _, code := range sortedCodes() {
		for _, name := range cityRows[code] {
			cities = append(cities, map[string]any{"name": name, "state_id": stateIDs[code]})
		}
	}
	if _, err := seedTable(ctx, s, "cities", len(cities), func(i int) map[string]any { return cities[i] }); err != nil {
		return fmt.Errorf("seed cities: %w", err)
	}

	if _, err := seedTable(ctx, s, "people", len(peopleRows), func(i int) map[string]any {
		return map[string]any{"name": peopleRows[i]}
	}); err != nil {
		return fmt.Errorf("seed people: %w", err)
	}
	return nil
}

func seedTable(ctx context.Context, s *store.Store, table string, n int, row func(i int) map[string]any) (bool, error) {
	var count int
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+store.QuoteIdent(table)).Scan(&count); err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	tx, err := s.BeginTx(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	for i := 0; i < n; i++ {
		values := row(i)
		pb := s.Dialect.NewParamBuilder()
		var cols, params string
		for _, col := range []string{"name", "code", "state_id"} {
			v, ok := values[col]
			if !ok {
				continue
			}
			if cols != "" {
				cols += ", "
				params += ", "
			}
			cols += store.QuoteIdent(col)
			params += pb.Add(v)
		}
		sql := fmt.Sprintf("INSERT INTO %s (%s, created_at, updated_at) VALUES (%s, %s, %s)",
			store.QuoteIdent(table), cols, params, s.Dialect.NowExpr(), s.Dialect.NowExpr())
		if _, err := tx.ExecContext(ctx, sql, pb.Params()...); err != nil {
			return false, err
		}
	}
	return true, tx.Commit()
}

// stateIDsByCode maps each code to its first state. Several territories
// share a code.
func stateIDsByCode(ctx context.Context, s *store.Store) (map[string]any, error) {
	rows, err := store.QueryRows(ctx, s.DB, "SELECT id, code FROM states ORDER BY id")
	if err != nil {
		return nil, err
	}
	ids := make(map[string]any, len(rows))
	for _, row := range rows {
		code, _ := row["code"].(string)
		if _, seen := ids[code]; !seen {
			ids[code] = row["id"]
		}
	}
	return ids, nil
}

func sortedCodes() []string {
	codes := make([]string, 0, len(cityRows))
	for code := range cityRows {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
