package selectplus_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/gt"

	"select-plus/internal/selectplus"
)

func runStep(t *testing.T, fx *fixture, step *selectplus.PersistenceStep, owner *selectplus.Owner) error {
	t.Helper()
	return step.Run(context.Background(), fx.repo, owner)
}

func TestFillReorderableManyToMany(t *testing.T) {
	fx := newFixture(t)
	field := selectplus.New("States Visited", "statesVisited").Reorderable("order")
	owner := fx.newPerson()

	step, err := fx.resolver.Fill(fx.request(nil), field, owner, `[{"key":2},{"key":5},{"key":1}]`)
	gt.NoError(t, err).Required()
	gt.Bool(t, step.RunAfterOwnerSaved()).True()

	// the owner has not been written yet
	gt.Value(t, runStep(t, fx, step, owner)).NotNil()

	owner.Key = int64(10)
	gt.NoError(t, runStep(t, fx, step, owner)).Required()

	order := map[int64]any{}
	for _, p := range fx.repo.Pivot("state_user_visited") {
		gt.Value(t, p["person_id"]).Equal(any(int64(10)))
		order[p["state_id"].(int64)] = p["order"]
	}
	gt.Value(t, order).Equal(map[int64]any{2: 1, 5: 2, 1: 3})
}

func TestFillNonReorderableSyncsKeysOnly(t *testing.T) {
	fx := newFixture(t)
	field := selectplus.New("States Visited", "statesVisited")
	owner := fx.newPerson()
	owner.Key = int64(10)

	step, err := fx.resolver.Fill(fx.request(nil), field, owner, `[{"key":2},{"key":5},{"key":1}]`)
	gt.NoError(t, err).Required()
	gt.NoError(t, runStep(t, fx, step, owner)).Required()

	pivots := fx.repo.Pivot("state_user_visited")
	gt.Array(t, pivots).Length(3)
	var keys []int64
	for _, p := range pivots {
		gt.Value(t, len(p)).Equal(2)
		keys = append(keys, p["state_id"].(int64))
	}
	gt.Value(t, keys).Equal([]int64{2, 5, 1})
}

func TestFillSyncReplacesPreviousSelections(t *testing.T) {
	fx := newFixture(t)
	field := selectplus.New("States Lived In", "statesLivedIn")
	owner := fx.newPerson()
	owner.Key = int64(3)

	for _, payload := range []string{`[{"key":1},{"key":2}]`, `[{"key":2},{"key":7}]`} {
		step, err := fx.resolver.Fill(fx.request(nil), field, owner, payload)
		gt.NoError(t, err).Required()
		gt.NoError(t, runStep(t, fx, step, owner)).Required()
	}

	pivots := fx.repo.Pivot("state_user_lived_in")
	gt.Array(t, pivots).Length(2)
	for _, p := range pivots {
		gt.Value(t, p["created_at"]).NotNil()
		gt.Value(t, p["updated_at"]).NotNil()
	}

	step, err := fx.resolver.Fill(fx.request(nil), field, owner, `[]`)
	gt.NoError(t, err).Required()
	gt.NoError(t, runStep(t, fx, step, owner)).Required()
	gt.Array(t, fx.repo.Pivot("state_user_lived_in")).Length(0)
}

func TestFillMorphToMany(t *testing.T) {
	fx := newFixture(t)
	field := selectplus.New("Tags", "tags")
	owner := fx.newPerson()
	owner.Key = int64(1)

	step, err := fx.resolver.Fill(fx.request(nil), field, owner, []any{map[string]any{"key": 2.0, "label": "go"}})
	gt.NoError(t, err).Required()
	gt.NoError(t, runStep(t, fx, step, owner)).Required()

	pivots := fx.repo.Pivot("taggables")
	gt.Array(t, pivots).Length(1)
	gt.Value(t, pivots[0]["taggable_type"]).Equal(any("people"))
	gt.Value(t, pivots[0]["tag_id"]).Equal(any(int64(2)))
}

func TestFillBelongsTo(t *testing.T) {
	fx := newFixture(t)
	field := selectplus.New("Favorite State", "favoriteState")
	owner := fx.newPerson()

	step, err := fx.resolver.Fill(fx.request(nil), field, owner, `[{"key":4,"label":"Florida"}]`)
	gt.NoError(t, err).Required()
	gt.Bool(t, step.RunAfterOwnerSaved()).False()
	gt.NoError(t, runStep(t, fx, step, owner)).Required()
	gt.Value(t, owner.Attributes["favorite_state_id"]).Equal(any(int64(4)))

	step, err = fx.resolver.Fill(fx.request(nil), field, owner, `[]`)
	gt.NoError(t, err).Required()
	gt.NoError(t, runStep(t, fx, step, owner)).Required()
	v, ok := owner.Attributes["favorite_state_id"]
	gt.Bool(t, ok).True()
	gt.Value(t, v).Nil()

	_, err = fx.resolver.Fill(fx.request(nil), field, owner, `[{"key":1},{"key":2}]`)
	gt.Error(t, err).Is(selectplus.ErrTooManySelections)

	step, err = fx.resolver.Fill(fx.request(nil), field, owner, `[{"key":99}]`)
	gt.NoError(t, err).Required()
	gt.Error(t, runStep(t, fx, step, owner)).Is(selectplus.ErrInvalidSelection)
}

func TestFillMorphTo(t *testing.T) {
	fx := newFixture(t)
	field := selectplus.New("Subject", "subject")
	owner := &selectplus.Owner{Entity: fx.registry.GetEntity("notes"), Attributes: selectplus.Row{}}

	step, err := fx.resolver.Fill(fx.request(nil), field, owner, `[{"key":2}]`)
	gt.NoError(t, err).Required()
	gt.NoError(t, runStep(t, fx, step, owner)).Required()
	gt.Value(t, owner.Attributes["subject_id"]).Equal(any(int64(2)))
	gt.Value(t, owner.Attributes["subject_type"]).Equal(any("states"))

	step, err = fx.resolver.Fill(fx.request(nil), field, owner, ``)
	gt.NoError(t, err).Required()
	gt.NoError(t, runStep(t, fx, step, owner)).Required()
	gt.Value(t, owner.Attributes["subject_id"]).Nil()
	gt.Value(t, owner.Attributes["subject_type"]).Nil()
}

func TestFillColumn(t *testing.T) {
	testCases := []struct {
		name      string
		field     *selectplus.Field
		payload   string
		attribute string
		want      any
		wantErr   error
	}{
		{
			name:      "entity source into text column stores labels",
			field:     selectplus.New("State Born In", "state_born_in").Options("states"),
			payload:   `[{"key":1},{"key":2}]`,
			attribute: "state_born_in",
			want:      "Louisiana,Texas",
		},
		{
			name:      "entity source into json column stores keys",
			field:     selectplus.New("Cities Visited", "cities_visited").Options("cities"),
			payload:   `[{"key":3},{"key":1}]`,
			attribute: "cities_visited",
			want:      []any{int64(3), int64(1)},
		},
		{
			name:      "plain list with single selection stores raw value",
			field:     selectplus.New("Home State", "home_state").Options([]string{"Florida", "Texas"}).MaxSelections(1),
			payload:   `[{"key":"Florida","label":"Florida"}]`,
			attribute: "home_state",
			want:      "Florida",
		},
		{
			name:      "plain list stores array",
			field:     selectplus.New("State Parents Born In", "state_parents_born_in").Options([]string{"Florida", "Louisiana", "Texas"}).MaxSelections(2),
			payload:   `[{"value":"Texas","label":"Texas"},{"value":"Florida","label":"Florida"}]`,
			attribute: "state_parents_born_in",
			want:      []any{"Texas", "Florida"},
		},
		{
			name:      "zero selections clears",
			field:     selectplus.New("State Born In", "state_born_in").Options("states").MaxSelections(1),
			payload:   `[]`,
			attribute: "state_born_in",
			want:      nil,
		},
		{
			name:    "value outside the list",
			field:   selectplus.New("Home State", "home_state").Options([]string{"Florida"}).MaxSelections(1),
			payload: `[{"key":"Ohio"}]`,
			wantErr: selectplus.ErrInvalidSelection,
		},
		{
			name:    "unknown entity key",
			field:   selectplus.New("Cities Visited", "cities_visited").Options("cities"),
			payload: `[{"key":70}]`,
			wantErr: selectplus.ErrInvalidSelection,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newFixture(t)
			owner := fx.newPerson()

			step, err := fx.resolver.Fill(fx.request(nil), tc.field, owner, tc.payload)
			gt.NoError(t, err).Required()
			gt.Bool(t, step.RunAfterOwnerSaved()).False()

			err = runStep(t, fx, step, owner)
			if tc.wantErr != nil {
				gt.Error(t, err).Is(tc.wantErr)
				return
			}
			gt.NoError(t, err).Required()
			gt.Value(t, owner.Attributes[tc.attribute]).Equal(tc.want)
		})
	}
}

func TestFillRejectsCommaInJoinedLabel(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.repo.Insert("states", selectplus.Row{"name": "Washington, D.C.", "code": "DC"})
	gt.NoError(t, err).Required()
	field := selectplus.New("Only Certain States", "only_certain_states").Options("states")
	owner := fx.newPerson()

	step, err := fx.resolver.Fill(fx.request(nil), field, owner, `[{"key":8},{"key":2}]`)
	gt.NoError(t, err).Required()
	gt.Error(t, runStep(t, fx, step, owner)).Is(selectplus.ErrInvalidSelection)
	gt.Value(t, owner.Attributes["only_certain_states"]).Nil()

	step, err = fx.resolver.Fill(fx.request(nil), field, owner, `[{"key":5},{"key":2}]`)
	gt.NoError(t, err).Required()
	gt.NoError(t, runStep(t, fx, step, owner)).Required()
	gt.Value(t, owner.Attributes["only_certain_states"]).Equal(any("Washington,Texas"))

	display, err := fx.resolver.ResolveDisplay(fx.request(nil), field, owner)
	gt.NoError(t, err).Required()
	gt.Value(t, labels(display.Value)).Equal([]string{"Washington", "Texas"})
}

func TestFillTooManySelections(t *testing.T) {
	fx := newFixture(t)
	field := selectplus.New("State Parents Born In", "state_parents_born_in").
		Options([]string{"Florida", "Louisiana", "Texas"}).
		MaxSelections(2)

	_, err := fx.resolver.Fill(fx.request(nil), field, fx.newPerson(), `["Florida","Louisiana","Texas"]`)
	gt.Error(t, err).Is(selectplus.ErrTooManySelections)
}

func TestFillUsingOverride(t *testing.T) {
	fx := newFixture(t)
	var gotAttribute string
	field := selectplus.New("Favorite Coffee", "favorite_coffee").
		Required().
		Options(func(req *selectplus.Request) (any, error) { return []string{}, nil }).
		FillUsing(func(req *selectplus.Request, owner *selectplus.Owner, attribute string, selections []selectplus.Selection) (*selectplus.PersistenceStep, error) {
			gotAttribute = attribute
			names := make([]string, len(selections))
			for i, s := range selections {
				names[i] = s.Label
			}
			owner.Attributes[attribute] = names
			return nil, nil
		})
	owner := fx.newPerson()

	step, err := fx.resolver.Fill(fx.request(nil), field, owner, `[{"value":1,"label":"Black"},{"value":2,"label":"Latte"}]`)
	gt.NoError(t, err).Required()
	gt.Bool(t, step == nil).True()
	gt.Value(t, gotAttribute).Equal("favorite_coffee")
	gt.Value(t, owner.Attributes["favorite_coffee"]).Equal(any([]string{"Black", "Latte"}))
}

func TestFillOverrideBypassesRelationHandling(t *testing.T) {
	fx := newFixture(t)
	called := false
	field := selectplus.New("States Visited", "statesVisited").
		FillUsing(func(req *selectplus.Request, owner *selectplus.Owner, attribute string, selections []selectplus.Selection) (*selectplus.PersistenceStep, error) {
			called = true
			return nil, nil
		})

	step, err := fx.resolver.Fill(fx.request(nil), field, fx.newPerson(), `[{"key":1},{"key":2},{"key":3}]`)
	gt.NoError(t, err).Required()
	gt.Bool(t, step == nil).True()
	gt.Bool(t, called).True()
	gt.Array(t, fx.repo.Pivot("state_user_visited")).Length(0)
}

func TestFillRejectsMisconfiguredField(t *testing.T) {
	fx := newFixture(t)
	field := selectplus.New("Region", "region")

	_, err := fx.resolver.Fill(fx.request(nil), field, fx.newPerson(), `[]`)
	gt.Error(t, err).Is(selectplus.ErrMissingOptionsSource)
}
