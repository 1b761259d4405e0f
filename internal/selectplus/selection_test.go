package selectplus_test

import (
	"testing"

	"github.com/m-mizutani/gt"

	"select-plus/internal/selectplus"
)

func TestParseSelections(t *testing.T) {
	testCases := []struct {
		name    string
		raw     any
		keyName string
		want    []selectplus.Selection
		wantErr bool
	}{
		{
			name: "json string with keys",
			raw:  `[{"key":2,"label":"Texas"},{"key":5,"label":"Washington"}]`,
			want: []selectplus.Selection{{Key: int64(2), Label: "Texas"}, {Key: int64(5), Label: "Washington"}},
		},
		{
			name: "value instead of key",
			raw:  `[{"value":"Florida","label":"Florida"}]`,
			want: []selectplus.Selection{{Key: "Florida", Label: "Florida"}},
		},
		{
			name:    "primary key name",
			raw:     `[{"id":7,"label":"New York"}]`,
			keyName: "id",
			want:    []selectplus.Selection{{Key: int64(7), Label: "New York"}},
		},
		{
			name: "decoded array with float keys",
			raw:  []any{map[string]any{"key": float64(3)}, map[string]any{"key": 2.5}},
			want: []selectplus.Selection{{Key: int64(3), Label: ""}, {Key: 2.5, Label: ""}},
		},
		{
			name: "scalars",
			raw:  `["Texas", 4]`,
			want: []selectplus.Selection{{Key: "Texas", Label: "Texas"}, {Key: int64(4), Label: "4"}},
		},
		{name: "empty string", raw: "", want: nil},
		{name: "null", raw: "null", want: nil},
		{name: "not json", raw: "Texas", wantErr: true},
		{name: "object instead of array", raw: `{"key":1}`, wantErr: true},
		{name: "missing key", raw: `[{"label":"Texas"}]`, wantErr: true},
		{name: "unsupported type", raw: 12, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := selectplus.ParseSelections(tc.raw, tc.keyName)
			if tc.wantErr {
				gt.Error(t, err).Is(selectplus.ErrInvalidSelection)
				return
			}
			gt.NoError(t, err).Required()
			gt.Value(t, got).Equal(tc.want)
		})
	}
}

func TestSameKey(t *testing.T) {
	gt.Bool(t, selectplus.SameKey(int64(3), 3)).True()
	gt.Bool(t, selectplus.SameKey(float64(3), int64(3))).True()
	gt.Bool(t, selectplus.SameKey("3", int64(3))).True()
	gt.Bool(t, selectplus.SameKey("CA", "CA")).True()
	gt.Bool(t, selectplus.SameKey("CA", "ca")).False()
	gt.Bool(t, selectplus.SameKey(nil, 0)).False()
	gt.Bool(t, selectplus.SameKey(nil, nil)).True()
}

func TestFieldSetLookup(t *testing.T) {
	main := selectplus.New("States Visited", "statesVisited")
	panel := selectplus.New("States Visited", "statesVisited").ID("panel")
	set := selectplus.NewFieldSet(main, panel, selectplus.New("Region", ""))

	f, ok := set.Lookup("statesVisited", "")
	gt.Bool(t, ok).True()
	gt.Value(t, f).Equal(main)

	f, ok = set.Lookup("statesVisited", "panel")
	gt.Bool(t, ok).True()
	gt.Value(t, f).Equal(panel)

	_, ok = set.Lookup("statesVisited", "other")
	gt.Bool(t, ok).False()

	f, ok = set.Lookup("region", "")
	gt.Bool(t, ok).True()
	gt.Value(t, f.FieldID()).Equal("region")

	ctx := selectplus.WithFieldSet(t.Context(), set)
	got, ok := selectplus.FieldSetFrom(ctx)
	gt.Bool(t, ok).True()
	gt.Array(t, got.Fields()).Length(3)

	_, ok = selectplus.FieldSetFrom(t.Context())
	gt.Bool(t, ok).False()
}

func TestNewRequestSplitsParameters(t *testing.T) {
	req := selectplus.NewRequest(t.Context(), map[string]string{
		"resourceId": "4",
		"fieldId":    "panel",
		"search":     "  tex ",
		"region":     "west",
	})
	gt.Value(t, req.ResourceID).Equal("4")
	gt.Value(t, req.FieldID).Equal("panel")
	gt.Value(t, req.Search).Equal("tex")
	gt.Bool(t, req.Form.Has("region")).True()
	gt.Bool(t, req.Form.Has("search")).False()
	gt.Bool(t, req.Has("search")).True()
	gt.Array(t, req.Form.Keys("missing")).Length(0)
}
