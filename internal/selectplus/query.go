package selectplus

// Operator is a condition operator understood by every Repository.
type Operator string

const (
	OpEq       Operator = "eq"
	OpNeq      Operator = "neq"
	OpIn       Operator = "in"
	OpNotIn    Operator = "not_in"
	OpLike     Operator = "like"     // case-insensitive pattern, % and _ wildcards
	OpNotLike  Operator = "not_like" // negated OpLike
	OpContains Operator = "contains" // case-insensitive substring
	OpHas      Operator = "has"      // related rows matching Sub exist
)

type Condition struct {
	Column   string
	Op       Operator
	Value    any
	Values   []any
	Relation string // OpHas only
	Sub      *Query // OpHas only; Entity is empty until the repository resolves Relation
}

type Order struct {
	Column string
	Desc   bool
}

// Query is a backend-neutral select over one entity. Filters and search
// functions build on it; a Repository executes it.
type Query struct {
	Entity     string
	Conditions []Condition
	Orders     []Order
	Limit      int
}

// FilterFunc narrows an option query. Returning nil keeps the query it was
// given, which lets the function mutate it in place.
type FilterFunc func(q *Query, req *Request) *Query

func NewQuery(entity string) *Query {
	return &Query{Entity: entity}
}

func (q *Query) Where(column string, op Operator, value any) *Query {
	q.Conditions = append(q.Conditions, Condition{Column: column, Op: op, Value: value})
	return q
}

func (q *Query) WhereIn(column string, values ...any) *Query {
	q.Conditions = append(q.Conditions, Condition{Column: column, Op: OpIn, Values: values})
	return q
}

func (q *Query) WhereNotIn(column string, values ...any) *Query {
	q.Conditions = append(q.Conditions, Condition{Column: column, Op: OpNotIn, Values: values})
	return q
}

func (q *Query) WhereLike(column, pattern string) *Query {
	return q.Where(column, OpLike, pattern)
}

func (q *Query) WhereNotLike(column, pattern string) *Query {
	return q.Where(column, OpNotLike, pattern)
}

func (q *Query) WhereContains(column, term string) *Query {
	return q.Where(column, OpContains, term)
}

// WhereHas keeps rows with at least one related row, through relation,
// that matches the conditions fn adds.
func (q *Query) WhereHas(relation string, fn func(sub *Query)) *Query {
	sub := &Query{}
	if fn != nil {
		fn(sub)
	}
	q.Conditions = append(q.Conditions, Condition{Op: OpHas, Relation: relation, Sub: sub})
	return q
}

// OrderBy puts a sort ahead of the existing ones, so filter sorts win over
// the default primary-key order.
func (q *Query) OrderBy(column string, desc bool) *Query {
	q.Orders = append([]Order{{Column: column, Desc: desc}}, q.Orders...)
	return q
}

func (q *Query) Take(n int) *Query {
	q.Limit = n
	return q
}

func (q *Query) Clone() *Query {
	c := &Query{Entity: q.Entity, Limit: q.Limit}
	c.Orders = append([]Order(nil), q.Orders...)
	c.Conditions = make([]Condition, len(q.Conditions))
	for i, cond := range q.Conditions {
		cond.Values = append([]any(nil), cond.Values...)
		if cond.Sub != nil {
			cond.Sub = cond.Sub.Clone()
		}
		c.Conditions[i] = cond
	}
	return c
}
