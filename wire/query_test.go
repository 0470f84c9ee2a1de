package wire

import (
	"testing"

	gojson "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guyvdb/docstore/fault"
	"github.com/guyvdb/docstore/query"
)

var fixture = []map[string]any{
	{"name": "he", "age": 30.0, "address": map[string]any{"city": "Paris"}},
	{"name": "she", "age": 25.0, "tags": []any{"admin", "ops"}},
	{"name": "it", "address": map[string]any{"city": "Berlin"}},
	{"age": 41.0},
	{},
}

// transmit sends q through a request encoded as JSON, the way a server sees it.
func transmit(t *testing.T, q QueryInfo) QueryInfo {
	t.Helper()
	req := &Request{Mode: ModeRun, DB: "db", Func: "search"}
	req.SetQuery(q)

	data, err := gojson.Marshal(req)
	require.NoError(t, err)

	got := &Request{}
	require.NoError(t, Unmarshal(data, got))
	return got.Query()
}

func TestRoundTrip(t *testing.T) {
	name := Where("name")
	age := Where("age")
	city := Where("address").Field("city")

	qName := query.Where("name")
	qAge := query.Where("age")
	qCity := query.Where("address", "city")

	tests := []struct {
		name  string
		wire  QueryInfo
		local *query.Predicate
	}{
		{"leaf", name.Eq("he"), qName.Eq("he")},
		{"and", name.Eq("he").And(age.Gt(20)), qName.Eq("he").And(qAge.Gt(20))},
		{"or", name.Eq("he").Or(age.Lt(26)), qName.Eq("he").Or(qAge.Lt(26))},
		{"not", name.Eq("he").Not(), qName.Eq("he").Not()},
		{"double not", age.Exists().Not().Not(), qAge.Exists().Not().Not()},
		{
			"left chain",
			name.Eq("he").Or(name.Eq("she")).And(age.Ge(30)),
			qName.Eq("he").Or(qName.Eq("she")).And(qAge.Ge(30)),
		},
		{
			"composite right operand",
			age.Exists().And(name.Eq("he").Or(name.Eq("it"))),
			qAge.Exists().And(qName.Eq("he").Or(qName.Eq("it"))),
		},
		{
			"negated composite right operand",
			city.Eq("Paris").Or(name.Matches("s.e").And(age.Le(25)).Not()),
			qCity.Eq("Paris").Or(qName.Matches("s.e").And(qAge.Le(25)).Not()),
		},
		{
			"negated chain then leaf",
			name.Exists().Or(age.Gt(40)).Not().Or(city.Search("erl")),
			qName.Exists().Or(qAge.Gt(40)).Not().Or(qCity.Search("erl")),
		},
		{"list index", Where("tags").Index(0).Eq("admin"), query.Where("tags", "0").Eq("admin")},
		{"expr", age.Expr("value > 26 && value < 40"), qAge.Expr("value > 26 && value < 40")},
		{"missing nested field", Where("address", "city", "zip").Exists(), query.Where("address", "city", "zip").Exists()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.wire.Err())
			require.NoError(t, tt.local.Err())

			pred, err := transmit(t, tt.wire).Reconstruct()
			require.NoError(t, err)
			require.NotNil(t, pred)

			for i, doc := range fixture {
				assert.Equal(t, tt.local.Match(doc), pred.Match(doc), "document %d", i)
			}
			assert.True(t, pred.Equal(tt.local), "%s != %s", pred.Key(), tt.local.Key())
		})
	}
}

func TestCombinatorsDoNotMutate(t *testing.T) {
	a := Where("a").Eq(1)
	b := Where("b").Eq(2)

	ab := a.And(b)
	_ = a.Or(b)
	_ = a.Not()

	assert.Equal(t, [][]string{{"a"}}, a.Entry)
	assert.Empty(t, a.Connection)
	assert.Equal(t, [][]string{{"a"}, {"b"}}, ab.Entry)
	assert.Equal(t, []string{ConnAnd}, ab.Connection)
}

func TestLeafLayout(t *testing.T) {
	q := Where("a", "b").Ge(3).Or(Where("c").Exists())
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, q.Entry)
	assert.Equal(t, []string{"__ge__", "exists"}, q.Op)
	assert.Equal(t, []any{3, nil}, q.Args)
	assert.Equal(t, []string{ConnOr}, q.Connection)
}

func TestBuildErrors(t *testing.T) {
	assert.ErrorIs(t, Where().Eq(1).Err(), fault.ErrEmptyPath)
	assert.ErrorIs(t, Where("a").Eq(1).And(Where().Eq(2)).Err(), fault.ErrEmptyPath)

	ab := Where("a").Eq(1).And(Where("b").Eq(2))
	cd := Where("c").Eq(3).Or(Where("d").Eq(4))
	assert.ErrorIs(t, ab.Or(cd).Err(), fault.ErrUnsupportedNesting)
	assert.ErrorIs(t, ab.Or(Where("c").Eq(3).Not()).Err(), fault.ErrUnsupportedNesting)
}

func TestReconstructRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		q    QueryInfo
		err  error
	}{
		{
			"length mismatch",
			QueryInfo{Entry: [][]string{{"a"}, {"b"}}, Op: []string{"__eq__"}, Args: []any{1, 2}, Connection: []string{ConnAnd}},
			fault.ErrInconsistentQuery,
		},
		{
			"binary token without leaf",
			QueryInfo{Entry: [][]string{{"a"}}, Op: []string{"__eq__"}, Args: []any{1}, Connection: []string{ConnOr}},
			fault.ErrMissingLeaf,
		},
		{
			"tokens without leaves",
			QueryInfo{Connection: []string{ConnInvert}},
			fault.ErrMissingLeaf,
		},
		{
			"leftover leaf",
			QueryInfo{Entry: [][]string{{"a"}, {"b"}}, Op: []string{"__eq__", "__eq__"}, Args: []any{1, 2}},
			fault.ErrInconsistentQuery,
		},
		{
			"unknown token",
			QueryInfo{Entry: [][]string{{"a"}, {"b"}}, Op: []string{"__eq__", "__eq__"}, Args: []any{1, 2}, Connection: []string{"__xor__"}},
			fault.ErrUnknownConnection,
		},
		{
			"unknown operator",
			QueryInfo{Entry: [][]string{{"a"}}, Op: []string{"__contains__"}, Args: []any{1}},
			fault.ErrUnknownOperator,
		},
		{
			"empty path",
			QueryInfo{Entry: [][]string{{}}, Op: []string{"__eq__"}, Args: []any{1}},
			fault.ErrEmptyPath,
		},
		{
			"bad regex",
			QueryInfo{Entry: [][]string{{"a"}}, Op: []string{"matches"}, Args: []any{"("}},
			fault.ErrInvalidRegex,
		},
		{
			"regex operand not a string",
			QueryInfo{Entry: [][]string{{"a"}}, Op: []string{"search"}, Args: []any{1.0}},
			fault.ErrInvalidOperand,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred, err := tt.q.Reconstruct()
			assert.Nil(t, pred)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, CodeInvalidQuery, FromError(err).Code)
		})
	}
}

func TestReconstructEmpty(t *testing.T) {
	pred, err := QueryInfo{}.Reconstruct()
	require.NoError(t, err)
	assert.Nil(t, pred)
}

func TestMatching(t *testing.T) {
	q := Matching(map[string]any{"name": "he", "age": 30.0})
	require.NoError(t, q.Err())
	assert.Equal(t, [][]string{{"age"}, {"name"}}, q.Entry)

	pred, err := q.Reconstruct()
	require.NoError(t, err)
	assert.True(t, pred.Match(fixture[0]))
	assert.False(t, pred.Match(fixture[1]))

	assert.True(t, Matching(nil).Empty())
}
