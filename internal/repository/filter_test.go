package repository

import (
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/civic-workflow-api/internal/models"
)

var testColumns = Columns{"id": "r.id", "department": "r.department", "title": "r.title", "name": "r.name"}

func TestFilterClauseComposesPredicates(t *testing.T) {
	filter := Where(Eq("department", "Parks")).
		And(Search("50%_off", "title", "name")...).
		And(In("id", []string{"a", "b"}))

	where, args, err := filter.clause(testColumns, nil)
	require.NoError(t, err)
	assert.Equal(t, "r.department = $1 AND (r.title ILIKE $2 OR r.name ILIKE $3) AND r.id = ANY($4)", where)
	require.Len(t, args, 4)
	assert.Equal(t, "Parks", args[0])
	assert.Equal(t, `%50\%\_off%`, args[1])
	assert.Equal(t, `%50\%\_off%`, args[2])
	assert.Equal(t, pq.Array([]string{"a", "b"}), args[3])
}

func TestFilterClauseContinuesArgNumbering(t *testing.T) {
	where, args, err := Where(Eq("id", "req-1")).clause(testColumns, []interface{}{"x", "y"})
	require.NoError(t, err)
	assert.Equal(t, "r.id = $3", where)
	assert.Len(t, args, 3)
}

func TestFilterClauseEdgeCases(t *testing.T) {
	where, args, err := Filter(nil).clause(testColumns, nil)
	require.NoError(t, err)
	assert.Equal(t, "TRUE", where)
	assert.Empty(t, args)

	where, _, err = Where(In("id", nil), AnyOf()).clause(testColumns, nil)
	require.NoError(t, err)
	assert.Equal(t, "FALSE AND FALSE", where)

	assert.Nil(t, Search("   ", "title"))

	_, _, err = Where(Eq("password_hash", "x")).clause(testColumns, nil)
	require.ErrorIs(t, err, ErrUnknownColumn)

	_, _, err = Where(AnyOf(Eq("id", "1"), Like("1; DROP TABLE users", "x"))).clause(testColumns, nil)
	require.ErrorIs(t, err, ErrUnknownColumn)
}

func TestAssignmentsAreOrderedAndWhitelisted(t *testing.T) {
	settable := map[models.Field]string{models.FieldTitle: "title", models.FieldStatus: "status"}
	set, args, err := assignments(settable, models.Changes{models.FieldTitle: "t", models.FieldStatus: "URGENT"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "status = $1, title = $2", set)
	assert.Equal(t, []interface{}{"URGENT", "t"}, args)

	_, _, err = assignments(settable, models.Changes{models.FieldDepartment: "x"}, nil)
	require.ErrorIs(t, err, ErrUnknownColumn)
}
