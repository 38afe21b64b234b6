package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncbase/ivmcore/internal/ast"
	"github.com/syncbase/ivmcore/internal/operator"
)

func messagesWithRoomEdge() *ast.Query {
	room := &ast.RelatedQuery{
		Name: "room",
		Query: &ast.Query{
			Table: "rooms",
			Where: &ast.SimpleCondition{
				Left:  &ast.ColumnOperand{Table: "messages", Name: "roomId"},
				Op:    ast.OpEq,
				Right: &ast.ColumnOperand{Table: "rooms", Name: "id"},
			},
		},
	}
	return &ast.Query{Table: "messages", Related: []*ast.RelatedQuery{room}}
}

func TestCollectEdgesInner(t *testing.T) {
	q := messagesWithRoomEdge()
	edges, err := collectEdges(q)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	e := edges[0]
	assert.Equal(t, "roomId", e.ParentCol)
	assert.Equal(t, "id", e.ChildCol)
	assert.Equal(t, operator.Inner, e.Kind, "want Inner kind absent a correlated condition")
}

func TestCollectEdgesSemi(t *testing.T) {
	q := messagesWithRoomEdge()
	q.Where = &ast.CorrelatedSubqueryCondition{Related: q.Related[0], Negated: false}

	edges, err := collectEdges(q)
	require.NoError(t, err)
	require.NotEmpty(t, edges)
	assert.Equal(t, operator.Semi, edges[0].Kind, "want Semi kind for a non-negated correlated condition")
}

func TestCollectEdgesAnti(t *testing.T) {
	q := messagesWithRoomEdge()
	q.Where = &ast.CorrelatedSubqueryCondition{Related: q.Related[0], Negated: true}

	edges, err := collectEdges(q)
	require.NoError(t, err)
	require.NotEmpty(t, edges)
	assert.Equal(t, operator.Anti, edges[0].Kind, "want Anti kind for a negated correlated condition")
}

func TestCollectEdgesMissingJoinColumnsErrors(t *testing.T) {
	q := &ast.Query{
		Table: "messages",
		Related: []*ast.RelatedQuery{
			{Name: "room", Query: &ast.Query{Table: "rooms"}},
		},
	}
	_, err := collectEdges(q)
	require.Error(t, err, "expected an error when no equi-join predicate can be inferred")
}

func TestCollectEdgesRecursesNestedRelations(t *testing.T) {
	grandchild := &ast.RelatedQuery{
		Name: "author",
		Query: &ast.Query{
			Table: "users",
			Where: &ast.SimpleCondition{
				Left:  &ast.ColumnOperand{Table: "rooms", Name: "ownerId"},
				Op:    ast.OpEq,
				Right: &ast.ColumnOperand{Table: "users", Name: "id"},
			},
		},
	}
	q := messagesWithRoomEdge()
	q.Related[0].Query.Related = []*ast.RelatedQuery{grandchild}

	edges, err := collectEdges(q)
	require.NoError(t, err)
	assert.Len(t, edges, 2, "want 2 edges across two levels of relation")
}

func TestStripCorrelatedDropsSubqueryConjunct(t *testing.T) {
	rel := &ast.RelatedQuery{Name: "room"}
	cond := &ast.CompoundCondition{
		Op: ast.BoolAnd,
		Conditions: []ast.Condition{
			&ast.SimpleCondition{Left: &ast.ColumnOperand{Name: "roomId"}, Op: ast.OpEq, Right: &ast.LiteralOperand{Value: "room-1"}},
			&ast.CorrelatedSubqueryCondition{Related: rel},
		},
	}
	got := stripCorrelated(cond)
	assert.False(t, hasCorrelated(got), "expected stripCorrelated to remove the correlated conjunct")
	assert.IsType(t, &ast.SimpleCondition{}, got, "want the remaining simple condition alone")
}

func TestStripCorrelatedDropsWholeORCondition(t *testing.T) {
	rel := &ast.RelatedQuery{Name: "room"}
	cond := &ast.CompoundCondition{
		Op: ast.BoolOr,
		Conditions: []ast.Condition{
			&ast.SimpleCondition{Left: &ast.ColumnOperand{Name: "roomId"}, Op: ast.OpEq, Right: &ast.LiteralOperand{Value: "room-1"}},
			&ast.CorrelatedSubqueryCondition{Related: rel},
		},
	}
	got := stripCorrelated(cond)
	assert.Nil(t, got, "want nil for an OR mixing a correlated subquery")
}
