package source

import (
	"strings"

	"github.com/syncbase/ivmcore/internal/row"
)

// seekOrdering is row.Ordering annotated with the boolean "ascending in
// this scan" flag actually used to build ORDER BY and the seek predicate —
// distinct from the connection's nominal sort once request-level Reverse
// and a `before` Start are folded in (spec §4.1 step 1, step 4).
type seekOrdering []seekKey

type seekKey struct {
	Column string
	Asc    bool
}

// effectiveOrdering computes the ordering actually driven for one fetch:
// the connection's sort with Reverse applied, and — for basis=Before —
// flipped again, since finding the row immediately preceding a boundary is
// done by reverse-scanning from it (spec §4.1 "for before start, a reverse
// scan is issued").
func effectiveOrdering(sort row.Ordering, reverse bool, basisBefore bool) seekOrdering {
	flip := reverse != basisBefore
	out := make(seekOrdering, len(sort))
	for i, k := range sort {
		asc := k.Direction == row.Asc
		if flip {
			asc = !asc
		}
		out[i] = seekKey{Column: k.Column, Asc: asc}
	}
	return out
}

func (so seekOrdering) orderByClause() string {
	parts := make([]string, len(so))
	for i, k := range so {
		dir := "ASC"
		if !k.Asc {
			dir = "DESC"
		}
		parts[i] = quoteIdent(k.Column) + " " + dir
	}
	return strings.Join(parts, ", ")
}

func (so seekOrdering) toRowOrdering() row.Ordering {
	out := make(row.Ordering, len(so))
	for i, k := range so {
		d := row.Asc
		if !k.Asc {
			d = row.Desc
		}
		out[i] = row.OrderKey{Column: k.Column, Direction: d}
	}
	return out
}

// seekPredicate builds the classic keyset-pagination disjunction:
//
//	(c1 > v1) OR (c1 = v1 AND c2 > v2) OR ... OR (c1=v1 AND ... AND cn REL vn)
//
// where REL is strict (>, <) for every prefix term and, on the final term,
// strict unless inclusive is requested (basis=at).
func seekPredicate(so seekOrdering, start row.Row, inclusive bool) (string, []interface{}) {
	if len(so) == 0 {
		return "", nil
	}
	var disjuncts []string
	var args []interface{}
	for i := range so {
		var clauses []string
		for j := 0; j < i; j++ {
			clauses = append(clauses, quoteIdent(so[j].Column)+" = ?")
			v, _ := start.Get(so[j].Column)
			args = append(args, encodeValue(v))
		}
		op := ">"
		if !so[i].Asc {
			op = "<"
		}
		if i == len(so)-1 && inclusive {
			op += "="
		}
		clauses = append(clauses, quoteIdent(so[i].Column)+" "+op+" ?")
		v, _ := start.Get(so[i].Column)
		args = append(args, encodeValue(v))
		disjuncts = append(disjuncts, "("+strings.Join(clauses, " AND ")+")")
	}
	return strings.Join(disjuncts, " OR "), args
}
