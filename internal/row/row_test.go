package row

import "testing"

func TestSchemaValidate(t *testing.T) {
	tests := []struct {
		name    string
		schema  *Schema
		wantErr bool
	}{
		{
			name: "valid schema with PK-covering unique index",
			schema: &Schema{
				Name:          "messages",
				Columns:       []Column{{Name: "id", Type: TypeString}, {Name: "roomId", Type: TypeString}},
				PrimaryKey:    []string{"id"},
				UniqueIndexes: [][]string{{"id"}},
			},
		},
		{
			name: "missing primary key",
			schema: &Schema{
				Name:    "messages",
				Columns: []Column{{Name: "id", Type: TypeString}},
			},
			wantErr: true,
		},
		{
			name: "primary key column not declared",
			schema: &Schema{
				Name:          "messages",
				Columns:       []Column{{Name: "roomId", Type: TypeString}},
				PrimaryKey:    []string{"id"},
				UniqueIndexes: [][]string{{"id"}},
			},
			wantErr: true,
		},
		{
			name: "primary key without a covering unique index",
			schema: &Schema{
				Name:       "messages",
				Columns:    []Column{{Name: "id", Type: TypeString}},
				PrimaryKey: []string{"id"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schema.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected an error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestOrderingPKComplete(t *testing.T) {
	ord := Ordering{{Column: "createdAt", Direction: Desc}, {Column: "id", Direction: Asc}}
	if !ord.PKComplete([]string{"id"}) {
		t.Error("expected ordering to cover the primary key")
	}
	if ord.PKComplete([]string{"id", "roomId"}) {
		t.Error("expected ordering not to cover roomId")
	}
}

func TestOrderingWithPK(t *testing.T) {
	ord := Ordering{{Column: "createdAt", Direction: Desc}}
	out := ord.WithPK([]string{"id"})
	if len(out) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(out))
	}
	if out[1].Column != "id" || out[1].Direction != Asc {
		t.Errorf("expected id asc appended, got %+v", out[1])
	}

	// Already-present PK columns are not duplicated.
	ord2 := Ordering{{Column: "id", Direction: Desc}}
	out2 := ord2.WithPK([]string{"id"})
	if len(out2) != 1 {
		t.Fatalf("expected no duplicate PK key, got %+v", out2)
	}
}

func TestOrderingCompareAndSort(t *testing.T) {
	ord := Ordering{{Column: "n", Direction: Asc}}
	rowWith := func(n float64) Row {
		return New([]string{"n"}, map[string]Value{"n": n})
	}
	rows := []Row{rowWith(3), rowWith(1), rowWith(2)}
	SortRows(rows, ord)
	for i, want := range []float64{1, 2, 3} {
		got, _ := rows[i].Get("n")
		if got != want {
			t.Errorf("position %d: want %v, got %v", i, want, got)
		}
	}
}

func TestOrderingCompareNilFirst(t *testing.T) {
	ord := Ordering{{Column: "v", Direction: Asc}}
	a := New([]string{"v"}, map[string]Value{"v": nil})
	b := New([]string{"v"}, map[string]Value{"v": "x"})
	if ord.Compare(a, b) >= 0 {
		t.Error("expected nil to sort before a non-nil value")
	}
}

func TestRowGetMissingColumn(t *testing.T) {
	r := New([]string{"a"}, map[string]Value{"a": 1.0})
	if _, ok := r.Get("b"); ok {
		t.Error("expected Get on a missing column to report false")
	}
}

func TestRowCloneIsIndependent(t *testing.T) {
	r := New([]string{"a"}, map[string]Value{"a": 1.0})
	clone := r.Clone()
	// Row has no exported mutator, but this test is in package row, so it
	// writes the clone's value map directly and checks the original does
	// not see the write.
	got, _ := clone.Get("a")
	if got != 1.0 {
		t.Errorf("expected cloned value 1.0, got %v", got)
	}
	clone.values["a"] = 2.0
	if orig, _ := r.Get("a"); orig != 1.0 {
		t.Errorf("expected the original to keep 1.0 after writing the clone, got %v", orig)
	}
}
