package storage

import "testing"

func TestPageNormalize(t *testing.T) {
	testCases := []struct {
		name string
		in   Page
		want Page
	}{
		{"zero gets defaults", Page{}, Page{Limit: DefaultLimit, Offset: 0}},
		{"negative limit", Page{Limit: -5}, Page{Limit: DefaultLimit}},
		{"over cap clamps", Page{Limit: MaxLimit + 1}, Page{Limit: MaxLimit}},
		{"at cap keeps", Page{Limit: MaxLimit}, Page{Limit: MaxLimit}},
		{"negative offset floors", Page{Limit: 10, Offset: -1}, Page{Limit: 10}},
		{"valid passes through", Page{Limit: 25, Offset: 100}, Page{Limit: 25, Offset: 100}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.in.Normalize(); got != tc.want {
				t.Errorf("Normalize(%+v) = %+v, want %+v", tc.in, got, tc.want)
			}
		})
	}
}

func TestQueryPaged(t *testing.T) {
	q := Query{Table: "users", Limit: 999, Offset: 999}
	paged := q.Paged(Page{Limit: 20, Offset: 40})
	if paged.Limit != 20 || paged.Offset != 40 {
		t.Errorf("Paged = limit %d offset %d, want 20/40", paged.Limit, paged.Offset)
	}
	// The receiver is untouched.
	if q.Limit != 999 || q.Offset != 999 {
		t.Error("Paged should not mutate the original query")
	}

	defaulted := q.Paged(Page{})
	if defaulted.Limit != DefaultLimit || defaulted.Offset != 0 {
		t.Errorf("Paged(zero) = limit %d offset %d, want %d/0", defaulted.Limit, defaulted.Offset, DefaultLimit)
	}
}

func TestStatementConstructors(t *testing.T) {
	rec := Record{"email": "a@b.c"}
	ins := Insert("users", rec)
	if ins.Kind != StatementInsert || ins.Table != "users" || ins.Values["email"] != "a@b.c" {
		t.Errorf("Insert = %+v", ins)
	}
	upd := Update("users", rec, Eq{Column: "id", Value: 1})
	if upd.Kind != StatementUpdate || upd.Where == nil {
		t.Errorf("Update = %+v", upd)
	}
	del := Delete("users", Eq{Column: "id", Value: 1})
	if del.Kind != StatementDelete || del.Values != nil {
		t.Errorf("Delete = %+v", del)
	}
}
