package vectorstore

import "testing"

func TestBuildMetadataQuery(t *testing.T) {
	tests := []struct {
		name          string
		filter        map[string]any
		wantQuery     string
		wantArgsCount int
		wantErr       bool
	}{
		{
			name:          "Empty filter",
			filter:        map[string]any{},
			wantQuery:     "TRUE",
			wantArgsCount: 0,
		},
		{
			name:          "Single key-value",
			filter:        map[string]any{"source": "doc1"},
			wantQuery:     "metadata @> $1",
			wantArgsCount: 1,
		},
		{
			name: "$and operator",
			filter: map[string]any{
				"$and": []any{
					map[string]any{"a": 1},
					map[string]any{"b": 2},
				},
			},
			wantQuery:     "((metadata @> $1) AND (metadata @> $2))",
			wantArgsCount: 2,
		},
		{
			name: "$or operator",
			filter: map[string]any{
				"$or": []any{
					map[string]any{"a": 1},
					map[string]any{"b": 2},
				},
			},
			wantQuery:     "((metadata @> $1) OR (metadata @> $2))",
			wantArgsCount: 2,
		},
		{
			name: "$not operator",
			filter: map[string]any{
				"$not": map[string]any{"a": 1},
			},
			wantQuery:     "NOT (metadata @> $1)",
			wantArgsCount: 1,
		},
		{
			name: "Nested operators",
			filter: map[string]any{
				"$or": []any{
					map[string]any{"a": 1},
					map[string]any{
						"$and": []any{
							map[string]any{"b": 2},
							map[string]any{"c": 3},
						},
					},
				},
			},
			wantQuery:     "((metadata @> $1) OR (((metadata @> $2) AND (metadata @> $3))))",
			wantArgsCount: 3,
		},
		{
			name: "Implicit AND (multi-key map)",
			filter: map[string]any{
				"a": 1,
				"b": 2,
			},
			wantQuery:     "metadata @> $1 AND metadata @> $2",
			wantArgsCount: 2,
		},
		{
			name: "Error: Value for $or is not a list",
			filter: map[string]any{
				"$or": "invalid",
			},
			wantErr: true,
		},
		{
			name: "Error: Item in $and list is not an object",
			filter: map[string]any{
				"$and": []any{
					"invalid",
				},
			},
			wantErr: true,
		},
		{
			name: "Error: Value for $not is not an object",
			filter: map[string]any{
				"$not": []any{"invalid"},
			},
			wantErr: true,
		},
		{
			name: "Edge Case: Empty list in operator (ignored)",
			filter: map[string]any{
				"$or": []any{},
			},
			wantQuery:     "TRUE",
			wantArgsCount: 0,
		},
		{
			name: "Edge Case: Operator with empty objects",
			filter: map[string]any{
				"$and": []any{
					map[string]any{},
				},
			},
			// recursive call returns TRUE, so we get (TRUE)
			wantQuery:     "((TRUE))",
			wantArgsCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var args []any
			gotQuery, err := buildMetadataQuery(tt.filter, &args)
			if (err != nil) != tt.wantErr {
				t.Errorf("buildMetadataQuery() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if gotQuery != tt.wantQuery {
				t.Errorf("buildMetadataQuery() query = %q, want %q", gotQuery, tt.wantQuery)
			}
			if len(args) != tt.wantArgsCount {
				t.Errorf("buildMetadataQuery() args count = %d, want %d", len(args), tt.wantArgsCount)
			}
		})
	}
}

func TestBuildMetadataQueryContinuesPlaceholders(t *testing.T) {
	args := []any{"embedding"}
	got, err := buildMetadataQuery(map[string]any{"job_id": "j1", "source": "https://a"}, &args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "metadata @> $2 AND metadata @> $3"; got != want {
		t.Errorf("query = %q, want %q", got, want)
	}
	if string(args[1].([]byte)) != `{"job_id":"j1"}` {
		t.Errorf("args[1] = %s", args[1])
	}
}

func TestBuildMetadataQuerySourceContainment(t *testing.T) {
	var args []any
	got, err := buildMetadataQuery(SourceFilter("https://b"), &args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "metadata @> $1"; got != want {
		t.Errorf("query = %q, want %q", got, want)
	}
	if string(args[0].([]byte)) != `{"sources":["https://b"]}` {
		t.Errorf("args[0] = %s", args[0])
	}
}
