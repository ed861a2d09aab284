package postgres

import (
	"testing"
	"time"

	"github.com/vietddude/cogcall/internal/core/domain"
	"github.com/vietddude/cogcall/internal/infra/storage"
)

func TestWhereClause(t *testing.T) {
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		q     storage.RecordQuery
		where string
		args  int
	}{
		{"empty", storage.RecordQuery{}, "", 0},
		{"since", storage.RecordQuery{Since: since}, "WHERE created_at >= $1", 1},
		{"kind", storage.RecordQuery{Kind: domain.KindSentiment}, "WHERE kind = $1", 1},
		{
			"all",
			storage.RecordQuery{Since: since, Until: since.Add(time.Hour), Kind: domain.KindTranslate},
			"WHERE created_at >= $1 AND created_at < $2 AND kind = $3",
			3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args := whereClause(tt.q)
			if where != tt.where {
				t.Errorf("where = %q, want %q", where, tt.where)
			}
			if len(args) != tt.args {
				t.Errorf("args = %d, want %d", len(args), tt.args)
			}
		})
	}
}
