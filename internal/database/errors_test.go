package database

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ErrorClassPermanent},
		{"serialization", &pq.Error{Code: "40001"}, ErrorClassSerialization},
		{"deadlock", &pq.Error{Code: "40P01"}, ErrorClassDeadlock},
		{"lock not available", &pq.Error{Code: "55P03"}, ErrorClassTransient},
		{"unique violation", &pq.Error{Code: "23505"}, ErrorClassPermanent},
		{"wrapped serialization", fmt.Errorf("reserve card: %w", &pq.Error{Code: "40001"}), ErrorClassSerialization},
		{"no rows", sql.ErrNoRows, ErrorClassPermanent},
		{"sentinel", ErrExhausted, ErrorClassPermanent},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyError(tc.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&pq.Error{Code: "40P01"}))
	assert.False(t, IsRetryable(ErrNotReserved))
	assert.False(t, IsRetryable(errors.New("connection refused")))
}

func TestCodeHelpers(t *testing.T) {
	assert.True(t, IsDuplicateColumn(fmt.Errorf("add column: %w", &pq.Error{Code: "42701"})))
	assert.False(t, IsDuplicateColumn(&pq.Error{Code: "42601"}))
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.True(t, IsForeignKeyViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("23505")))
}
