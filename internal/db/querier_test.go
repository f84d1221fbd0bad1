package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestViolationCodes(t *testing.T) {
	fk := fmt.Errorf("insert appointment: %w", &pgconn.PgError{Code: "23503", ConstraintName: "appointments_patient_id_fkey"})
	unique := &pgconn.PgError{Code: "23505", ConstraintName: "appointments_blocking_slot_key"}

	tests := []struct {
		name       string
		err        error
		check      func(error, string) bool
		constraint string
		want       bool
	}{
		{"fk any constraint", fk, IsForeignKeyViolation, "", true},
		{"fk named constraint", fk, IsForeignKeyViolation, "appointments_patient_id_fkey", true},
		{"fk other constraint", fk, IsForeignKeyViolation, "appointments_service_id_fkey", false},
		{"fk is not unique", fk, IsUniqueViolation, "", false},
		{"unique named constraint", unique, IsUniqueViolation, "appointments_blocking_slot_key", true},
		{"unique is not fk", unique, IsForeignKeyViolation, "", false},
		{"plain error", errors.New("boom"), IsForeignKeyViolation, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.check(tt.err, tt.constraint); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
