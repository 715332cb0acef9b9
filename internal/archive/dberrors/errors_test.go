package dberrors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestDuplicateIsConsistency(t *testing.T) {
	err := fmt.Errorf("inserting B07030: %w", ErrDuplicate)

	if !IsDuplicate(err) {
		t.Error("IsDuplicate() = false, want true")
	}
	if !IsConsistency(err) {
		t.Error("IsConsistency() = false, want true")
	}
	if IsConsistency(ErrNotFound) {
		t.Error("IsConsistency(ErrNotFound) = true, want false")
	}
}

func TestBackendError(t *testing.T) {
	driverErr := errors.New("disk I/O error")
	err := Backend("INSERT INTO data VALUES (?)", driverErr)

	if !errors.Is(err, ErrBackend) {
		t.Error("errors.Is(err, ErrBackend) = false, want true")
	}
	if !errors.Is(err, driverErr) {
		t.Error("errors.Is(err, driverErr) = false, want true")
	}
	if !strings.Contains(err.Error(), "INSERT INTO data") {
		t.Errorf("Error() = %q, want statement included", err.Error())
	}

	t.Run("nil error stays nil", func(t *testing.T) {
		if Backend("SELECT 1", nil) != nil {
			t.Error("Backend(stmt, nil) != nil")
		}
	})

	t.Run("no double wrapping", func(t *testing.T) {
		again := Backend("other", err)
		var be *BackendError
		if !errors.As(again, &be) {
			t.Fatal("errors.As() = false")
		}
		if be.Statement != "INSERT INTO data VALUES (?)" {
			t.Errorf("Statement = %q, want original statement", be.Statement)
		}
	})
}
