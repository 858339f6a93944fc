package models

import (
	"fmt"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// RecordIDString safely extracts the string ID from a SurrealDB RecordID.
// Returns an error if the ID is not a string type.
func RecordIDString(id surrealmodels.RecordID) (string, error) {
	s, ok := id.ID.(string)
	if !ok {
		return "", fmt.Errorf("unexpected ID type: %T (expected string)", id.ID)
	}
	return s, nil
}

// MustRecordIDString extracts the string ID, falling back to the fmt
// rendering for non-string ids. All records in this schema use string ids.
func MustRecordIDString(id surrealmodels.RecordID) string {
	s, err := RecordIDString(id)
	if err != nil {
		return fmt.Sprintf("%v", id.ID)
	}
	return s
}

// NewRecordID builds a RecordID for the given table and string id.
func NewRecordID(table, id string) surrealmodels.RecordID {
	return surrealmodels.RecordID{Table: table, ID: id}
}
