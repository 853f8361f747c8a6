package catalog

import "github.com/google/uuid"

func newUUID() string {
	return uuid.NewString()
}

// validID rejects ids that could never match a stored row.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
