package memory

import (
	"testing"

	"sprintboard/internal/scrum"
	"sprintboard/internal/storage/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) scrum.Store {
		return New(nil)
	})
}
