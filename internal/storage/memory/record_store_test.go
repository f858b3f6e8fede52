package memory

import (
	"testing"

	"github.com/zappabad/herdmarket/internal/storage/storagetest"
)

func TestRecordStore(t *testing.T) {
	storagetest.Run(t, NewRecordStore())
}
