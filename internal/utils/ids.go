package utils

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const nanoAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func GenerateBatchID() string {
	return uuid.New().String()
}

func GenerateRequestID() string {
	return uuid.New().String()
}

// GenerateProbeLocalPart returns a local part that should not exist on any mailbox,
// used for catch-all detection.
func GenerateProbeLocalPart() string {
	id, err := gonanoid.Generate(nanoAlphabet, 10)
	if err != nil {
		id = uuid.New().String()[:10]
	}
	return fmt.Sprintf("nonexistent%d%s", time.Now().UnixNano(), id)
}
