// Package generation wraps the external ephemeris/AI service that produces
// reading content. The service is a black box: it receives (userID, date)
// and returns a fully populated reading payload.
package generation

import (
	"context"

	"github.com/chandrahoro/reading-service/internal/model"
)

// Generator produces a reading for a user and date, or fails with
// model.ErrGenerationFailed.
type Generator interface {
	Generate(ctx context.Context, userID, date string) (*model.Reading, error)
}
