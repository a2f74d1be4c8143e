package workflows

import (
	"context"
	"errors"

	"go.temporal.io/sdk/temporal"

	"github.com/samirrijal/geodash/internal/core/domain"
	"github.com/samirrijal/geodash/internal/core/usecases"
)

// MediaActivities exposes the media processor steps as Temporal activities.
type MediaActivities struct {
	Processor *usecases.MediaProcessor
}

// MarkProcessing flags the upload as being worked on.
func (a *MediaActivities) MarkProcessing(ctx context.Context, mediaID string) error {
	return classify(a.Processor.MarkProcessing(ctx, mediaID))
}

// RenderDerivative builds one rendition and returns its object key.
func (a *MediaActivities) RenderDerivative(ctx context.Context, job domain.MediaJob, name string) (string, error) {
	key, err := a.Processor.RenderDerivative(ctx, &job, name)
	return key, classify(err)
}

// Attach records the derivative keys and marks the upload ready.
func (a *MediaActivities) Attach(ctx context.Context, mediaID string, keys map[string]string) error {
	return classify(a.Processor.Attach(ctx, mediaID, keys))
}

// DeleteObjects removes stored derivatives (saga compensation).
func (a *MediaActivities) DeleteObjects(ctx context.Context, keys []string) error {
	return a.Processor.DeleteObjects(ctx, keys)
}

// MarkFailed records why processing stopped.
func (a *MediaActivities) MarkFailed(ctx context.Context, mediaID, reason string) error {
	return classify(a.Processor.MarkFailed(ctx, mediaID, reason))
}

// classify stops retries for errors that cannot heal on their own.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, permanent := range []error{domain.ErrNotFound, domain.ErrUnsupportedMedia, domain.ErrInvalidInput, domain.ErrTooLarge} {
		if errors.Is(err, permanent) {
			return temporal.NewNonRetryableApplicationError(err.Error(), permanent.Error(), err)
		}
	}
	return err
}
