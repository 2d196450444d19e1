package identify

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Fallback answers from primary and switches to secondary when primary
// fails or returns no candidates.
type Fallback struct {
	primary   Identifier
	secondary Identifier
	logger    *zap.Logger
}

func NewFallback(primary, secondary Identifier, logger *zap.Logger) *Fallback {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fallback{primary: primary, secondary: secondary, logger: logger}
}

// GetName reports the primary backend.
func (f *Fallback) GetName() string {
	return f.primary.GetName()
}

func (f *Fallback) IdentifyText(ctx context.Context, text string) (Response, error) {
	resp, err := f.primary.IdentifyText(ctx, text)
	if f.usable(ctx, resp, err) {
		return resp, nil
	}
	if ctx.Err() != nil {
		return Response{}, ctx.Err()
	}
	return f.secondary.IdentifyText(ctx, text)
}

func (f *Fallback) IdentifyImage(ctx context.Context, data []byte, mime string) (Response, error) {
	resp, err := f.primary.IdentifyImage(ctx, data, mime)
	if f.usable(ctx, resp, err) {
		return resp, nil
	}
	if ctx.Err() != nil {
		return Response{}, ctx.Err()
	}
	return f.secondary.IdentifyImage(ctx, data, mime)
}

func (f *Fallback) usable(ctx context.Context, resp Response, err error) bool {
	switch {
	case err != nil && !errors.Is(err, ctx.Err()):
		f.logger.Warn("identifier failed, using fallback",
			zap.String("backend", f.primary.GetName()),
			zap.Error(err))
		return false
	case err != nil:
		return false
	case len(resp.Candidates) == 0:
		f.logger.Info("identifier returned no candidates, using fallback",
			zap.String("backend", f.primary.GetName()))
		return false
	}
	return true
}

func (f *Fallback) Close() error {
	return errors.Join(f.primary.Close(), f.secondary.Close())
}
