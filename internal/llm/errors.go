package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/hyperjump/cardex/internal/models"
	"github.com/openai/openai-go"
)

// Classify maps an OpenAI SDK error onto the models sentinels so callers can
// use errors.Is. Unrecognized errors are returned unchanged.
func Classify(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %w", models.ErrRateLimited, err)
		case apiErr.StatusCode == http.StatusRequestTimeout, apiErr.StatusCode >= 500:
			return fmt.Errorf("%w: %w", models.ErrServiceUnavailable, err)
		default:
			return err
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", models.ErrServiceUnavailable, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", models.ErrServiceUnavailable, err)
	}
	return err
}

// Transient reports whether err is a rate-limit or availability failure.
func Transient(err error) bool {
	return errors.Is(err, models.ErrRateLimited) || errors.Is(err, models.ErrServiceUnavailable)
}
