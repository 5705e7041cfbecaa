package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/scribe/internal/health"
	"github.com/MrWong99/scribe/internal/resilience"
	"github.com/MrWong99/scribe/pkg/storage/supabase"
)

// bucketLister is implemented by stores that can prove connectivity
// cheaply, such as [supabase.Client].
type bucketLister interface {
	ListBuckets(ctx context.Context) ([]supabase.Bucket, error)
}

// checkers returns the readiness checks for the configured subsystems. Only
// the transcriber is required; storage and history degrade single endpoints.
func (a *App) checkers() []health.Checker {
	checks := []health.Checker{{
		Name:  "transcriber",
		Check: a.checkTranscriber,
	}}
	if bl, ok := a.store.(bucketLister); ok {
		checks = append(checks, health.Checker{
			Name:     "storage",
			Optional: true,
			Check: func(ctx context.Context) error {
				_, err := bl.ListBuckets(ctx)
				return err
			},
		})
	}
	return append(checks, health.Checker{
		Name:     "history",
		Optional: true,
		Check:    a.history.Ping,
	})
}

// checkTranscriber fails when every transcriber backend has an open circuit
// breaker.
func (a *App) checkTranscriber(context.Context) error {
	states := a.transcriber.States()
	var open []string
	for _, name := range a.transcriber.Names() {
		if states[name] != resilience.StateOpen {
			return nil
		}
		open = append(open, name)
	}
	if len(open) == 0 {
		return errors.New("no transcriber configured")
	}
	return fmt.Errorf("circuit open for %s", strings.Join(open, ", "))
}
