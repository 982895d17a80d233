// Package credentials resolves the payment provider API key of a clean air zone.
package credentials

import (
	"context"
	"fmt"

	"github.com/frahmantamala/caz-payments/internal"
)

var ErrUnknownZone = internal.NewValidationError("no payment provider credentials for clean air zone", internal.ErrCodeUnknownZone)

type Resolver interface {
	APIKey(ctx context.Context, cleanAirZoneID string) (string, error)
}

// StaticResolver serves keys loaded from configuration.
type StaticResolver struct {
	keys map[string]string
}

func NewStaticResolver(zones map[string]internal.ZoneConfig) *StaticResolver {
	keys := make(map[string]string, len(zones))
	for id, zone := range zones {
		keys[id] = zone.APIKey
	}
	return &StaticResolver{keys: keys}
}

func (r *StaticResolver) APIKey(_ context.Context, cleanAirZoneID string) (string, error) {
	key, ok := r.keys[cleanAirZoneID]
	if !ok || key == "" {
		return "", fmt.Errorf("%w: %s", ErrUnknownZone, cleanAirZoneID)
	}
	return key, nil
}
