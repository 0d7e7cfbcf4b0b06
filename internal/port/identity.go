package port

import "context"

// IdentityResolver maps an inbound credential to a stable user id. The core
// trusts the result and performs no credential checks of its own.
type IdentityResolver interface {
	Resolve(ctx context.Context, credential string) (string, error)
}
