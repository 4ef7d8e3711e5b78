// Package device identifies browsers across visits and keeps each account's registry
// of approved devices.
//
// # Device identifier
//
// Resolver reads a long-lived cookie (spdll_device_id by default). When the cookie is
// missing it mints hex(sha256(random uuid + User-Agent)), sets the cookie for a year and
// returns the new id. Resolution never fails.
//
//	resolver := device.NewResolver(device.ResolverOptions{Secure: cfg.Cookie.Secure})
//	deviceID := resolver.Resolve(w, r)
//
// # Registry
//
// A registry is the ordered list of DeviceRecords approved for one account. Storage is
// behind RegistryRepository, keyed by user id, with whole-list get/put/delete so callers
// can serialise updates per account without the store knowing about policy:
//
//	repo, err := device.NewRegistryRepository("postgres", device.RepositoryConfig{DB: pool})
//	registry := device.NewRegistryService(repo)
//	appended, err := registry.Approve(ctx, userID, record, limit)
//
// Supported persistence types are inmem, file and postgres.
package device
