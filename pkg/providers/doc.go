// Package providers implements session.Adapter for each supported identity provider.
//
// Discord, Google and Facebook tokens are refreshed through golang.org/x/oauth2.
// Discord guild and role membership, Google hosted domains and Facebook groups are
// re-checked against the provider's REST API on every validation that is not served
// from the authorization cache. Bluesky sessions are kept alive through the PDS and
// have no upstream authorization check. The dev and admin providers never touch the
// network.
//
// All HTTP calls go through an Upstream, which bounds them with a timeout and
// classifies failures:
//
//	timeout, network error, 429, 5xx   transient, stale cache may be used
//	other non-2xx                      permanent
//
// Adapters are built by a Factory:
//
//	upstream := providers.NewUpstream(providers.NewHTTPClient(cfg.Timeout), metrics)
//	adapters, err := providers.NewFactory(cfg.Providers, upstream).CreateAll()
package providers
