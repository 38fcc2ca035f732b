// Package authtrail is an embeddable user-authentication and audit
// core. It owns credential verification with lockout accounting,
// out-of-band MFA challenges, refresh-token session state, device
// history with suspicion scoring, and an append-only audit trail.
//
// The engine is storage-agnostic: user, device and audit records live
// behind repository interfaces (a MongoDB implementation ships in
// internal/mongodb and is wired through the Builder), pending
// challenge codes live in Redis, and outbound notifications go through
// an injected notify.Sender.
//
// Build an Engine with the Builder:
//
//	engine, err := authtrail.New().
//		WithConfig(cfg).
//		WithRedis(redisClient).
//		WithMongo(db).
//		WithNotifier(sender).
//		Build()
//
// All flows take a context.Context; attach the caller's network
// identity with WithClientIP and WithUserAgent so device tracking and
// audit events see it.
package authtrail
