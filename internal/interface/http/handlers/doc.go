// Package handlers contains the reusable pieces of the HTTP surface: the
// composite health checker, admin token authentication and middleware.
//
// # Health Checks
//
// Named checks run in parallel with a per-check timeout:
//
//	checker := handlers.NewCompositeHealthChecker("v1")
//	checker.AddCheck("store", handlers.NewPingCheck(store))
//	checker.AddCheck("gateway", handlers.NewConnectedCheck(client))
//
//	status := checker.Check(ctx)
//
// # Admin Authentication
//
// BearerAuth compares the Authorization bearer token with a bcrypt hash:
//
//	auth, err := handlers.NewBearerAuth(os.Getenv("ADMIN_TOKEN_HASH"))
//	router.Use(auth.Middleware)
package handlers
