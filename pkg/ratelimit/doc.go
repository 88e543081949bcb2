// Package ratelimit throttles credential-checking requests per client using
// golang.org/x/time/rate token buckets.
//
//	rl := ratelimit.NewRateLimiter(0.5, 10, time.Hour)
//	defer rl.Close()
//	h := api.NewHandler(svc, api.WithLoginLimiter(ratelimit.Middleware(rl, ratelimit.ClientIP)))
package ratelimit
