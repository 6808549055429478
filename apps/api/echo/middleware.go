package echoapi

import (
	"fmt"
	"net"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/shuleapp/shule/core"
	"github.com/shuleapp/shule/core/tenant"
	"github.com/shuleapp/shule/core/user"
)

// rateLimitMiddleware enforces a fixed-window limit per client IP and path.
// The limiter fails open when the cache is unreachable.
func rateLimitMiddleware(conf *core.Config, cache core.Cache) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if conf.Server.RateLimitMax <= 0 {
				return next(ctx)
			}
			key := fmt.Sprintf("ratelimit:%s:%s", ctx.RealIP(), ctx.Path())
			n, err := cache.Incr(ctx.Request().Context(), key, conf.Server.RateLimitWindow)
			if err != nil {
				return next(ctx)
			}
			if n > int64(conf.Server.RateLimitMax) {
				return errRateLimited
			}
			return next(ctx)
		}
	}
}

// tenantMiddleware resolves the request hostname to a Tenant and stores it
// in the context. Requests from unknown hosts never reach a handler.
func tenantMiddleware(svc *tenant.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			host := ctx.Request().Host
			if h, _, err := net.SplitHostPort(host); err == nil {
				host = h
			}
			tnt, err := svc.ResolveDomain(ctx.Request().Context(), host)
			if err != nil {
				if err == tenant.ErrDomainNotFound || err == tenant.ErrNotFound {
					return errTenantNotFound
				}
				return errors.Wrap(err, "resolving tenant domain")
			}
			ctx.Set(contextTenantKey, tnt)
			return next(ctx)
		}
	}
}

// roleRequired gates a route on the user's role. An empty role list admits
// any authenticated user of the active tenant. All users must belong to
// the active tenant and the tenant's subscription must be valid; superusers
// are exempt from both checks and from the role list.
func roleRequired(svc *user.Service, roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx, svc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			if usr.IsSuperuser {
				return next(ctx)
			}

			tnt, err := getContextTenant(ctx)
			if err != nil {
				return err
			}
			if !tnt.SubscriptionValid(time.Now().UTC()) {
				return errSubscriptionExpired
			}
			if !usr.BelongsTo(tnt.ID) {
				return errHttpForbidden
			}
			if len(roles) == 0 {
				return next(ctx)
			}
			for _, role := range roles {
				if usr.Role == role {
					return next(ctx)
				}
			}
			return errHttpForbidden
		}
	}
}

// superuserRequired gates registry routes.
func superuserRequired(svc *user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx, svc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			if !usr.IsSuperuser {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}

// otpRequired rejects staff users whose token has no verified second factor.
// Non-staff roles pass through.
func otpRequired() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if (claims.IsSuperuser || user.RoleRequiresOTP(claims.Role)) && !claims.OTPVerified {
				return errOTPRequired
			}
			return next(ctx)
		}
	}
}
