package web

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"ridebook/db/db"
	"ridebook/errs"
	"ridebook/repair"
	"ridebook/ride"
)

const (
	// UserIDHeader carries the id of an already authenticated user.
	UserIDHeader = "X-User-ID"

	callerKey = "caller"
	userKey   = "user"
)

func CorsConfig() cors.Config {
	corsConf := cors.DefaultConfig()
	corsConf.AllowAllOrigins = true
	corsConf.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConf.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Requested-With", UserIDHeader}
	corsConf.AllowCredentials = true
	corsConf.MaxAge = 1 * 3600 // 1 hours
	return corsConf
}

// limiterMiddleWare limits each client IP to rate, e.g. "1000-H".
func limiterMiddleWare(rate string) (gin.HandlerFunc, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, err
	}
	store := memory.NewStore()
	instance := limiter.New(store, r)
	return mgin.NewMiddleware(instance), nil
}

func UserDataLoaderInjectionMiddleware(wrapper db.RideDBWrapper) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(string(db.DataLoaderKeyUserData), db.NewUserDataLoader(wrapper))
		c.Next()
	}
}

// IdentityMiddleware resolves X-User-ID through the repairing read, so a
// corrupted balance never locks its owner out.
func IdentityMiddleware(repairer *repair.Repairer) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(UserIDHeader)
		if raw == "" {
			abortWithCode(c, http.StatusUnauthorized, "unauthorized", "missing "+UserIDHeader+" header")
			return
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			abortWithCode(c, http.StatusUnauthorized, "unauthorized", "invalid "+UserIDHeader+" header")
			return
		}

		user, err := repairer.GetUserSafe(c.Request.Context(), id)
		if errors.Is(err, errs.ErrNotFound) {
			abortWithCode(c, http.StatusUnauthorized, "unauthorized", "unknown user")
			return
		}
		if err != nil {
			abortWithError(c, err)
			return
		}

		c.Set(userKey, user)
		c.Set(callerKey, ride.CallerFromUser(user))
		c.Next()
	}
}

// RequireRole rejects callers whose role is not role.
func RequireRole(role db.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if callerOf(c).Role != role {
			abortWithCode(c, http.StatusForbidden, "forbidden", "only "+string(role)+" may do this")
			return
		}
		c.Next()
	}
}

func callerOf(c *gin.Context) ride.Caller {
	return c.MustGet(callerKey).(ride.Caller)
}

func userOf(c *gin.Context) *db.User {
	return c.MustGet(userKey).(*db.User)
}

func userLoaderOf(c *gin.Context) *db.UserDataLoader {
	return c.MustGet(string(db.DataLoaderKeyUserData)).(*db.UserDataLoader)
}

func setupMiddlewares(r *gin.Engine, cfg ServiceConfig) error {
	if cfg.RateLimit != "" {
		lim, err := limiterMiddleWare(cfg.RateLimit)
		if err != nil {
			return err
		}
		r.Use(lim)
	}
	r.Use(gin.Recovery())
	if cfg.IsDev {
		r.Use(gin.Logger())
	}
	r.Use(cors.New(CorsConfig()))
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	r.Use(secure.New(secure.Config{
		STSSeconds:           31536000, // 1 year
		STSIncludeSubdomains: true,
		FrameDeny:            true,
		ContentTypeNosniff:   true,
		BrowserXssFilter:     true,
		ReferrerPolicy:       "strict-origin-when-cross-origin",
		IsDevelopment:        cfg.IsDev,
	}))
	return nil
}
