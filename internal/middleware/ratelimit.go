package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

const rateLimitPrefix = "quickmatch:ratelimit"

func NewMemoryStore() limiter.Store {
	return memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: rateLimitPrefix})
}

func NewRedisStore(client *redis.Client) (limiter.Store, error) {
	store, err := sredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: rateLimitPrefix})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create redis rate limit store")
	}
	return store, nil
}

// RateLimit limits requests per authenticated user, falling back to the client IP.
// rate uses the limiter format, e.g. "10-M". Store failures let the request through.
func RateLimit(rate string, store limiter.Store, log *logrus.Entry) (gin.HandlerFunc, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid rate %q", rate)
	}
	lim := limiter.New(store, r)

	return func(c *gin.Context) {
		key := c.ClientIP()
		if id := c.GetUint("userId"); id != 0 {
			key = c.GetString("userType") + ":" + strconv.FormatUint(uint64(id), 10)
		}

		ctx, err := lim.Get(c.Request.Context(), key)
		if err != nil {
			log.WithError(err).Warn("Rate limiter unavailable")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(ctx.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(ctx.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(ctx.Reset, 10))

		if ctx.Reached {
			c.AbortWithStatusJSON(429, gin.H{"error": "Too many requests", "code": "RateLimited"})
			return
		}
		c.Next()
	}, nil
}
