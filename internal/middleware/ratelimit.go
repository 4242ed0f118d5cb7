package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/capitalize-ai/conversations-api/internal/model"
)

// OwnerRateLimit limits requests per owner. It must run after Identity;
// requests without an owner are keyed by client IP.
func OwnerRateLimit(requestLimit int, windowLength time.Duration) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(math.Ceil(windowLength.Seconds())))

	return httprate.Limit(
		requestLimit,
		windowLength,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if ownerID, ok := GetOwnerID(r.Context()); ok {
				return "owner:" + ownerID.String(), nil
			}
			ip, err := httprate.KeyByIP(r)
			return "ip:" + ip, err
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", retryAfter)
			writeError(w, http.StatusTooManyRequests, model.CodeRateLimited,
				fmt.Sprintf("rate limit of %d requests per %s exceeded", requestLimit, windowLength), nil)
		}),
	)
}
