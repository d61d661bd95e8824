package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ajitpratap0/mcp-engine/pkg/logging"
)

// HTTPConfig configures HTTPMiddleware.
type HTTPConfig struct {
	// AllowAnonymous lets requests without credentials through with no user
	// in the context. Invalid credentials are still rejected.
	AllowAnonymous bool

	// Realm is reported in WWW-Authenticate. Default: "mcp"
	Realm string

	Logger logging.Logger
}

// HTTPMiddleware authenticates every request with authn and stores the user
// in the request context. Failures get 401 with a JSON body.
func HTTPMiddleware(authn Authenticator, config HTTPConfig) func(http.Handler) http.Handler {
	if config.Realm == "" {
		config.Realm = "mcp"
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.WithFields(logging.Component("auth"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := authn.Authenticate(r.Context(), r)
			switch {
			case err == nil:
				next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
				return
			case errors.Is(err, ErrNoCredentials) && config.AllowAnonymous:
				next.ServeHTTP(w, r)
				return
			}

			logger.Warn("authentication failed",
				logging.String("type", authn.Type()),
				logging.String("remote_addr", r.RemoteAddr),
				logging.ErrorField(err))
			unauthorized(w, config.Realm, err)
		})
	}
}

func unauthorized(w http.ResponseWriter, realm string, err error) {
	code := "invalid_token"
	if errors.Is(err, ErrNoCredentials) {
		code = "authentication_required"
	}
	w.Header().Set("WWW-Authenticate", `Bearer realm="`+realm+`", error="`+code+`"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": err.Error()})
}
