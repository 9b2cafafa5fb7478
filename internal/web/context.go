package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/datacompile/internal/core"
)

// withClient adds the client address and User-Agent to the context for the
// audit trail. RemoteAddr has already been resolved by TrustedRealIP.
func withClient(r *http.Request) context.Context {
	return core.ContextWithClient(r.Context(), r.RemoteAddr, r.UserAgent())
}
