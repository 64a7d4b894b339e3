package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// writtenReporter is implemented by response writers that know whether the
// response was already committed, such as gin.ResponseWriter.
type writtenReporter interface {
	Written() bool
}

func alreadyWritten(w http.ResponseWriter) bool {
	wr, ok := w.(writtenReporter)
	return ok && wr.Written()
}

// GinMiddleware authenticates every request and authorizes its method.
// Rejected requests are aborted with a structured body; accepted ones carry
// the principal in the request context.
func GinMiddleware(svc *Service) gin.HandlerFunc {
	return ginHandler(svc, "")
}

// GinRequirePermission is GinMiddleware with an explicit permission in place
// of the method-derived one.
func GinRequirePermission(svc *Service, permission string) gin.HandlerFunc {
	return ginHandler(svc, permission)
}

func ginHandler(svc *Service, permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Writer.Written() {
			c.Next()
			return
		}

		o := svc.authenticate(c.Request, permission)
		if o.Skipped {
			c.Next()
			return
		}
		if o.Err != nil {
			WriteRejection(c.Writer, o, svc.now())
			c.Abort()
			return
		}

		c.Request = c.Request.WithContext(ContextWithPrincipal(c.Request.Context(), o.Principal))
		c.Next()
	}
}

// Middleware is the net/http form of GinMiddleware.
func Middleware(svc *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if alreadyWritten(w) {
				next.ServeHTTP(w, r)
				return
			}

			o := svc.Authenticate(r)
			if o.Skipped {
				next.ServeHTTP(w, r)
				return
			}
			if o.Err != nil {
				WriteRejection(w, o, svc.now())
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), o.Principal)))
		})
	}
}
