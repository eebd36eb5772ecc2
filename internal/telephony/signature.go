package telephony

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/twilio/twilio-go/client"
)

const paramsKey = "twilioParams"

// PublicURL rebuilds the URL Twilio called. Priority: publicBase >
// X-Forwarded-* headers > request Host.
func PublicURL(r *http.Request, publicBase string) string {
	base := strings.TrimRight(publicBase, "/")
	if base == "" {
		proto := r.Header.Get("X-Forwarded-Proto")
		host := r.Header.Get("X-Forwarded-Host")
		if proto != "" && host != "" {
			base = fmt.Sprintf("%s://%s", proto, host)
		}
	}
	if base == "" {
		proto := "https"
		if strings.HasPrefix(r.Host, "localhost:") || strings.HasPrefix(r.Host, "127.0.0.1:") {
			proto = "http"
		}
		base = fmt.Sprintf("%s://%s", proto, r.Host)
	}
	u := base + r.URL.Path
	if r.URL.RawQuery != "" {
		u += "?" + r.URL.RawQuery
	}
	return u
}

// VerifySignature parses the webhook form into the context and rejects
// requests whose X-Twilio-Signature does not match. The URL is accepted
// with or without its default port. With an empty token the signature is
// not checked.
func VerifySignature(authToken, publicBase string) echo.MiddlewareFunc {
	validator := client.NewRequestValidator(authToken)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			body, err := io.ReadAll(c.Request().Body)
			if err != nil {
				return c.String(http.StatusBadRequest, "Failed to read request body")
			}
			form, err := url.ParseQuery(string(body))
			if err != nil {
				return c.String(http.StatusBadRequest, "Failed to parse form data")
			}
			params := make(map[string]string, len(form))
			for k, v := range form {
				if len(v) > 0 {
					params[k] = v[0]
				}
			}

			if authToken != "" {
				sig := c.Request().Header.Get("X-Twilio-Signature")
				if sig == "" || !validator.Validate(PublicURL(c.Request(), publicBase), params, sig) {
					return c.String(http.StatusUnauthorized, "Invalid Twilio signature")
				}
			}
			c.Set(paramsKey, params)
			return next(c)
		}
	}
}

func paramsFrom(c echo.Context) map[string]string {
	p, _ := c.Get(paramsKey).(map[string]string)
	if p == nil {
		return map[string]string{}
	}
	return p
}
