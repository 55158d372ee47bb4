package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/worksheet-grader/internal/utils"
)

const principalKey = "principal"

// Principal is the caller identified by a verified bearer token.
type Principal struct {
	Subject string
	Roles   []string
}

// HasRole reports whether the principal carries any of the given roles.
func (p Principal) HasRole(allowed map[string]struct{}) bool {
	for _, role := range p.Roles {
		if _, ok := allowed[role]; ok {
			return true
		}
	}
	return false
}

// JWTProtected returns a middleware that validates HMAC-signed bearer tokens
// and binds the caller's Principal to the request.
func JWTProtected(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authorization := c.Get("Authorization")
		if authorization == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "authorization header missing")
		}

		const bearer = "Bearer "
		if !strings.HasPrefix(strings.ToLower(authorization), strings.ToLower(bearer)) {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid authorization header")
		}

		tokenString := strings.TrimSpace(authorization[len(bearer):])
		if tokenString == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token claims")
		}

		principal := Principal{
			Subject: subjectFromClaims(claims),
			Roles:   rolesFromClaims(claims),
		}
		if principal.Subject == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "token subject missing")
		}

		c.Locals(principalKey, principal)
		return c.Next()
	}
}

// GetPrincipal returns the authenticated caller, if any.
func GetPrincipal(c *fiber.Ctx) (Principal, bool) {
	if c == nil {
		return Principal{}, false
	}
	principal, ok := c.Locals(principalKey).(Principal)
	return principal, ok
}

// subjectFromClaims prefers sub and falls back to email.
func subjectFromClaims(claims jwt.MapClaims) string {
	for _, key := range []string{"sub", "email"} {
		if v, ok := claims[key].(string); ok {
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func rolesFromClaims(claims jwt.MapClaims) []string {
	var roles []string
	for _, key := range []string{"role", "roles"} {
		switch v := claims[key].(type) {
		case string:
			roles = appendRole(roles, v)
		case []interface{}:
			for _, item := range v {
				if s, ok := item.(string); ok {
					roles = appendRole(roles, s)
				}
			}
		}
	}
	return roles
}

func appendRole(roles []string, raw string) []string {
	role := strings.ToLower(strings.TrimSpace(raw))
	if role == "" {
		return roles
	}
	for _, existing := range roles {
		if existing == role {
			return roles
		}
	}
	return append(roles, role)
}
