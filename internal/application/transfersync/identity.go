package transfersync

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultRol is announced when neither configuration nor token name a role
const DefaultRol = "admin"

// ErrIdentityUnknown is returned when no administrator name can be resolved
var ErrIdentityUnknown = errors.New("administrator identity unknown: set admin.usuario or use a token with a usuario claim")

// Identity is the administrator announced in join_admin
type Identity struct {
	Usuario string `json:"usuario"`
	Rol     string `json:"rol"`
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Usuario  string `json:"usuario"`
	Username string `json:"username"`
	Rol      string `json:"rol"`
	Role     string `json:"role"`
}

// ResolveIdentity fills the blanks of configured from the bearer token
// claims. The token is parsed without verification; the server verifies it.
func ResolveIdentity(configured Identity, token string) (Identity, error) {
	id := Identity{
		Usuario: strings.TrimSpace(configured.Usuario),
		Rol:     strings.TrimSpace(configured.Rol),
	}

	if (id.Usuario == "" || id.Rol == "") && token != "" {
		claims := &tokenClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
			if id.Usuario == "" {
				return id, fmt.Errorf("%w: %v", ErrIdentityUnknown, err)
			}
		} else {
			if id.Usuario == "" {
				id.Usuario = firstNonEmpty(claims.Usuario, claims.Username, claims.Subject)
			}
			if id.Rol == "" {
				id.Rol = firstNonEmpty(claims.Rol, claims.Role)
			}
		}
	}

	if id.Usuario == "" {
		return id, ErrIdentityUnknown
	}
	if id.Rol == "" {
		id.Rol = DefaultRol
	}
	return id, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
