package liveupdate

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vango-go/vai-intake/pkg/core"
)

// ClinicIDFromToken reads the clinic_id claim from an access token.
// The signature is not verified; the server authorizes the connection.
func ClinicIDFromToken(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", core.NewInvalidRequestError("clinic id or token with a clinic_id claim is required")
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", core.NewInvalidRequestError(fmt.Sprintf("parse access token: %v", err))
	}

	switch v := claims["clinic_id"].(type) {
	case string:
		if v = strings.TrimSpace(v); v != "" {
			return v, nil
		}
	case float64:
		return fmt.Sprintf("%.0f", v), nil
	}
	return "", core.NewInvalidRequestError("access token has no clinic_id claim")
}
