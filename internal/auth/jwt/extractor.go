package jwt

import "strings"

const bearerPrefix = "Bearer "

// ExtractBearer returns the token carried by an Authorization header value.
// The scheme is matched case-insensitively.
func ExtractBearer(header string) (string, error) {
	if header == "" {
		return "", ErrMissingHeader
	}
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", ErrInvalidPrefix
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", ErrEmptyToken
	}
	return token, nil
}
