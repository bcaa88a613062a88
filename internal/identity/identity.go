package identity

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"

	"github.com/golang-jwt/jwt/v5"
	"vps-rewards-lite/internal/model"
)

var (
	ErrInvalidPublicKey = errors.New("Invalid public key")
	ErrInvalidToken     = errors.New("Invalid identity token")
)

// Claims are the identity provider's ID token claims.
type Claims struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	jwt.RegisteredClaims
}

// Verifier checks ID tokens signed by the identity provider with Ed25519.
type Verifier struct {
	key    ed25519.PublicKey
	issuer string
}

func ParsePublicKey(publicKeyB64 string) (ed25519.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(publicKeyB64)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return nil, ErrInvalidPublicKey
	}
	return ed25519.PublicKey(raw), nil
}

func NewVerifier(publicKeyB64, issuer string) (*Verifier, error) {
	key, err := ParsePublicKey(publicKeyB64)
	if err != nil {
		return nil, err
	}
	return &Verifier{key: key, issuer: issuer}, nil
}

func (v *Verifier) Verify(idToken string) (model.Principal, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	parsed, err := jwt.ParseWithClaims(idToken, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return v.key, nil
	}, opts...)
	if err != nil {
		return model.Principal{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return model.Principal{}, ErrInvalidToken
	}

	return model.Principal{
		ID:          claims.Subject,
		Email:       claims.Email,
		DisplayName: claims.Name,
		PhotoURL:    claims.Picture,
	}, nil
}
