package oidc

import "github.com/benvon/membership-api/internal/models"

// ErrInvalidToken wraps every failure to verify a presented token.
var ErrInvalidToken = models.ErrInvalidToken
