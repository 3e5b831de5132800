// Package validation provides input validation middleware for the tapbridge API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxWalletIDLength bounds wallet identifiers
const MaxWalletIDLength = 64

var (
	// assetIDRegex validates taproot asset IDs (32 bytes, hex encoded)
	assetIDRegex = regexp.MustCompile(`^[a-fA-F0-9]{64}$`)
	// walletIDRegex validates wallet identifiers
	walletIDRegex = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
	// pubkeyRegex validates compressed node pubkeys (33 bytes, hex encoded)
	pubkeyRegex = regexp.MustCompile(`^0[23][a-fA-F0-9]{64}$`)
)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidAssetID checks if a string is a 64-character hex asset ID
func IsValidAssetID(id string) bool {
	return assetIDRegex.MatchString(id)
}

// IsValidWalletID checks if a string is an acceptable wallet identifier
func IsValidWalletID(id string) bool {
	return id != "" && len(id) <= MaxWalletIDLength && walletIDRegex.MatchString(id)
}

// IsValidPubkey checks if a string is a compressed secp256k1 pubkey in hex
func IsValidPubkey(s string) bool {
	return pubkeyRegex.MatchString(s)
}

// SanitizeString removes dangerous characters and limits length
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	s = strings.ReplaceAll(s, "\x00", "")
	return s
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate validates a request and returns errors
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errors ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errors = append(errors, *err)
		}
	}
	return errors
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidAssetID checks if a field is a valid asset ID
func ValidAssetID(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // Use Required for required fields
		}
		if !IsValidAssetID(value) {
			return &ValidationError{Field: field, Message: "must be a 64-character hex asset ID"}
		}
		return nil
	}
}

// MaxLength checks if a field exceeds max length
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// WalletParamMiddleware validates the :wallet_id URL parameter on routes that use it.
// Apply to route groups that include :wallet_id params to reject malformed IDs early.
func WalletParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("wallet_id")
		if id != "" && !IsValidWalletID(id) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_wallet_id",
				"message": "wallet_id must be 1-64 characters of [A-Za-z0-9._-]",
			})
			return
		}
		c.Next()
	}
}

// AssetIDQueryMiddleware validates the asset_id query parameter when present.
func AssetIDQueryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Query("asset_id")
		if id != "" && !IsValidAssetID(id) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_asset_id",
				"message": "asset_id must be a 64-character hex string",
			})
			return
		}
		c.Next()
	}
}
