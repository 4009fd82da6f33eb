package mw

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"appointment-booking-backend/internal/authz"
	"appointment-booking-backend/internal/model"
)

const callerKey = "caller"

// Claims are the bearer token claims. The subject is the user ID.
type Claims struct {
	Role         model.UserType `json:"role"`
	UniversityID *int64         `json:"university_id,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for caller.
func IssueToken(secret []byte, issuer string, caller authz.Caller, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:         caller.Role,
		UniversityID: caller.UniversityID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(caller.UserID, 10),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Auth requires a valid bearer token and stores the caller in the context.
func Auth(secret []byte, issuer string) gin.HandlerFunc {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	return func(c *gin.Context) {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || raw == "" {
			unauthorized(c, "missing or malformed bearer token")
			return
		}

		var claims Claims
		_, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
			return secret, nil
		})
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "token expired"
			}
			unauthorized(c, msg)
			return
		}

		caller, err := claims.caller()
		if err != nil {
			unauthorized(c, err.Error())
			return
		}
		c.Set(callerKey, caller)
		c.Next()
	}
}

func (cl Claims) caller() (authz.Caller, error) {
	id, err := strconv.ParseInt(cl.Subject, 10, 64)
	if err != nil || id <= 0 {
		return authz.Caller{}, errors.New("token subject is not a user id")
	}
	switch cl.Role {
	case model.UserTypeTalent, model.UserTypeRecruiter, model.UserTypeUniversityStaff, model.UserTypeAdmin:
	default:
		return authz.Caller{}, errors.New("token carries an unknown role")
	}
	return authz.Caller{UserID: id, Role: cl.Role, UniversityID: cl.UniversityID}, nil
}

func unauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="api"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": msg})
}

// CallerFrom returns the caller set by Auth.
func CallerFrom(c *gin.Context) (authz.Caller, bool) {
	v, ok := c.Get(callerKey)
	if !ok {
		return authz.Caller{}, false
	}
	caller, ok := v.(authz.Caller)
	return caller, ok
}
