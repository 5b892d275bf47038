package auth

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"camera-fleet/pkg/config"
	"camera-fleet/pkg/database"
	"camera-fleet/pkg/models"
)

const (
	cookieName = "jwt_token"
	tokenTTL   = 24 * time.Hour
	userKey    = "user"
)

// UserClaims defines the claims for the JWT.
type UserClaims struct {
	UserID      int64  `json:"user_id"`
	Username    string `json:"username"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	IsAdmin     bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// jwtSecret is read on use so tests and late config loading see the current key.
func jwtSecret() []byte {
	return []byte(config.AppConfig.AppKey)
}

// GenerateJWT generates a new JWT for the given user.
func GenerateJWT(user *models.User) (string, error) {
	now := time.Now()
	claims := &UserClaims{
		UserID:      user.ID,
		Username:    user.Username,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		IsAdmin:     user.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(jwtSecret())
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateJWT validates the JWT string and returns the claims if valid.
func ValidateJWT(tokenString string) (*UserClaims, error) {
	claims := &UserClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return jwtSecret(), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

func tokenFromRequest(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	if cookieToken, err := c.Cookie(cookieName); err == nil {
		return cookieToken
	}
	return ""
}

// AuthMiddleware requires a valid token in the Authorization header or the
// session cookie.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := tokenFromRequest(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "message": "Authentication required"})
			return
		}

		claims, err := ValidateJWT(tokenString)
		if err != nil {
			log.Printf("JWT validation failed: %v", err)
			c.SetCookie(cookieName, "", -1, "/", "", false, true) // Clear invalid cookie
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "message": "Invalid or expired token"})
			return
		}

		c.Set(userKey, &models.User{
			ID:          claims.UserID,
			Username:    claims.Username,
			Email:       claims.Email,
			DisplayName: claims.DisplayName,
			IsAdmin:     claims.IsAdmin,
		})
		c.Next()
	}
}

// AdminOnlyMiddleware checks for admin privileges.
func AdminOnlyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil || !user.IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden", "message": "Admin privileges required"})
			return
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated user, or nil.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}

// CurrentActor names the authenticated user for status bookkeeping.
func CurrentActor(c *gin.Context) models.Actor {
	user := CurrentUser(c)
	if user == nil {
		return models.Actor{}
	}
	name := user.DisplayName
	if name == "" {
		name = user.Username
	}
	return models.Actor{Name: name, Email: user.Email}
}

// LoginHandler exchanges credentials for a token, returned in the body and
// set as an HttpOnly cookie.
func LoginHandler(c *gin.Context) {
	var login struct {
		Username string `form:"username" json:"username" binding:"required"`
		Password string `form:"password" json:"password" binding:"required"`
	}
	if err := c.ShouldBind(&login); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ValidationError", "message": err.Error()})
		return
	}

	user, authenticated := database.CheckUserCredentials(login.Username, login.Password)
	if !authenticated {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "message": "Invalid credentials"})
		return
	}

	tokenString, err := GenerateJWT(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal", "message": "Failed to generate token"})
		return
	}

	c.SetCookie(cookieName, tokenString, int(tokenTTL.Seconds()), "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{
		"token": tokenString,
		"user": gin.H{
			"username":    user.Username,
			"email":       user.Email,
			"displayName": user.DisplayName,
			"isAdmin":     user.IsAdmin,
		},
	})
}

// LogoutHandler handles user logout requests by clearing the JWT cookie.
func LogoutHandler(c *gin.Context) {
	c.SetCookie(cookieName, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}
