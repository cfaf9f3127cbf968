package jwt

import "github.com/golang-jwt/jwt/v5"

// CustomClaims описывает данные пользователя, которые внешний
// auth-провайдер кладёт в JWT: идентификатор, имя и email.
type CustomClaims struct {
	UserUID              string `json:"user_uid"` // Идентификатор пользователя
	Username             string `json:"username"` // Имя пользователя
	Email                string `json:"email"`    // Электронная почта
	jwt.RegisteredClaims        // Встроенные стандартные claims JWT (ExpiresAt, IssuedAt и пр.)
}
