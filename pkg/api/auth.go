package api

// RegisterRequest представляет запрос на регистрацию нового пользователя
type RegisterRequest struct {
	Login    string `json:"login"`    // логин, уникален без учета регистра
	Email    string `json:"email"`    // email, уникален
	Password string `json:"password"` // пароль в открытом виде (поверх TLS)
}

// RegisterResponse представляет ответ на успешную регистрацию
type RegisterResponse struct {
	UserID  string `json:"userId"`  // UUID пользователя
	Message string `json:"message"` // сообщение об успешной регистрации
}

// LoginRequest представляет запрос на аутентификацию
type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// TokenResponse представляет ответ с токенами доступа
type TokenResponse struct {
	AccessToken  string `json:"accessToken"`  // JWT access token
	RefreshToken string `json:"refreshToken"` // refresh token
	ExpiresIn    int64  `json:"expiresIn"`    // время жизни access token в секундах
}

// ProfileResponse представляет профиль пользователя
type ProfileResponse struct {
	UserID    string  `json:"userId"`
	Login     string  `json:"login"`
	Email     string  `json:"email"`
	AvatarID  string  `json:"avatarId,omitempty"`
	Name      string  `json:"name,omitempty"`
	BirthDate *string `json:"birthDate,omitempty"` // RFC 3339
	Role      string  `json:"role,omitempty"`
	City      string  `json:"city,omitempty"`
	Bio       string  `json:"bio,omitempty"`
}

// ProfileUpdateRequest представляет частичное обновление профиля.
// nil-поле означает "не трогать", пустая строка — "очистить".
type ProfileUpdateRequest struct {
	AvatarID  *string `json:"avatarId,omitempty"`
	Name      *string `json:"name,omitempty"`
	BirthDate *string `json:"birthDate,omitempty"`
	Role      *string `json:"role,omitempty"`
	City      *string `json:"city,omitempty"`
	Bio       *string `json:"bio,omitempty"`
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`             // описание ошибки
	Message string `json:"message,omitempty"` // дополнительное сообщение
}
