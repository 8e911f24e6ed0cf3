package services

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/talenthub/backend/internal/models"
)

func setupAuthConfig() {
	viper.Set("argon2.salt_length", 16)
	viper.Set("argon2.time", 1)
	viper.Set("argon2.memory", 64*1024)
	viper.Set("argon2.threads", 4)
	viper.Set("argon2.key_length", 32)
	viper.Set("jwt.secret_key", "test-secret")
	viper.Set("jwt.expiry_hours", 24)
}

func TestAuthService_Login(t *testing.T) {
	setupAuthConfig()

	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewAuthService(db, nil)

	hashed, err := hashPassword("correct-horse")
	assert.NoError(t, err)

	loginBody := func(email, password string) *bytes.Buffer {
		body, _ := json.Marshal(models.AdminLoginRequest{Email: email, Password: password})
		return bytes.NewBuffer(body)
	}

	t.Run("successful login", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, email, name, password_hash, role FROM admins").
			WithArgs("ops@talenthub.io").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "password_hash", "role"}).
				AddRow(1, "ops@talenthub.io", "Ops Admin", hashed, "ADMIN"))

		r := httptest.NewRequest("POST", "/auth/login", loginBody("ops@talenthub.io", "correct-horse"))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response AuthResponse
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.NotEmpty(t, response.Token)
		assert.Equal(t, "ops@talenthub.io", response.Admin.Email)
		assert.Empty(t, response.Admin.PasswordHash)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wrong password", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, email, name, password_hash, role FROM admins").
			WithArgs("ops@talenthub.io").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "password_hash", "role"}).
				AddRow(1, "ops@talenthub.io", "Ops Admin", hashed, "ADMIN"))

		r := httptest.NewRequest("POST", "/auth/login", loginBody("ops@talenthub.io", "wrong-password"))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown admin", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, email, name, password_hash, role FROM admins").
			WithArgs("nobody@talenthub.io").
			WillReturnError(assert.AnError)

		r := httptest.NewRequest("POST", "/auth/login", loginBody("nobody@talenthub.io", "correct-horse"))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid request body", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBufferString("not json"))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("validation failure", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/auth/login", loginBody("not-an-email", "correct-horse"))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAuthService_Logout(t *testing.T) {
	setupAuthConfig()

	db, _, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	redisClient, redisMock := redismock.NewClientMock()
	service := NewAuthService(db, redisClient)

	t.Run("blacklists the presented token", func(t *testing.T) {
		redisMock.ExpectSet("blacklist:some-token", "1", 24*time.Hour).SetVal("OK")

		r := httptest.NewRequest("POST", "/auth/logout", nil)
		r.Header.Set("Authorization", "Bearer some-token")
		w := httptest.NewRecorder()

		service.Logout(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("no token is still a clean logout", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/auth/logout", nil)
		w := httptest.NewRecorder()

		service.Logout(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}
