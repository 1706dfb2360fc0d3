package echoapi

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/malipo/core/user"
)

func Test_userApi_register(t *testing.T) {
	ts := setupServer(t)
	ts.createUser(t, "Taken", "taken@test.test", "pwd", []string{user.RoleStudent})

	path := "/v1/users/register"
	tests := []httpTest{
		{name: "empty body", method: http.MethodPost, path: path, wantCode: http.StatusBadRequest},
		{name: "email taken", method: http.MethodPost, path: path, wantCode: http.StatusBadRequest,
			body: marchallObj(t, user.NewUser{Name: "Dup", Email: "taken@test.test", Password: "pwd"})},
		{name: "roles are ignored", method: http.MethodPost, path: path, wantCode: http.StatusCreated,
			body: marchallObj(t, user.NewUser{Name: "Sneaky", Email: "sneaky@test.test", Password: "pwd", Roles: []string{user.RoleAdmin}})},
		{name: "ok", method: http.MethodPost, path: path, wantCode: http.StatusCreated,
			body: marchallObj(t, user.NewUser{Name: "New", Email: "new@test.test", Password: "pwd"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			ts.app.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantCode, rec.Code)

			if tt.wantCode != http.StatusCreated {
				return
			}
			var usr user.User
			if err := json.Unmarshal(rec.Body.Bytes(), &usr); err != nil {
				t.Fatalf("unmarshaling response failed: %v", err)
			}
			assert.Equal(t, []string{user.RoleStudent}, usr.Roles)
			assert.True(t, usr.IsActive)
		})
	}
}

func Test_userApi_login(t *testing.T) {
	ts := setupServer(t)
	usr := ts.createUser(t, "Student", "student@test.test", "pwd", []string{user.RoleStudent})
	inactive := ts.createUser(t, "Gone", "gone@test.test", "pwd", []string{user.RoleStudent})
	inactive.IsActive = false
	if _, err := ts.usrRepo.UpdateUser(context.Background(), inactive); err != nil {
		t.Fatalf("UpdateUser() failed: %v", err)
	}

	path := "/v1/users/login"
	tests := []httpTest{
		{name: "unknown user", method: http.MethodPost, path: path, wantCode: http.StatusBadRequest,
			body: marchallObj(t, user.LoginRequest{Username: "nobody@test.test", Password: "pwd"})},
		{name: "wrong password", method: http.MethodPost, path: path, wantCode: http.StatusBadRequest,
			body: marchallObj(t, user.LoginRequest{Username: usr.Email, Password: "nope"})},
		{name: "deactivated account", method: http.MethodPost, path: path, wantCode: http.StatusForbidden,
			body: marchallObj(t, user.LoginRequest{Username: inactive.Email, Password: "pwd"})},
		{name: "ok", method: http.MethodPost, path: path, wantCode: http.StatusOK,
			body: marchallObj(t, user.LoginRequest{Username: usr.Email, Password: "pwd"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			ts.app.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantCode, rec.Code)

			if tt.wantCode != http.StatusOK {
				return
			}
			var resp LoginResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("unmarshaling response failed: %v", err)
			}
			assert.NotEmpty(t, resp.Token)
		})
	}
}

func Test_userApi_retrieveSelf(t *testing.T) {
	ts := setupServer(t)
	usr := ts.createUser(t, "Student", "student@test.test", "pwd", []string{user.RoleStudent})

	req, rec := newRequest(http.MethodGet, "/v1/users/me")
	ts.app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req, rec = newAuthRequest(http.MethodGet, "/v1/users/me", getToken(t, usr))
	ts.app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var got user.User
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshaling response failed: %v", err)
	}
	assert.Equal(t, usr.ID, got.ID)
	assert.Equal(t, usr.Email, got.Email)
}
