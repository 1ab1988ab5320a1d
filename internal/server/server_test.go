package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/zkvault/zkvault/internal/config"
	"github.com/zkvault/zkvault/internal/logging"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Config{
		AppName:   "zkvault-test",
		JWTSecret: "test-secret",
		TokenTTL:  time.Minute,
		Argon2:    config.Argon2Params{MemoryKiB: 1024, TimeCost: 1, Parallelism: 1},
	}
	srv, err := New(cfg, nil, nil, logging.Discard())
	if err != nil {
		t.Fatalf("build server: %v", err)
	}
	return srv
}

func doJSON(t *testing.T, app *fiber.App, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	resp.Body.Close()

	var decoded map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("decode response %q: %v", raw, err)
		}
	}
	return resp, decoded
}

func registerUser(t *testing.T, app *fiber.App, username, authHash, salt string) string {
	t.Helper()
	resp, body := doJSON(t, app, fiber.MethodPost, "/auth/register", "", fiber.Map{
		"username": username, "auth_hash": authHash, "salt": salt,
	})
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("register %s: expected 201 got %d (%v)", username, resp.StatusCode, body)
	}
	token, _ := body["access_token"].(string)
	if token == "" {
		t.Fatalf("register %s: missing access_token in %v", username, body)
	}
	return token
}

func errorCode(t *testing.T, body map[string]any) string {
	t.Helper()
	errObj, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("missing error object in %v", body)
	}
	code, _ := errObj["code"].(string)
	return code
}

func TestRegisterReturnsSession(t *testing.T) {
	srv := testServer(t)
	app := srv.App()

	resp, body := doJSON(t, app, fiber.MethodPost, "/auth/register", "", fiber.Map{
		"username": "alice", "auth_hash": "hash-1", "salt": "salt-1",
	})
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected 201 got %d (%v)", resp.StatusCode, body)
	}
	if body["token_type"] != "bearer" {
		t.Fatalf("expected bearer token type, got %v", body["token_type"])
	}
	if body["vault_id"] != nil {
		t.Fatalf("new identity should report null vault_id, got %v", body["vault_id"])
	}
	if body["salt"] != "salt-1" {
		t.Fatalf("expected salt echoed, got %v", body["salt"])
	}
}

func TestRegisterDuplicateTripleIs409(t *testing.T) {
	srv := testServer(t)
	app := srv.App()
	registerUser(t, app, "alice", "hash-1", "salt-1")

	resp, body := doJSON(t, app, fiber.MethodPost, "/auth/register", "", fiber.Map{
		"username": "alice", "auth_hash": "hash-1", "salt": "salt-1",
	})
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("expected 409 got %d (%v)", resp.StatusCode, body)
	}
	if code := errorCode(t, body); code != "ALREADY_EXISTS" {
		t.Fatalf("expected ALREADY_EXISTS got %s", code)
	}
}

func TestRegisterMissingFieldsIs422(t *testing.T) {
	srv := testServer(t)
	app := srv.App()

	resp, body := doJSON(t, app, fiber.MethodPost, "/auth/register", "", fiber.Map{
		"username": "alice",
	})
	if resp.StatusCode != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d (%v)", resp.StatusCode, body)
	}
	if code := errorCode(t, body); code != "VALIDATION_FAILED" {
		t.Fatalf("expected VALIDATION_FAILED got %s", code)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	srv := testServer(t)
	app := srv.App()
	registerUser(t, app, "alice", "hash-1", "salt-1")

	unknownResp, unknownBody := doJSON(t, app, fiber.MethodPost, "/auth/login", "", fiber.Map{
		"username": "nobody", "auth_hash": "hash-1",
	})
	wrongResp, wrongBody := doJSON(t, app, fiber.MethodPost, "/auth/login", "", fiber.Map{
		"username": "alice", "auth_hash": "wrong",
	})

	for name, resp := range map[string]*http.Response{"unknown": unknownResp, "wrong hash": wrongResp} {
		if resp.StatusCode != fiber.StatusUnauthorized {
			t.Fatalf("%s: expected 401 got %d", name, resp.StatusCode)
		}
		if resp.Header.Get(fiber.HeaderWWWAuthenticate) != "Bearer" {
			t.Fatalf("%s: expected WWW-Authenticate: Bearer header", name)
		}
	}
	if fmt.Sprint(unknownBody) != fmt.Sprint(wrongBody) {
		t.Fatalf("login failure bodies must match: %v vs %v", unknownBody, wrongBody)
	}
}

func TestVaultLifecycle(t *testing.T) {
	srv := testServer(t)
	app := srv.App()
	aliceToken := registerUser(t, app, "alice", "hash-a", "salt-a")
	bobToken := registerUser(t, app, "bob", "hash-b", "salt-b")
	vaultID := "9f2b8a4e-3c1d-4f5a-8b6c-7d8e9f0a1b2c"

	resp, body := doJSON(t, app, fiber.MethodPost, "/vault", aliceToken, fiber.Map{
		"vault_id": vaultID, "ciphertext": "ct", "iv": "iv", "salt": "salt-a", "version": 1,
	})
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("create: expected 201 got %d (%v)", resp.StatusCode, body)
	}
	if body["vault_id"] != vaultID {
		t.Fatalf("create: expected echoing vault_id, got %v", body)
	}

	resp, body = doJSON(t, app, fiber.MethodGet, "/vault/"+vaultID, aliceToken, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("get: expected 200 got %d (%v)", resp.StatusCode, body)
	}
	if body["ciphertext"] != "ct" || body["iv"] != "iv" || body["salt"] != "salt-a" {
		t.Fatalf("get: unexpected blob %v", body)
	}

	// Another identity's token is rejected with 403, not 404.
	resp, body = doJSON(t, app, fiber.MethodGet, "/vault/"+vaultID, bobToken, nil)
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("cross-owner get: expected 403 got %d (%v)", resp.StatusCode, body)
	}
	if code := errorCode(t, body); code != "ACCESS_DENIED" {
		t.Fatalf("expected ACCESS_DENIED got %s", code)
	}

	resp, body = doJSON(t, app, fiber.MethodPut, "/vault/"+vaultID, aliceToken, fiber.Map{
		"ciphertext": "ct2", "iv": "iv2", "version": 2,
	})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("update: expected 200 got %d (%v)", resp.StatusCode, body)
	}

	resp, body = doJSON(t, app, fiber.MethodGet, "/vault/"+vaultID, aliceToken, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("reload: expected 200 got %d", resp.StatusCode)
	}
	if body["ciphertext"] != "ct2" || body["salt"] != "salt-a" {
		t.Fatalf("update must preserve salt when omitted, got %v", body)
	}

	resp, _ = doJSON(t, app, fiber.MethodDelete, "/vault/"+vaultID, aliceToken, nil)
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("delete: expected 204 got %d", resp.StatusCode)
	}

	resp, body = doJSON(t, app, fiber.MethodGet, "/vault/"+vaultID, aliceToken, nil)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("get after delete: expected 404 got %d (%v)", resp.StatusCode, body)
	}
	if code := errorCode(t, body); code != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND got %s", code)
	}
}

func TestVaultCreateValidation(t *testing.T) {
	srv := testServer(t)
	app := srv.App()
	token := registerUser(t, app, "alice", "hash-a", "salt-a")

	resp, body := doJSON(t, app, fiber.MethodPost, "/vault", token, fiber.Map{
		"vault_id": "not-a-uuid", "ciphertext": "ct", "iv": "iv", "salt": "s", "version": 1,
	})
	if resp.StatusCode != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d (%v)", resp.StatusCode, body)
	}

	vaultID := "9f2b8a4e-3c1d-4f5a-8b6c-7d8e9f0a1b2c"
	resp, _ = doJSON(t, app, fiber.MethodPost, "/vault", token, fiber.Map{
		"vault_id": vaultID, "ciphertext": "ct", "iv": "iv", "salt": "s", "version": 1,
	})
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("create: expected 201 got %d", resp.StatusCode)
	}

	// A duplicate id is a 400, distinct from the registration conflict 409.
	otherToken := registerUser(t, app, "bob", "hash-b", "salt-b")
	resp, body = doJSON(t, app, fiber.MethodPost, "/vault", otherToken, fiber.Map{
		"vault_id": vaultID, "ciphertext": "ct", "iv": "iv", "salt": "s", "version": 1,
	})
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("duplicate: expected 400 got %d (%v)", resp.StatusCode, body)
	}
	if code := errorCode(t, body); code != "VAULT_EXISTS" {
		t.Fatalf("expected VAULT_EXISTS got %s", code)
	}
}

func TestVaultRequiresBearerToken(t *testing.T) {
	srv := testServer(t)
	app := srv.App()

	resp, body := doJSON(t, app, fiber.MethodGet, "/vault/9f2b8a4e-3c1d-4f5a-8b6c-7d8e9f0a1b2c", "", nil)
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 got %d (%v)", resp.StatusCode, body)
	}
	if resp.Header.Get(fiber.HeaderWWWAuthenticate) != "Bearer" {
		t.Fatalf("expected WWW-Authenticate challenge")
	}

	resp, _ = doJSON(t, app, fiber.MethodGet, "/vault/9f2b8a4e-3c1d-4f5a-8b6c-7d8e9f0a1b2c", "garbage-token", nil)
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", resp.StatusCode)
	}
}

func TestChangePasswordFlow(t *testing.T) {
	srv := testServer(t)
	app := srv.App()
	token := registerUser(t, app, "alice", "hash-1", "salt-1")
	vaultID := "9f2b8a4e-3c1d-4f5a-8b6c-7d8e9f0a1b2c"

	// Without a vault the rotation has nothing to re-encrypt.
	resp, body := doJSON(t, app, fiber.MethodPost, "/auth/change-password", token, fiber.Map{
		"old_auth_hash": "hash-1", "new_auth_hash": "hash-2", "new_salt": "salt-2",
		"vault_ciphertext": "ct2", "vault_iv": "iv2", "vault_version": 2,
	})
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404 without vault, got %d (%v)", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, app, fiber.MethodPost, "/vault", token, fiber.Map{
		"vault_id": vaultID, "ciphertext": "ct", "iv": "iv", "salt": "salt-1", "version": 1,
	})
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("create vault: expected 201 got %d", resp.StatusCode)
	}

	resp, body = doJSON(t, app, fiber.MethodPost, "/auth/change-password", token, fiber.Map{
		"old_auth_hash": "hash-1", "new_auth_hash": "hash-2", "new_salt": "salt-2",
		"vault_ciphertext": "ct2", "vault_iv": "iv2", "vault_version": 2,
	})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("change password: expected 200 got %d (%v)", resp.StatusCode, body)
	}

	// The pre-rotation token is revoked.
	resp, _ = doJSON(t, app, fiber.MethodGet, "/vault/"+vaultID, token, nil)
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("stale token: expected 401 got %d", resp.StatusCode)
	}

	resp, body = doJSON(t, app, fiber.MethodPost, "/auth/login", "", fiber.Map{
		"username": "alice", "auth_hash": "hash-2",
	})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("login with new credentials: expected 200 got %d (%v)", resp.StatusCode, body)
	}
	newToken, _ := body["access_token"].(string)

	resp, body = doJSON(t, app, fiber.MethodGet, "/vault/"+vaultID, newToken, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("get vault: expected 200 got %d", resp.StatusCode)
	}
	if body["ciphertext"] != "ct2" || body["salt"] != "salt-2" {
		t.Fatalf("vault should carry rotated blob and salt, got %v", body)
	}
}

func TestDeleteAccountEndpoint(t *testing.T) {
	srv := testServer(t)
	app := srv.App()
	token := registerUser(t, app, "alice", "hash-1", "salt-1")

	resp, body := doJSON(t, app, fiber.MethodDelete, "/auth/account", token, fiber.Map{
		"password_auth_hash": "wrong",
	})
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong credential, got %d (%v)", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, app, fiber.MethodDelete, "/auth/account", token, fiber.Map{
		"password_auth_hash": "hash-1",
	})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, app, fiber.MethodPost, "/auth/login", "", fiber.Map{
		"username": "alice", "auth_hash": "hash-1",
	})
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("deleted identity should not log in, got %d", resp.StatusCode)
	}
}

func TestSaltsEndpoint(t *testing.T) {
	srv := testServer(t)
	app := srv.App()
	registerUser(t, app, "alice", "hash-1", "salt-1")
	registerUser(t, app, "alice", "hash-2", "salt-2")

	resp, body := doJSON(t, app, fiber.MethodGet, "/auth/salts?username=alice", "", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 got %d (%v)", resp.StatusCode, body)
	}
	salts, ok := body["salts"].([]any)
	if !ok || len(salts) != 2 {
		t.Fatalf("expected 2 salts, got %v", body)
	}

	resp, body = doJSON(t, app, fiber.MethodGet, "/auth/salts?username=ghost", "", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 for unknown username, got %d", resp.StatusCode)
	}
	if salts, ok := body["salts"].([]any); !ok || len(salts) != 0 {
		t.Fatalf("expected empty salts list, got %v", body)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := testServer(t)
	app := srv.App()

	resp, body := doJSON(t, app, fiber.MethodGet, "/health", "", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 got %d", resp.StatusCode)
	}
	if body["status"] != "healthy" {
		t.Fatalf("expected healthy status, got %v", body)
	}
}
