package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/quillnotes/quill/internal/util"
)

const minPasswordLen = 8

// Register handles POST /auth/register.
func (a *API) Register(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[RegisterRequest](w, r)
	if !ok {
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}
	if len(req.Password) < minPasswordLen {
		writeError(w, http.StatusBadRequest, "password is too short")
		return
	}
	if raw, err := util.B64Decode(req.PublicKey); err != nil || len(raw) != util.KeySize {
		writeError(w, http.StatusBadRequest, "public_key must be a base64 32-byte key")
		return
	}

	salt, err := util.RandomBytes(16)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create account")
		return
	}
	params := util.DefaultArgon2idParams()
	hash, err := util.DeriveArgon2idKey(req.Password, salt, params)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create account")
		return
	}

	rec := accountRecord{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PublicKey:    req.PublicKey,
		PasswordSalt: salt,
		PasswordHash: hash,
		PasswordKDF:  params,
		CreatedAt:    time.Now().UTC(),
	}
	if err := a.store.CreateAccount(rec); err != nil {
		mapError(w, err)
		return
	}

	a.log.Info("account registered", "account_id", rec.ID)
	writeJSON(w, http.StatusCreated, a.issueToken(rec))
}

// Login handles POST /auth/login. Unknown emails and wrong passwords get
// the same response.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[LoginRequest](w, r)
	if !ok {
		return
	}

	rec, err := a.store.AccountByEmail(req.Email)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	match, err := util.CompareArgon2idKey(req.Password, rec.PasswordSalt, rec.PasswordKDF, rec.PasswordHash)
	if err != nil || !match {
		a.log.Info("login failed", "account_id", rec.ID)
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	a.log.Info("login succeeded", "account_id", rec.ID)
	writeJSON(w, http.StatusOK, a.issueToken(*rec))
}

// MeHandler handles GET /me.
func (a *API) MeHandler(w http.ResponseWriter, r *http.Request) {
	rec, err := a.store.AccountByID(accountIDFromContext(r.Context()))
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accountResponse(rec))
}

func (a *API) issueToken(rec accountRecord) AuthResponse {
	token := uuid.NewString()
	a.tokens.put(token, tokenSession{
		AccountID: rec.ID,
		ExpiresAt: time.Now().Add(tokenDuration),
	})
	return AuthResponse{Token: token, Account: accountResponse(&rec)}
}

func accountResponse(rec *accountRecord) AccountResponse {
	return AccountResponse{
		ID:        rec.ID,
		Email:     rec.Email,
		PublicKey: rec.PublicKey,
	}
}
