package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// CreateEntry handles POST /entries. The owner's wrapped entry key is
// stored as the first access key.
func (a *API) CreateEntry(w http.ResponseWriter, r *http.Request) {
	accountID := accountIDFromContext(r.Context())
	req, ok := decodeJSON[EntryRequest](w, r)
	if !ok {
		return
	}
	if req.EncryptedContent == "" || req.EncryptionMetadata == "" {
		writeError(w, http.StatusBadRequest, "encrypted_content and encryption_metadata are required")
		return
	}
	if req.OwnerEncryptedKey == "" || req.OwnerKeyNonce == "" {
		writeError(w, http.StatusBadRequest, "owner entry key is required")
		return
	}

	now := time.Now().UTC()
	rec := entryRecord{
		ID:                   uuid.NewString(),
		AuthorID:             accountID,
		EncryptedTitle:       req.EncryptedTitle,
		EncryptedContent:     req.EncryptedContent,
		EncryptedFrontmatter: req.EncryptedFrontmatter,
		EncryptionMetadata:   req.EncryptionMetadata,
		TitleHash:            req.TitleHash,
		ContentPreviewHash:   req.ContentPreviewHash,
		IsPublished:          req.IsPublished,
		FilePath:             req.FilePath,
		TagIDs:               req.TagIDs,
		ClientModifiedAt:     req.ClientModifiedAt,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := a.store.PutEntry(rec); err != nil {
		mapError(w, err)
		return
	}
	if err := a.store.PutAccessKeys([]accessKeyRecord{{
		EntryID:           rec.ID,
		UserID:            accountID,
		EncryptedEntryKey: req.OwnerEncryptedKey,
		KeyNonce:          req.OwnerKeyNonce,
		CreatedAt:         now,
	}}); err != nil {
		mapError(w, err)
		return
	}

	a.log.Info("entry published", "entry_id", rec.ID, "author_id", accountID)
	a.writeEntry(w, http.StatusCreated, &rec, accountID)
}

// GetEntry handles GET /entries/{entryID}. Only the author and grantees
// can read an entry; everyone else sees a 404 rather than a 403, so entry
// ids leak nothing about what exists.
func (a *API) GetEntry(w http.ResponseWriter, r *http.Request) {
	accountID := accountIDFromContext(r.Context())
	rec, err := a.store.GetEntry(chi.URLParam(r, "entryID"))
	if err != nil {
		mapError(w, err)
		return
	}
	if !a.canRead(rec, accountID) {
		writeError(w, http.StatusNotFound, ErrNotFound.Error())
		return
	}
	a.writeEntry(w, http.StatusOK, rec, accountID)
}

// UpdateEntry handles PUT /entries/{entryID}. When the request carries
// if_unmodified_since and the stored copy is newer, the write is rejected
// with 409: the optimistic-concurrency backstop for two clients racing on
// the same entry.
func (a *API) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	accountID := accountIDFromContext(r.Context())
	rec, err := a.store.GetEntry(chi.URLParam(r, "entryID"))
	if err != nil {
		mapError(w, err)
		return
	}
	if rec.AuthorID != accountID {
		writeError(w, http.StatusForbidden, "only the author can update an entry")
		return
	}

	req, ok := decodeJSON[EntryRequest](w, r)
	if !ok {
		return
	}
	if req.IfUnmodifiedSince != nil && rec.UpdatedAt.After(*req.IfUnmodifiedSince) {
		writeError(w, http.StatusConflict, "entry was modified since last sync")
		return
	}

	now := time.Now().UTC()
	rec.EncryptedTitle = req.EncryptedTitle
	rec.EncryptedContent = req.EncryptedContent
	rec.EncryptedFrontmatter = req.EncryptedFrontmatter
	rec.EncryptionMetadata = req.EncryptionMetadata
	rec.TitleHash = req.TitleHash
	rec.ContentPreviewHash = req.ContentPreviewHash
	rec.IsPublished = req.IsPublished
	rec.FilePath = req.FilePath
	rec.TagIDs = req.TagIDs
	rec.ClientModifiedAt = req.ClientModifiedAt
	rec.UpdatedAt = now
	if err := a.store.PutEntry(*rec); err != nil {
		mapError(w, err)
		return
	}

	// The wrapped key normally survives edits unchanged, but a client that
	// re-keyed the entry uploads the new owner wrap here.
	if req.OwnerEncryptedKey != "" && req.OwnerKeyNonce != "" {
		if err := a.store.PutAccessKeys([]accessKeyRecord{{
			EntryID:           rec.ID,
			UserID:            accountID,
			EncryptedEntryKey: req.OwnerEncryptedKey,
			KeyNonce:          req.OwnerKeyNonce,
			CreatedAt:         now,
		}}); err != nil {
			mapError(w, err)
			return
		}
	}

	a.writeEntry(w, http.StatusOK, rec, accountID)
}

// DeleteEntry handles DELETE /entries/{entryID}.
func (a *API) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	accountID := accountIDFromContext(r.Context())
	rec, err := a.store.GetEntry(chi.URLParam(r, "entryID"))
	if err != nil {
		mapError(w, err)
		return
	}
	if rec.AuthorID != accountID {
		writeError(w, http.StatusForbidden, "only the author can delete an entry")
		return
	}
	if err := a.store.DeleteEntry(rec.ID); err != nil {
		mapError(w, err)
		return
	}
	a.log.Info("entry unpublished", "entry_id", rec.ID, "author_id", accountID)
	w.WriteHeader(http.StatusNoContent)
}

// ListEntries handles GET /entries: everything the caller owns or was
// granted access to.
func (a *API) ListEntries(w http.ResponseWriter, r *http.Request) {
	accountID := accountIDFromContext(r.Context())
	recs, err := a.store.ListEntriesFor(accountID)
	if err != nil {
		mapError(w, err)
		return
	}

	out := make([]EntryResponse, 0, len(recs))
	for i := range recs {
		out = append(out, a.entryResponse(&recs[i], accountID))
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateAccessKeys handles POST /entries/{entryID}/access-keys, the
// batched sharing grant.
func (a *API) CreateAccessKeys(w http.ResponseWriter, r *http.Request) {
	accountID := accountIDFromContext(r.Context())
	rec, err := a.store.GetEntry(chi.URLParam(r, "entryID"))
	if err != nil {
		mapError(w, err)
		return
	}
	if rec.AuthorID != accountID {
		writeError(w, http.StatusForbidden, "only the author can share an entry")
		return
	}

	req, ok := decodeJSON[CreateAccessKeysRequest](w, r)
	if !ok {
		return
	}
	if len(req.Keys) == 0 {
		writeError(w, http.StatusBadRequest, "keys must not be empty")
		return
	}

	now := time.Now().UTC()
	recs := make([]accessKeyRecord, 0, len(req.Keys))
	for _, k := range req.Keys {
		if k.UserID == "" || k.EncryptedEntryKey == "" || k.KeyNonce == "" {
			writeError(w, http.StatusBadRequest, "each key needs user_id, encrypted_entry_key, and key_nonce")
			return
		}
		recs = append(recs, accessKeyRecord{
			EntryID:           rec.ID,
			UserID:            k.UserID,
			EncryptedEntryKey: k.EncryptedEntryKey,
			KeyNonce:          k.KeyNonce,
			CreatedAt:         now,
		})
	}
	if err := a.store.PutAccessKeys(recs); err != nil {
		mapError(w, err)
		return
	}

	a.log.Info("access keys granted", "entry_id", rec.ID, "count", len(recs))
	w.WriteHeader(http.StatusCreated)
}

// ListAccessKeys handles GET /entries/{entryID}/access-keys.
func (a *API) ListAccessKeys(w http.ResponseWriter, r *http.Request) {
	accountID := accountIDFromContext(r.Context())
	rec, err := a.store.GetEntry(chi.URLParam(r, "entryID"))
	if err != nil {
		mapError(w, err)
		return
	}
	if rec.AuthorID != accountID {
		writeError(w, http.StatusForbidden, "only the author can list access keys")
		return
	}

	recs, err := a.store.ListAccessKeys(rec.ID)
	if err != nil {
		mapError(w, err)
		return
	}
	out := make([]AccessKeyResponse, 0, len(recs))
	for _, k := range recs {
		out = append(out, accessKeyResponse(k))
	}
	writeJSON(w, http.StatusOK, out)
}

// RevokeAccessKey handles DELETE /entries/{entryID}/access-keys/{userID}.
func (a *API) RevokeAccessKey(w http.ResponseWriter, r *http.Request) {
	accountID := accountIDFromContext(r.Context())
	rec, err := a.store.GetEntry(chi.URLParam(r, "entryID"))
	if err != nil {
		mapError(w, err)
		return
	}
	if rec.AuthorID != accountID {
		writeError(w, http.StatusForbidden, "only the author can revoke access")
		return
	}
	if err := a.store.DeleteAccessKey(rec.ID, chi.URLParam(r, "userID")); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) canRead(rec *entryRecord, accountID string) bool {
	if rec.AuthorID == accountID {
		return true
	}
	_, err := a.store.AccessKey(rec.ID, accountID)
	return err == nil
}

func (a *API) writeEntry(w http.ResponseWriter, status int, rec *entryRecord, accountID string) {
	writeJSON(w, status, a.entryResponse(rec, accountID))
}

// entryResponse shapes one entry for a caller, attaching their access key
// and the author's public key so share-wrapped entries can be opened.
func (a *API) entryResponse(rec *entryRecord, accountID string) EntryResponse {
	resp := EntryResponse{
		ID:                   rec.ID,
		AuthorID:             rec.AuthorID,
		EncryptedTitle:       rec.EncryptedTitle,
		EncryptedContent:     rec.EncryptedContent,
		EncryptedFrontmatter: rec.EncryptedFrontmatter,
		EncryptionMetadata:   rec.EncryptionMetadata,
		TitleHash:            rec.TitleHash,
		ContentPreviewHash:   rec.ContentPreviewHash,
		IsPublished:          rec.IsPublished,
		FilePath:             rec.FilePath,
		CreatedAt:            rec.CreatedAt,
		UpdatedAt:            rec.UpdatedAt,
	}
	if author, err := a.store.AccountByID(rec.AuthorID); err == nil {
		resp.AuthorPublicKey = author.PublicKey
	}
	if key, err := a.store.AccessKey(rec.ID, accountID); err == nil {
		ak := accessKeyResponse(*key)
		resp.AccessKey = &ak
	}
	return resp
}

func accessKeyResponse(rec accessKeyRecord) AccessKeyResponse {
	return AccessKeyResponse{
		EntryID:           rec.EntryID,
		UserID:            rec.UserID,
		EncryptedEntryKey: rec.EncryptedEntryKey,
		KeyNonce:          rec.KeyNonce,
		CreatedAt:         rec.CreatedAt,
	}
}
