package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/splitfold/royalty/internal/proof"
)

type FinalizeRequest struct {
	PurchaseIntentID snowflake.ID
}

type FinalizeResponse struct {
	ReceiptToken          string     `json:"receipt_token"`
	ReceiptTokenExpiresAt *time.Time `json:"receipt_token_expires_at"`
}

type ExportBundleRequest struct {
	PurchaseIntentID snowflake.ID
}

type Service interface {
	// Finalize converts one paid purchase intent into persisted settlement
	// lines, an access entitlement and a receipt token. It is safe to call
	// more than once for the same intent; after the first successful run
	// every call yields the same outcome.
	Finalize(ctx context.Context, req FinalizeRequest) (FinalizeResponse, error)

	// ExportProofBundle assembles the independently verifiable proof
	// document for a finalized purchase intent.
	ExportProofBundle(ctx context.Context, req ExportBundleRequest) (proof.Bundle, error)
}

// Precondition and validation failures abort finalization with nothing
// persisted. Business-rule conflicts carry distinct identities so callers
// can surface them to the operator instead of retrying blindly.
var (
	ErrIntentNotFound       = errors.New("intent_not_found")
	ErrIntentNotPaid        = errors.New("intent_not_paid")
	ErrInvalidPurpose       = errors.New("invalid_purpose")
	ErrManifestMissing      = errors.New("manifest_fingerprint_missing")
	ErrContentNotFound      = errors.New("content_not_found")
	ErrNoLockedSplit        = errors.New("no_locked_split")
	ErrMultipleParents      = errors.New("multiple_parents_not_supported")
	ErrParentSplitNotLocked = errors.New("parent_split_not_locked")
	ErrNotSettled           = errors.New("settlement_not_found")
)
