package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/splitfold/royalty/internal/proof"
	settlementdomain "github.com/splitfold/royalty/internal/settlement/domain"
)

type finalizeResponse struct {
	OK                    bool       `json:"ok"`
	ReceiptToken          string     `json:"receiptToken,omitempty"`
	ReceiptTokenExpiresAt *time.Time `json:"receiptTokenExpiresAt,omitempty"`
}

func (s *Server) finalizePurchaseIntent(c *gin.Context) {
	intentID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.settlementSvc.Finalize(c.Request.Context(), settlementdomain.FinalizeRequest{
		PurchaseIntentID: intentID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, finalizeResponse{
		OK:                    true,
		ReceiptToken:          resp.ReceiptToken,
		ReceiptTokenExpiresAt: resp.ReceiptTokenExpiresAt,
	})
}

func (s *Server) exportProofBundle(c *gin.Context) {
	intentID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	bundle, err := s.settlementSvc.ExportProofBundle(c.Request.Context(), settlementdomain.ExportBundleRequest{
		PurchaseIntentID: intentID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, bundle)
}

type verifyResponse struct {
	OK        bool                   `json:"ok"`
	Errors    []string               `json:"errors,omitempty"`
	Recipient *proof.RecipientReport `json:"recipient,omitempty"`
}

func (s *Server) verifyProofBundle(c *gin.Context) {
	var bundle proof.Bundle
	if err := c.ShouldBindJSON(&bundle); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result := proof.Verify(bundle, proof.Options{
		RecipientRef: strings.TrimSpace(c.Query("recipient")),
	})
	if s.obsMetrics != nil {
		s.obsMetrics.RecordProofVerification(c.Request.Context(), result.OK)
	}

	c.JSON(http.StatusOK, verifyResponse{
		OK:        result.OK,
		Errors:    result.Errors,
		Recipient: result.Recipient,
	})
}

func parseID(raw string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(raw))
}
