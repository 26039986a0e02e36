package httpapi

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"delivro/models"
)

type verifyRequestBody struct {
	Phone string `json:"phone"`
}

type verifyRequestResponse struct {
	CodeID    string `json:"code_id"`
	Message   string `json:"message"`
	ExpiresAt string `json:"expires_at"`
}

// handleVerifyRequest issues a verification code for a phone and returns
// the challenge id plus the composed message for the messaging transport to
// deliver.
func (s *Server) handleVerifyRequest(w http.ResponseWriter, r *http.Request) {
	var req verifyRequestBody
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	ch, err := s.verify.RequestCode(req.Phone)
	if err != nil {
		s.writeError(w, err)
		return
	}
	// The message is meant for a chat deep link; here the transport is the
	// log and the response body.
	s.log.WithFields(logrus.Fields{"phone": ch.Phone, "code_id": ch.CodeID}).Info("verification code issued")
	s.writeJSON(w, http.StatusCreated, verifyRequestResponse{
		CodeID:    ch.CodeID,
		Message:   ch.Message,
		ExpiresAt: ch.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z"),
	})
}

type verifyConfirmBody struct {
	CodeID string `json:"code_id"`
	Code   string `json:"code"`
}

func (s *Server) handleVerifyConfirm(w http.ResponseWriter, r *http.Request) {
	var req verifyConfirmBody
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.CodeID == "" || req.Code == "" {
		s.writeError(w, models.Validationf("code_id and code are required"))
		return
	}
	ok, err := s.verify.ConfirmCode(r.Context(), req.CodeID, req.Code)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !ok {
		s.writeJSON(w, http.StatusOK, map[string]bool{"verified": false})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"verified": true})
}
