package http

import (
	"encoding/json"
	"net/http"

	"smsledger/internal/core"
)

// TransactionResponse is the wire form of a stored transaction. Absent
// optional fields are null.
type TransactionResponse struct {
	ID             int64   `json:"id"`
	Category       string  `json:"category"`
	Datetime       string  `json:"datetime"`
	Amount         int64   `json:"amount"`
	Fee            int64   `json:"fee"`
	Recipient      *string `json:"recipient"`
	Code           *string `json:"code"`
	AccountOrPhone *string `json:"account_or_phone"`
	Sender         *string `json:"sender"`
	RawText        string  `json:"raw_text"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toResponse(r core.TransactionRecord) TransactionResponse {
	return TransactionResponse{
		ID:             r.ID,
		Category:       r.Category.String(),
		Datetime:       r.Datetime,
		Amount:         r.Amount,
		Fee:            r.Fee,
		Recipient:      r.Recipient,
		Code:           r.Code,
		AccountOrPhone: r.AccountOrPhone,
		Sender:         r.Sender,
		RawText:        r.RawText,
	}
}

func toResponses(recs []core.TransactionRecord) []TransactionResponse {
	out := make([]TransactionResponse, 0, len(recs))
	for _, r := range recs {
		out = append(out, toResponse(r))
	}
	return out
}

// encodeJSON renders v once so it can be cached and replayed.
func encodeJSON(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := encodeJSON(v)
	if err != nil {
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeRaw(w, status, body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
