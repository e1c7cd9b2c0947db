package dto

type UploadDocumentResponse struct {
	Success    bool   `json:"success"`
	IsValid    bool   `json:"is_valid"`
	DocumentID string `json:"document_id,omitempty"`
	Analysis   string `json:"analysis,omitempty"`
	Superseded bool   `json:"superseded,omitempty"`
}

type CheckPaymentResponse struct {
	Success          bool   `json:"success"`
	Status           string `json:"status"`
	PaymentCompleted bool   `json:"payment_completed"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
}

type PaymentDetailsResponse struct {
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
