package models

// FunnelStage is derived from document and payment flags at read time and never stored.
type FunnelStage string

const (
	StageSales                FunnelStage = "sales"
	StageDocumentVerification FunnelStage = "document_verification"
	StagePayment              FunnelStage = "payment"
	StagePostPayment          FunnelStage = "post_payment"
)

// StageInputs is the full set of facts a stage depends on.
type StageInputs struct {
	DocumentPending  bool
	PaymentPending   bool
	PaymentCompleted bool
}

func (u *User) StageInputs() StageInputs {
	return StageInputs{
		DocumentPending:  u.DocumentPending(),
		PaymentPending:   u.PaymentPending(),
		PaymentCompleted: u.PaymentCompleted(),
	}
}

// Stage maps the inputs to a funnel stage.
func (in StageInputs) Stage() FunnelStage {
	switch {
	case in.DocumentPending:
		return StageDocumentVerification
	case in.PaymentPending && !in.PaymentCompleted:
		return StagePayment
	case in.PaymentCompleted:
		return StagePostPayment
	default:
		return StageSales
	}
}
