package hrest

import "escrow-service/internal/domain"

// Amount bounds mirror domain.MaxAmountCents.
type CreateEscrowRequest struct {
	SellerID    string `json:"seller_id" validate:"required,max=64"`
	AmountCents int64  `json:"amount_cents" validate:"gt=0,lte=1000000000000000"`
	Currency    string `json:"currency" validate:"omitempty,len=3"`
	Description string `json:"description" validate:"max=500"`
}

type ShipRequest struct {
	TrackingNumber string `json:"tracking_number" validate:"max=100"`
	Carrier        string `json:"carrier" validate:"max=100"`
}

type RefundRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type MilestoneRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=1000"`
	AmountCents int64  `json:"amount_cents" validate:"gt=0,lte=1000000000000000"`
}

type CreateMilestonesRequest struct {
	Milestones []MilestoneRequest `json:"milestones" validate:"required,min=1,max=50,dive"`
}

type OpenDisputeRequest struct {
	Reason      string `json:"reason" validate:"required,oneof=NOT_RECEIVED DAMAGED WRONG_ITEM OTHER"`
	Description string `json:"description" validate:"max=2000"`
}

type ResolveDisputeRequest struct {
	Outcome          string `json:"outcome" validate:"required,oneof=RELEASE REFUND SPLIT"`
	BuyerRefundCents int64  `json:"buyer_refund_cents" validate:"gte=0,lte=1000000000000000"`
	Note             string `json:"note" validate:"max=2000"`
}

type AmountRequest struct {
	AmountCents int64  `json:"amount_cents" validate:"gt=0,lte=1000000000000000"`
	Reference   string `json:"reference" validate:"max=200"`
}

// ================================
// VIEWS
// ================================

// EscrowView adds display strings next to the integer amounts.
type EscrowView struct {
	*domain.EscrowAgreement
	AmountDisplay string `json:"amount_display"`
	FeeDisplay    string `json:"fee_display"`
	NetDisplay    string `json:"net_amount_display"`
}

func escrowView(e *domain.EscrowAgreement) EscrowView {
	return EscrowView{
		EscrowAgreement: e,
		AmountDisplay:   domain.FormatMinor(e.AmountCents, minorExponent),
		FeeDisplay:      domain.FormatMinor(e.FeeCents, minorExponent),
		NetDisplay:      domain.FormatMinor(e.NetAmountCents, minorExponent),
	}
}

func escrowViews(es []*domain.EscrowAgreement) []EscrowView {
	out := make([]EscrowView, 0, len(es))
	for _, e := range es {
		out = append(out, escrowView(e))
	}
	return out
}

type WalletView struct {
	*domain.Wallet
	AvailableDisplay string `json:"available_display"`
	PendingDisplay   string `json:"pending_display"`
}

func walletView(w *domain.Wallet) WalletView {
	return WalletView{
		Wallet:           w,
		AvailableDisplay: domain.FormatMinor(w.AvailableCents, minorExponent),
		PendingDisplay:   domain.FormatMinor(w.PendingCents, minorExponent),
	}
}
