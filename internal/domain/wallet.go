package domain

import "time"

// Wallet balances are in minor units and never negative. Only the wallet
// usecase mutates them, always under a row lock.
type Wallet struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"owner_id"`
	Currency       string    `json:"currency"`
	AvailableCents int64     `json:"available_cents"`
	PendingCents   int64     `json:"pending_cents"`
	Version        int64     `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (w *Wallet) TotalCents() int64 {
	return w.AvailableCents + w.PendingCents
}

func (w *Wallet) Clone() *Wallet {
	if w == nil {
		return nil
	}
	c := *w
	return &c
}

type Bucket string

const (
	BucketAvailable Bucket = "AVAILABLE"
	BucketPending   Bucket = "PENDING"
)

type LedgerReason string

const (
	ReasonFundHold    LedgerReason = "FUND_HOLD"
	ReasonFundRelease LedgerReason = "FUND_RELEASE"
	ReasonFundRefund  LedgerReason = "FUND_REFUND"
	ReasonFeeRevenue  LedgerReason = "FEE_REVENUE"
	ReasonDeposit     LedgerReason = "DEPOSIT"
	ReasonWithdrawal  LedgerReason = "WITHDRAWAL"
)

// IsExternal reports whether the reason moves money across the platform boundary.
func (r LedgerReason) IsExternal() bool {
	return r == ReasonDeposit || r == ReasonWithdrawal
}

// LedgerEntry is one immutable delta against one balance bucket.
type LedgerEntry struct {
	ID              string       `json:"id"`
	WalletID        string       `json:"wallet_id"`
	Bucket          Bucket       `json:"bucket"`
	DeltaCents      int64        `json:"delta_cents"`
	Reason          LedgerReason `json:"reason"`
	RelatedEscrowID *string      `json:"related_escrow_id,omitempty"`
	Reference       *string      `json:"reference,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}

// LedgerSums are per-bucket sums of a wallet's ledger.
type LedgerSums struct {
	AvailableCents int64 `json:"available_cents"`
	PendingCents   int64 `json:"pending_cents"`
	ExternalCents  int64 `json:"external_cents"`
}

func (s LedgerSums) Total() int64 {
	return s.AvailableCents + s.PendingCents
}

type ReconcileReport struct {
	WalletID  string     `json:"wallet_id"`
	Wallet    *Wallet    `json:"wallet"`
	Ledger    LedgerSums `json:"ledger"`
	Balanced  bool       `json:"balanced"`
	CheckedAt time.Time  `json:"checked_at"`
}
