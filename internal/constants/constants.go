package constants

// User roles
const (
	ROLE_CLIENT  = "CLIENT"
	ROLE_AGENT   = "AGENT"
	ROLE_ADMIN   = "ADMIN"
	ROLE_PARTNER = "PARTNER"
)

// Account statuses. Agents and partners are created pending approval and
// cannot act until an admin activates them.
const (
	ACCOUNT_STATUS_ACTIVE           = "ACTIVE"
	ACCOUNT_STATUS_PENDING_APPROVAL = "PENDING_APPROVAL"
	ACCOUNT_STATUS_DELETED          = "DELETED"
)

// Service types handled by the brokerage
const (
	SERVICE_ETAT_CIVIL          = "ETAT_CIVIL"
	SERVICE_CASIER_JUDICIAIRE   = "CASIER_JUDICIAIRE"
	SERVICE_LEGALISATION        = "LEGALISATION"
	SERVICE_CREATION_ENTREPRISE = "CREATION_ENTREPRISE"
	SERVICE_GESTION_DOSSIER     = "GESTION_DOSSIER"
)

// Service request statuses
const (
	REQUEST_STATUS_PENDING     = "PENDING"
	REQUEST_STATUS_IN_PROGRESS = "IN_PROGRESS"
	REQUEST_STATUS_VALIDATED   = "VALIDATED"
	REQUEST_STATUS_REJECTED    = "REJECTED"
)

// Payment methods for a service request
const (
	PAYMENT_METHOD_WALLET = "WALLET"
	PAYMENT_METHOD_DIRECT = "DIRECT"
)

// Ledger entry kinds
const (
	LEDGER_KIND_SERVICE_PAYMENT  = "SERVICE_PAYMENT"
	LEDGER_KIND_REFERRAL_BONUS   = "REFERRAL_BONUS"
	LEDGER_KIND_AGENT_COMMISSION = "AGENT_COMMISSION"
	LEDGER_KIND_WALLET_RECHARGE  = "WALLET_RECHARGE"
	LEDGER_KIND_WITHDRAWAL       = "WITHDRAWAL"
	LEDGER_KIND_REFUND           = "REFUND"
)

// Withdrawal request statuses
const (
	WITHDRAWAL_STATUS_PENDING   = "pending"
	WITHDRAWAL_STATUS_APPROVED  = "approved"
	WITHDRAWAL_STATUS_REJECTED  = "rejected"
	WITHDRAWAL_STATUS_COMPLETED = "completed"
)

// Blog comment moderation statuses
const (
	COMMENT_STATUS_PENDING  = "PENDING"
	COMMENT_STATUS_APPROVED = "APPROVED"
	COMMENT_STATUS_REJECTED = "REJECTED"
)

// Activity log actions
const (
	ACTIVITY_LOGIN          = "LOGIN"
	ACTIVITY_REGISTER       = "REGISTER"
	ACTIVITY_CREATE_REQUEST = "CREATE_REQUEST"
	ACTIVITY_UPDATE_STATUS  = "UPDATE_STATUS"
	ACTIVITY_COMMENT        = "COMMENT"
	ACTIVITY_WITHDRAWAL     = "WITHDRAWAL"
	ACTIVITY_RECHARGE       = "RECHARGE"
	ACTIVITY_CONFIG_CHANGE  = "CONFIG_CHANGE"
)

// Default fee schedule, FCFA. The live values are admin-editable and live in
// the fee_config table; these seed a fresh installation.
const (
	DEFAULT_PRICE_ETAT_CIVIL          = 5000
	DEFAULT_PRICE_CASIER_JUDICIAIRE   = 3500
	DEFAULT_PRICE_LEGALISATION        = 2000
	DEFAULT_PRICE_CREATION_ENTREPRISE = 50000
	DEFAULT_PRICE_GESTION_DOSSIER     = 5000

	DEFAULT_COMMISSION_AGENT_PERCENT = 10
	DEFAULT_REFERRAL_BONUS           = 500
	DEFAULT_MIN_WITHDRAWAL           = 2000
)

// IsValidServiceType reports whether t is one of the supported service types.
func IsValidServiceType(t string) bool {
	switch t {
	case SERVICE_ETAT_CIVIL, SERVICE_CASIER_JUDICIAIRE, SERVICE_LEGALISATION,
		SERVICE_CREATION_ENTREPRISE, SERVICE_GESTION_DOSSIER:
		return true
	}
	return false
}

// IsValidRole reports whether r is a known user role.
func IsValidRole(r string) bool {
	switch r {
	case ROLE_CLIENT, ROLE_AGENT, ROLE_ADMIN, ROLE_PARTNER:
		return true
	}
	return false
}

// IsTerminalRequestStatus reports whether a request status is terminal.
// VALIDATED and REJECTED requests are immutable.
func IsTerminalRequestStatus(s string) bool {
	return s == REQUEST_STATUS_VALIDATED || s == REQUEST_STATUS_REJECTED
}
