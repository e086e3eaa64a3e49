package models

// Contract is a billing/metering agreement with the utility provider.
// It is the unit of sync and query granularity.
type Contract struct {
	ContractID string `json:"contract_id"`
	AccountID  string `json:"account_id"`
}

// Account groups one or more contracts under a customer identity.
type Account struct {
	AccountID string     `json:"account_id"`
	Contracts []Contract `json:"contracts"`
}
