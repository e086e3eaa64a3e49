package contact

import (
	"encoding/json"
	"strconv"
	"strings"
)

// loginRequest is the credentials payload for the login endpoint
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse carries the session token returned on login
type loginResponse struct {
	Token string `json:"token"`
}

// accountsResponse is the account summary payload
type accountsResponse struct {
	Accounts []accountDetail `json:"accounts"`
}

type accountDetail struct {
	ID        string           `json:"id"`
	Contracts []contractDetail `json:"contracts"`
}

type contractDetail struct {
	ID string `json:"id"`
}

// rawDatum is one entry of a usage payload as the API actually sends it.
// Numeric fields arrive as JSON numbers or quoted strings depending on the
// endpoint and contract type, so everything numeric is a flexFloat.
type rawDatum struct {
	Date               string     `json:"date"`
	Value              *flexFloat `json:"value"`
	Unit               string     `json:"unit"`
	DollarValue        *flexFloat `json:"dollarValue"`
	OffpeakValue       *flexFloat `json:"offpeakValue"`
	OffpeakDollarValue *flexFloat `json:"offpeakDollarValue"`
	UnchargedValue     *flexFloat `json:"unchargedValue"`
}

// flexFloat unmarshals from a JSON number or a numeric string
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

func (f *flexFloat) ptr() *float64 {
	if f == nil {
		return nil
	}
	v := float64(*f)
	return &v
}

// looksLikeList reports whether a payload is a JSON array without decoding it
func looksLikeList(payload json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(payload))
	return strings.HasPrefix(trimmed, "[")
}
