package entity

// Account is a stored game together with the identities the host keeps beside it.
type Account struct {
	ID      string `json:"id"`
	Creator string `json:"creator"`
	Game    Game   `json:"game"`
}
