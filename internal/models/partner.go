package models

// Partner types, also used as document-template categories.
const (
	PartnerClientDUC   = "client_duc"
	PartnerClientDL    = "client_dl"
	PartnerFurnizorDUC = "furnizor_duc"
	PartnerFurnizorDL  = "furnizor_dl"

	// CategoryAll lets each partner's own classification pick the template.
	CategoryAll = "all"
)

// Partner is a client or supplier counterparty.
type Partner struct {
	ID             string `firestore:"-" json:"id"`
	Name           string `firestore:"name" json:"name"`
	CUI            string `firestore:"cui,omitempty" json:"cui,omitempty"`
	ONRC           string `firestore:"onrc,omitempty" json:"onrc,omitempty"`
	Email          string `firestore:"email,omitempty" json:"email,omitempty"`
	Representative string `firestore:"representative,omitempty" json:"representative,omitempty"`
	Address        string `firestore:"address,omitempty" json:"address,omitempty"`
	Phone          string `firestore:"phone,omitempty" json:"phone,omitempty"`
	ClientDUC      bool   `firestore:"clientDuc" json:"clientDuc"`
	ClientDL       bool   `firestore:"clientDl" json:"clientDl"`
	FurnizorDUC    bool   `firestore:"furnizorDuc" json:"furnizorDuc"`
	FurnizorDL     bool   `firestore:"furnizorDl" json:"furnizorDl"`
	Active         bool   `firestore:"active" json:"active"`
}
