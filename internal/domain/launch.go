package domain

import "github.com/shopspring/decimal"

// SocialLinks holds optional community links shown next to a token.
type SocialLinks struct {
	Twitter  string `json:"twitter,omitempty"`
	Telegram string `json:"telegram,omitempty"`
	Website  string `json:"website,omitempty"`
}

// FeeClaimant is a third party receiving a share of trading fees.
type FeeClaimant struct {
	IdentityRef string `json:"identity"`    // wallet address or provider handle
	BasisPoints int    `json:"basisPoints"` // 1/100 of a percent
}

// ImageAsset is a raw image payload with its MIME type.
type ImageAsset struct {
	Data     []byte
	MimeType string
	Filename string
}

// LaunchRequest is the caller-supplied input of a launch attempt.
type LaunchRequest struct {
	Name                string
	Symbol              string
	Description         string
	Image               ImageAsset
	Socials             SocialLinks
	CreatorIdentity     string          // base58 public key of the signing wallet
	InitialContribution decimal.Decimal // SOL pre-committed at launch (zero = none)
	FeeClaimants        []FeeClaimant
}

// MetadataRecord is returned by the metadata publisher. Immutable.
type MetadataRecord struct {
	TokenIdentity     string `json:"tokenMint"`
	MetadataReference string `json:"metadataUri"`
	ResolvedImageURL  string `json:"imageUrl,omitempty"`
}

// LaunchRecord is a confirmed launch.
// Corresponds to launches table in PostgreSQL.
type LaunchRecord struct {
	ID                   string      `json:"id"`
	TokenIdentity        string      `json:"tokenMint"`
	TransactionSignature string      `json:"signature"`
	Name                 string      `json:"name"`
	Symbol               string      `json:"symbol"`
	Description          string      `json:"description"`
	ImageURL             string      `json:"imageUrl,omitempty"`
	MetadataReference    string      `json:"metadataUri,omitempty"`
	Socials              SocialLinks `json:"socials"`
	CreatorIdentity      string      `json:"creator"`
	Network              string      `json:"network"`
	CreatedAt            int64       `json:"createdAt"` // ms
}
