package webauthn

const (
	DefaultTimeoutMillis = 60000
	publicKeyType        = "public-key"
)

type RelyingParty struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

type UserEntity struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

type CredentialParameter struct {
	Type string `json:"type"`
	Alg  int    `json:"alg"`
}

type AuthenticatorSelection struct {
	AuthenticatorAttachment string `json:"authenticatorAttachment,omitempty"`
	UserVerification        string `json:"userVerification"`
}

type CredentialDescriptor struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// CreationOptions is the PublicKeyCredentialCreationOptions document.
type CreationOptions struct {
	RP                     RelyingParty           `json:"rp"`
	User                   UserEntity             `json:"user"`
	Challenge              string                 `json:"challenge"`
	PubKeyCredParams       []CredentialParameter  `json:"pubKeyCredParams"`
	AuthenticatorSelection AuthenticatorSelection `json:"authenticatorSelection"`
	Timeout                int                    `json:"timeout"`
	Attestation            string                 `json:"attestation"`
}

type CreationResponse struct {
	Options   CreationOptions `json:"options"`
	Challenge string          `json:"challenge"`
}

// RequestOptions is the PublicKeyCredentialRequestOptions document.
type RequestOptions struct {
	Challenge        string                 `json:"challenge"`
	RPID             string                 `json:"rpId"`
	AllowCredentials []CredentialDescriptor `json:"allowCredentials"`
	UserVerification string                 `json:"userVerification"`
	Timeout          int                    `json:"timeout"`
}

type RequestResponse struct {
	Options   RequestOptions `json:"options"`
	Challenge string         `json:"challenge"`
}
