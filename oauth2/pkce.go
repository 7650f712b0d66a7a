package oauth2

import (
	xoauth2 "golang.org/x/oauth2"
)

// PKCEParams is the verifier kept by the client and the challenge sent to the backend.
type PKCEParams struct {
	Verifier  string
	Challenge string
	Method    CodeMethodType
}

// NewPKCEParams generates a fresh code verifier and its S256 challenge.
func NewPKCEParams() PKCEParams {
	verifier := xoauth2.GenerateVerifier()
	challenge := xoauth2.S256ChallengeFromVerifier(verifier)
	return PKCEParams{
		Verifier:  verifier,
		Challenge: challenge,
		Method:    ChallengeMethod(verifier, challenge),
	}
}

// ChallengeMethod returns plain when the challenge is the verifier itself, s256 otherwise.
func ChallengeMethod(verifier, challenge string) CodeMethodType {
	if verifier == challenge {
		return CodeMethodTypePlain
	}
	return CodeMethodTypeS256
}
