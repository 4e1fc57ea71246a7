package mailer

import "fmt"

// SASLMechanism defines a client-side SASL authentication mechanism.
type SASLMechanism interface {
	// Name returns the IANA-registered mechanism name (e.g., "LOGIN").
	Name() string
	// Next processes a server challenge and returns the response.
	Next(challenge []byte) ([]byte, error)
}

// LoginAuth returns a SASLMechanism implementing SASL LOGIN
// (draft-murchison-sasl-login). The username answers the first 334
// challenge and the password the second; the challenge text is ignored.
func LoginAuth(username, password string) SASLMechanism {
	return &loginAuth{username: username, password: password}
}

type loginAuth struct {
	username string
	password string
	step     int
}

func (a *loginAuth) Name() string { return "LOGIN" }

func (a *loginAuth) Next(challenge []byte) ([]byte, error) {
	switch a.step {
	case 0:
		a.step++
		return []byte(a.username), nil
	case 1:
		a.step++
		return []byte(a.password), nil
	default:
		return nil, fmt.Errorf("mailer: unexpected LOGIN challenge at step %d", a.step)
	}
}
