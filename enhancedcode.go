package mailer

import "fmt"

// EnhancedCode represents an enhanced mail system status code as defined in
// RFC 3463. Format is class.subject.detail (e.g., 2.1.0).
type EnhancedCode struct {
	Class   int // 2 = success, 4 = transient failure, 5 = permanent failure
	Subject int
	Detail  int
}

// String returns the enhanced code formatted as "X.Y.Z" (e.g., "2.1.0").
func (e EnhancedCode) String() string {
	return fmt.Sprintf("%d.%d.%d", e.Class, e.Subject, e.Detail)
}

// IsZero reports whether the enhanced code is the zero value.
func (e EnhancedCode) IsZero() bool {
	return e.Class == 0 && e.Subject == 0 && e.Detail == 0
}
